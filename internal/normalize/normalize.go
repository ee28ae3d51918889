// Package normalize maps raw playlist entries onto canonical channels and
// drops entries that are unlikely to be high definition.
package normalize

import (
	"regexp"

	"github.com/snapetech/iptvsift/internal/catalog"
	"github.com/snapetech/iptvsift/internal/taxonomy"
)

// DefaultMinHeight is the HD threshold in pixels.
const DefaultMinHeight = 1080

// Verdict is the outcome of normalizing one record.
type Verdict int

const (
	Kept          Verdict = iota
	Unresolved            // name did not resolve to a canonical channel
	LowDefinition         // dropped by the quality pre-filter
)

func (v Verdict) String() string {
	switch v {
	case Kept:
		return "kept"
	case Unresolved:
		return "unresolved"
	case LowDefinition:
		return "low_definition"
	}
	return "unknown"
}

// Class is the quality classification of a (name, url) pair.
type Class int

const (
	Unknown Class = iota // no quality signal either way
	HighDef
	LowDef
)

func (c Class) String() string {
	switch c {
	case HighDef:
		return "hd"
	case LowDef:
		return "sd"
	}
	return "unknown"
}

var (
	highDefToken = regexp.MustCompile(`(?i)1080[pi]|1440p|2160p|(?:^|[^0-9])4K(?:[^a-z]|$)|UHD|FHD|QHD|高清|超高清`)
	lowDefToken  = regexp.MustCompile(`(?i)(?:^|[^0-9])(?:360|480|576)(?:[pi]|[^0-9a-z]|$)|(?:^|[^a-z])SD(?:[^a-z]|$)|标清`)
)

// Options tune the quality pre-filter.
type Options struct {
	// MinHeight is the smallest resolution-hint height treated as HD.
	MinHeight int
	// StrictHD drops records that carry no quality signal at all.
	StrictHD bool
}

// Normalizer is immutable and safe for concurrent use.
type Normalizer struct {
	tax  *taxonomy.Taxonomy
	opts Options
}

// New returns a Normalizer over tax.
func New(tax *taxonomy.Taxonomy, opts Options) *Normalizer {
	if opts.MinHeight <= 0 {
		opts.MinHeight = DefaultMinHeight
	}
	return &Normalizer{tax: tax, opts: opts}
}

// Normalize resolves raw to a canonical channel and applies the quality
// pre-filter. The record is only meaningful when the verdict is Kept.
func (n *Normalizer) Normalize(raw catalog.RawRecord, sourceLoc string) (catalog.ChannelRecord, Verdict) {
	canonical, ok := n.tax.Resolve(raw.Name)
	if !ok {
		return catalog.ChannelRecord{}, Unresolved
	}
	cls := n.Quality(raw.Name, raw.URL, raw.Hint)
	if cls == LowDef || (cls == Unknown && n.opts.StrictHD) {
		return catalog.ChannelRecord{}, LowDefinition
	}
	category, _ := n.tax.CategoryOf(canonical)
	return catalog.ChannelRecord{
		Canonical: canonical,
		Category:  category,
		URL:       raw.URL,
		Source:    sourceLoc,
		Name:      raw.Name,
		Hint:      raw.Hint,
	}, Kept
}

// Quality classifies the combined name and URL. A high-def token or a hint at
// or above MinHeight wins over any low-def token; a hint below MinHeight is a
// low-def signal.
func (n *Normalizer) Quality(name, url string, hint catalog.Resolution) Class {
	s := name + " " + url
	if highDefToken.MatchString(s) || (hint.Known() && hint.Height >= n.opts.MinHeight) {
		return HighDef
	}
	if lowDefToken.MatchString(s) || hint.Known() {
		return LowDef
	}
	return Unknown
}
