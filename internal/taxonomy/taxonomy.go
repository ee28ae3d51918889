// Package taxonomy holds the curated category → canonical channel tree and the
// alias table used to map raw playlist names onto canonical channels.
//
// A Taxonomy is immutable after New returns; all lookups are safe for
// concurrent use without locking.
package taxonomy

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// ChannelDef is one canonical channel and its curated aliases.
type ChannelDef struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// CategoryDef is one category and its channels in output order.
type CategoryDef struct {
	Name     string       `yaml:"name"`
	Channels []ChannelDef `yaml:"channels"`
}

type fileFormat struct {
	Categories []CategoryDef `yaml:"categories"`
}

// Taxonomy is the ordered category list plus alias index.
type Taxonomy struct {
	categories []string
	catIndex   map[string]int
	channels   map[string][]string // category → canonical channels
	categoryOf map[string]string   // canonical → category
	canonicals []string            // all canonical channels, taxonomy order
	aliases    map[string]string   // alias → canonical (includes canonical → itself)
	bySize     []string            // aliases for substring matching, longest first
}

// New builds a Taxonomy. Duplicate aliases that point at different canonical
// channels, empty names, and channels listed in two categories are errors.
func New(defs []CategoryDef) (*Taxonomy, error) {
	t := &Taxonomy{
		catIndex:   make(map[string]int),
		channels:   make(map[string][]string),
		categoryOf: make(map[string]string),
		aliases:    make(map[string]string),
	}
	register := func(alias, canonical string) error {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			return fmt.Errorf("taxonomy: empty alias for %q", canonical)
		}
		if prev, ok := t.aliases[alias]; ok {
			if prev != canonical {
				return fmt.Errorf("taxonomy: alias %q maps to both %q and %q", alias, prev, canonical)
			}
			return nil
		}
		t.aliases[alias] = canonical
		t.bySize = append(t.bySize, alias)
		return nil
	}

	for _, cat := range defs {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return nil, fmt.Errorf("taxonomy: category with empty name")
		}
		if _, dup := t.catIndex[name]; dup {
			return nil, fmt.Errorf("taxonomy: category %q declared twice", name)
		}
		t.catIndex[name] = len(t.categories)
		t.categories = append(t.categories, name)
		for _, ch := range cat.Channels {
			cn := strings.TrimSpace(ch.Name)
			if cn == "" {
				return nil, fmt.Errorf("taxonomy: channel with empty name in %q", name)
			}
			if prev, ok := t.categoryOf[cn]; ok {
				return nil, fmt.Errorf("taxonomy: channel %q in both %q and %q", cn, prev, name)
			}
			t.categoryOf[cn] = name
			t.channels[name] = append(t.channels[name], cn)
			t.canonicals = append(t.canonicals, cn)
		}
	}
	// Canonical names first so a curated alias can never shadow another
	// channel's own name.
	for _, cn := range t.canonicals {
		if err := register(cn, cn); err != nil {
			return nil, err
		}
	}
	for _, cat := range defs {
		for _, ch := range cat.Channels {
			cn := strings.TrimSpace(ch.Name)
			for _, a := range ch.Aliases {
				if err := register(a, cn); err != nil {
					return nil, err
				}
			}
		}
	}
	sort.SliceStable(t.bySize, func(i, j int) bool {
		return utf8.RuneCountInString(t.bySize[i]) > utf8.RuneCountInString(t.bySize[j])
	})
	return t, nil
}

// LoadFile reads a YAML taxonomy:
//
//	categories:
//	  - name: 央视频道
//	    channels:
//	      - name: CCTV1
//	        aliases: [CCTV-1, CCTV1综合]
func LoadFile(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("taxonomy: parse %s: %w", path, err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy: %s declares no categories", path)
	}
	return New(f.Categories)
}

// Categories returns the categories in output order.
func (t *Taxonomy) Categories() []string {
	out := make([]string, len(t.categories))
	copy(out, t.categories)
	return out
}

// Channels returns the canonical channels of cat in output order.
func (t *Taxonomy) Channels(cat string) []string {
	chs := t.channels[cat]
	out := make([]string, len(chs))
	copy(out, chs)
	return out
}

// CategoryOf returns the category owning canonical.
func (t *Taxonomy) CategoryOf(canonical string) (string, bool) {
	c, ok := t.categoryOf[canonical]
	return c, ok
}

// Index returns the position of cat in output order, or -1.
func (t *Taxonomy) Index(cat string) int {
	if i, ok := t.catIndex[cat]; ok {
		return i
	}
	return -1
}

// Len returns the number of canonical channels.
func (t *Taxonomy) Len() int { return len(t.canonicals) }

var (
	// Longest first; "超高清" must go before "高清".
	qualitySuffixes = []string{
		"(超高清)", "[超高清]", "（超高清）", "(高清)", "[高清]", "（高清）",
		"(HD)", "[HD]", "（HD）", "-HD", "·HD", "_HD",
		"超高清", "高清", "HD",
	}
	resolutionTag = regexp.MustCompile(`\s*\[\d{3,4}[*xX×]\d{3,4}\]$`)
	cctvForm      = regexp.MustCompile(`(?i)^CCTV[-_ ]?(\d{1,2})(\+|K)?`)
)

// Clean trims whitespace and strips quality suffixes and a trailing
// resolution tag until the name stops changing.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		prev := s
		s = resolutionTag.ReplaceAllString(s, "")
		for _, suf := range qualitySuffixes {
			if strings.HasSuffix(s, suf) && len(s) > len(suf) {
				s = strings.TrimSuffix(s, suf)
				break
			}
		}
		s = strings.TrimRightFunc(s, unicode.IsSpace)
		if s == prev {
			return s
		}
	}
}

// Resolve maps a raw playlist name to its canonical channel. Lookup order:
// exact canonical, alias table, alias contained in raw (longest first),
// raw contained in exactly one canonical, CCTV number normalization.
func (t *Taxonomy) Resolve(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if c, ok := t.aliases[trimmed]; ok {
		return c, true
	}
	name := Clean(trimmed)
	if name == "" {
		return "", false
	}
	if _, ok := t.categoryOf[name]; ok {
		return name, true
	}
	if c, ok := t.aliases[name]; ok {
		return c, true
	}
	if c, ok := t.aliasWithin(name); ok {
		return c, true
	}
	if c, ok := t.canonicalContaining(name); ok {
		return c, true
	}
	return t.cctv(name)
}

func (t *Taxonomy) aliasWithin(name string) (string, bool) {
	for _, alias := range t.bySize {
		if utf8.RuneCountInString(alias) < 2 {
			break
		}
		if containsBounded(name, alias) {
			return t.aliases[alias], true
		}
	}
	return "", false
}

// containsBounded reports whether alias occurs in s without running into a
// following digit, '+' or 'K' when the alias itself ends in a digit, so that
// CCTV1 never matches CCTV13, CCTV5 never matches CCTV5+.
func containsBounded(s, alias string) bool {
	last, _ := utf8.DecodeLastRuneInString(alias)
	for off := 0; off < len(s); {
		i := strings.Index(s[off:], alias)
		if i < 0 {
			return false
		}
		end := off + i + len(alias)
		if !unicode.IsDigit(last) || end == len(s) {
			return true
		}
		next, _ := utf8.DecodeRuneInString(s[end:])
		if !unicode.IsDigit(next) && next != '+' && next != 'K' && next != 'k' {
			return true
		}
		off += i + 1
	}
	return false
}

func (t *Taxonomy) canonicalContaining(name string) (string, bool) {
	if utf8.RuneCountInString(name) < 2 {
		return "", false
	}
	found := ""
	for _, cn := range t.canonicals {
		if strings.Contains(cn, name) {
			if found != "" {
				return "", false // ambiguous
			}
			found = cn
		}
	}
	return found, found != ""
}

func (t *Taxonomy) cctv(name string) (string, bool) {
	m := cctvForm.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	n := strings.TrimLeft(m[1], "0")
	if n == "" {
		return "", false
	}
	cn := "CCTV" + n + strings.ToUpper(m[2])
	if _, ok := t.categoryOf[cn]; ok {
		return cn, true
	}
	return "", false
}
