// Package rank orders the validated URLs of each canonical channel and
// applies the per-channel cap.
package rank

import (
	"regexp"
	"slices"

	"github.com/snapetech/iptvsift/internal/catalog"
)

// Defaults for the per-channel URL limits.
const (
	DefaultCap   = 90
	DefaultFloor = 10
)

// Resolution tiers; smaller is better.
const (
	Tier2160      = 0.0
	Tier1440      = 1.0
	Tier1080p     = 2.0
	Tier1080i     = 2.1
	Tier720       = 3.0
	TierHDToken   = 4.0
	TierOtherHigh = 5.0
	TierNoInfo    = 6.0
)

var (
	tok2160  = regexp.MustCompile(`(?i)2160p|4K|UHD|3840[*xX×]2160`)
	tok1440  = regexp.MustCompile(`(?i)1440p|QHD|2560[*xX×]1440`)
	tok1080i = regexp.MustCompile(`(?i)1080i`)
	tok1080  = regexp.MustCompile(`(?i)1080p|FHD|1920[*xX×]1080`)
	tok720   = regexp.MustCompile(`(?i)720p|1280[*xX×]720`)
	tokHD    = regexp.MustCompile(`(?i)HD|高清`)
	tokHigh  = regexp.MustCompile(`(?i)超清|蓝光|H\.?265|HEVC`)
)

// Tier returns the resolution tier of a result. A probed resolution decides
// the tier; an inferred one is weak and ranks as an unspecified high-def
// marker; otherwise tokens in the raw name and URL decide.
func Tier(r catalog.ValidationResult) float64 {
	if r.Resolution.Known() && r.ProbeSource != catalog.ProbeInferred {
		return heightTier(r.Resolution)
	}
	if r.ProbeSource == catalog.ProbeInferred && r.Resolution.Known() {
		return TierOtherHigh
	}
	return tokenTier(r.Record.Name + " " + r.Record.URL)
}

func heightTier(res catalog.Resolution) float64 {
	switch h := res.Height; {
	case h >= 2160:
		return Tier2160
	case h >= 1440:
		return Tier1440
	case h >= 1080 && res.Interlaced:
		return Tier1080i
	case h >= 1080:
		return Tier1080p
	case h >= 720:
		return Tier720
	}
	return TierNoInfo
}

func tokenTier(s string) float64 {
	switch {
	case tok2160.MatchString(s):
		return Tier2160
	case tok1440.MatchString(s):
		return Tier1440
	case tok1080i.MatchString(s):
		return Tier1080i
	case tok1080.MatchString(s):
		return Tier1080p
	case tok720.MatchString(s):
		return Tier720
	case tokHD.MatchString(s):
		return TierHDToken
	case tokHigh.MatchString(s):
		return TierOtherHigh
	}
	return TierNoInfo
}

// Less orders two results by tier, then by URL length.
func Less(a, b catalog.ValidationResult) bool {
	ta, tb := Tier(a), Tier(b)
	if ta != tb {
		return ta < tb
	}
	return len(a.Record.URL) < len(b.Record.URL)
}

// Output is the ranked URL list per canonical channel.
type Output map[string][]catalog.ValidationResult

// Len is the total number of URLs kept.
func (o Output) Len() int {
	n := 0
	for _, rs := range o {
		n += len(rs)
	}
	return n
}

// Below lists channels with fewer than floor URLs, in sorted order. Nothing
// is padded; the list is informative.
func (o Output) Below(floor int) []string {
	var out []string
	for ch, rs := range o {
		if len(rs) < floor {
			out = append(out, ch)
		}
	}
	slices.Sort(out)
	return out
}

// Rank groups results by canonical channel, drops duplicate and unreachable
// URLs, sorts each group stably by Less and truncates it to limit entries.
// Channels left with no URLs are absent from the output.
func Rank(results []catalog.ValidationResult, limit int) Output {
	if limit <= 0 {
		limit = DefaultCap
	}
	type key struct{ canonical, url string }
	seen := make(map[key]struct{}, len(results))
	out := make(Output)
	for _, r := range results {
		k := key{r.Record.Canonical, r.Record.URL}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if !r.Reachable {
			continue
		}
		out[r.Record.Canonical] = append(out[r.Record.Canonical], r)
	}
	for ch, rs := range out {
		slices.SortStableFunc(rs, func(a, b catalog.ValidationResult) int {
			switch {
			case Less(a, b):
				return -1
			case Less(b, a):
				return 1
			}
			return 0
		})
		if len(rs) > limit {
			rs = rs[:limit]
		}
		out[ch] = rs
	}
	return out
}
