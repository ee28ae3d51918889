package playlist

import (
	"regexp"
	"strconv"

	"github.com/snapetech/iptvsift/internal/catalog"
)

// Patterns seen in the wild, most specific first.
var (
	bracketRes = regexp.MustCompile(`\[(\d{3,4})[*xX×](\d{3,4})\]`)
	dollarRes  = regexp.MustCompile(`\$(\d{3,4})[*xX×](\d{3,4})`)
	paramRes   = regexp.MustCompile(`(?i)[?&;](?:resolution|res)=(\d{3,4})[*xX×](\d{3,4})`)
	heightRes  = regexp.MustCompile(`(?i)[?&;]res=(\d{3,4})p?(?:$|[&;#])`)
)

// ResolutionHint extracts an advisory resolution from URL or name patterns:
// "[1920*1080]", "$3840x2160", "resolution=1920x1080", "res=1280x720" or
// "res=1080". A probe result always overrides it.
func ResolutionHint(s string) catalog.Resolution {
	for _, re := range []*regexp.Regexp{bracketRes, dollarRes, paramRes} {
		if m := re.FindStringSubmatch(s); m != nil {
			w, _ := strconv.Atoi(m[1])
			h, _ := strconv.Atoi(m[2])
			if w > 0 && h > 0 {
				return catalog.Resolution{Width: w, Height: h}
			}
		}
	}
	if m := heightRes.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h > 0 {
			return catalog.Resolution{Width: h * 16 / 9, Height: h}
		}
	}
	return catalog.Resolution{}
}
