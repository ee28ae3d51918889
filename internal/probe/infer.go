package probe

import (
	"regexp"

	"github.com/snapetech/iptvsift/internal/catalog"
)

var (
	inferUHD  = regexp.MustCompile(`(?i)4K|UHD|2160p`)
	inferFHD  = regexp.MustCompile(`(?i)1080p|FHD`)
	infer720  = regexp.MustCompile(`(?i)720p`)
	bandwidth = regexp.MustCompile(`(?im)^#EXT-X-STREAM-INF:.*BANDWIDTH=\d+`)
)

// InferFromPlaylist guesses a resolution from keywords in a playlist body,
// or from a bitrate ladder of three or more variants. The guess is weak and
// must be recorded as inferred.
func InferFromPlaylist(body []byte) (catalog.Resolution, bool) {
	switch {
	case inferUHD.Match(body):
		return catalog.Resolution{Width: 3840, Height: 2160}, true
	case inferFHD.Match(body):
		return catalog.Resolution{Width: 1920, Height: 1080}, true
	case infer720.Match(body):
		return catalog.Resolution{Width: 1280, Height: 720}, true
	case len(bandwidth.FindAll(body, 3)) >= 3:
		return catalog.Resolution{Width: 1920, Height: 1080}, true
	}
	return catalog.Resolution{}, false
}
