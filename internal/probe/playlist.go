package probe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/snapetech/iptvsift/internal/catalog"
	"github.com/snapetech/iptvsift/internal/httpclient"
	"github.com/snapetech/iptvsift/internal/safeurl"
)

var (
	playlistPathMarkers = []string{"/hls/", "/live/", "/api/", "/playlist", "/stream"}
	segmentExts         = []string{".ts", ".m2ts", ".mts", ".mp4", ".m4s", ".m4v", ".aac", ".flv", ".mkv", ".webm"}
)

// IsPlaylistURL reports whether an http(s) URL probably serves a nested
// playlist document. Media segments are never playlists, whatever their
// path.
func IsPlaylistURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	p := strings.ToLower(u.Path)
	if strings.HasSuffix(p, ".m3u8") || strings.HasSuffix(p, ".m3u") {
		return true
	}
	if isSegmentPath(p) {
		return false
	}
	for _, m := range playlistPathMarkers {
		if strings.Contains(p, m) {
			return true
		}
	}
	return false
}

func isSegmentPath(p string) bool {
	ext := path.Ext(p)
	return ext != "" && slices.Contains(segmentExts, ext)
}

// Inspection is the result of reading a nested playlist document.
type Inspection struct {
	// Resolution is the largest RESOLUTION among the variants, if any.
	Resolution catalog.Resolution
	// SegmentURL is the absolute URL of the first media segment or variant.
	SegmentURL string
	Body       []byte
}

// FetchPlaylist downloads a playlist document. Transport failures are
// retryable; status failures are not.
func FetchPlaylist(ctx context.Context, client *http.Client, t safeurl.Target) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return nil, err
	}
	httpclient.SetHeaders(req)
	if t.Referer != "" {
		req.Header.Set("Referer", t.Referer)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("playlist status %d", resp.StatusCode)
	}
	return httpclient.DecodeBody(resp)
}

// InspectBody scans a playlist document fetched from base. The structured
// decoder is tried first; a line scan covers documents it rejects.
func InspectBody(base string, body []byte) Inspection {
	insp := Inspection{Body: body}
	var first string
	if pl, kind, err := m3u8.DecodeFrom(bytes.NewReader(body), false); err == nil {
		switch kind {
		case m3u8.MASTER:
			for _, v := range pl.(*m3u8.MasterPlaylist).Variants {
				if v == nil {
					break
				}
				if first == "" {
					first = v.URI
				}
				if r := parseWxH(v.Resolution); r.Height > insp.Resolution.Height {
					insp.Resolution = r
				}
			}
		case m3u8.MEDIA:
			if segs := pl.(*m3u8.MediaPlaylist).Segments; len(segs) > 0 && segs[0] != nil {
				first = segs[0].URI
			}
		}
	}
	if !insp.Resolution.Known() && first == "" {
		insp.Resolution, first = scanPlaylist(body)
	}
	if first != "" {
		insp.SegmentURL = ResolveSegment(base, first)
	}
	return insp
}

var streamInfRes = regexp.MustCompile(`(?i)RESOLUTION=(\d+)x(\d+)`)

func scanPlaylist(body []byte) (best catalog.Resolution, first string) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(nil, 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			if m := streamInfRes.FindStringSubmatch(line); m != nil {
				if r := parseWxH(m[1] + "x" + m[2]); r.Height > best.Height {
					best = r
				}
			}
		case strings.HasPrefix(line, "#"):
		case first == "":
			first = line
		}
	}
	return best, first
}

func parseWxH(s string) catalog.Resolution {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return catalog.Resolution{}
	}
	wi, err1 := strconv.Atoi(w)
	hi, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil || wi <= 0 || hi <= 0 {
		return catalog.Resolution{}
	}
	return catalog.Resolution{Width: wi, Height: hi}
}

var bareTS = regexp.MustCompile(`^\d+\.ts$`)

// ResolveSegment makes a segment reference absolute against the playlist
// URL. Bare "<digits>.ts" names keep the playlist's query string, which
// usually carries the access token. "api.php?..." forms resolve against the
// playlist's directory.
func ResolveSegment(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if safeurl.IsHTTPOrHTTPS(ref) {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	switch {
	case strings.HasPrefix(ref, "/"):
		return b.Scheme + "://" + b.Host + ref
	case bareTS.MatchString(ref):
		u := b.ResolveReference(&url.URL{Path: ref})
		u.RawQuery = b.RawQuery
		return u.String()
	case strings.HasPrefix(ref, "api.php?"):
		dir := b.Path[:strings.LastIndex(b.Path, "/")+1]
		if dir == "" {
			dir = "/"
		}
		return b.Scheme + "://" + b.Host + dir + ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
