package safeurl

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrRejected marks a URL that must not be handed to a probe process.
var ErrRejected = errors.New("safeurl: rejected")

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF or local file access.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := strings.ToLower(parsed.Scheme)
	return s == "http" || s == "https"
}

// forbidden never appear in a stream URL we are willing to pass to ffprobe.
var forbidden = []string{";", "|", "`", "$(", "<", ">", "{", "}", "\\", "\n", "\r", "\x00"}

// Target is a sanitized stream URL plus the Referer split off its $token.
type Target struct {
	URL     string
	Referer string
}

// Sanitize splits a trailing "$token" into a Referer and rejects URLs that
// carry shell metacharacters. The token becomes the Referer only when it is
// itself an http(s) URL; otherwise it is dropped. Bracketed IPv6 hosts pass.
func Sanitize(raw string) (Target, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Target{}, fmt.Errorf("%w: empty url", ErrRejected)
	}
	for _, f := range forbidden {
		if strings.Contains(s, f) {
			return Target{}, fmt.Errorf("%w: %q contains %q", ErrRejected, Redact(s), f)
		}
	}
	t := Target{URL: s}
	if i := strings.LastIndexByte(s, '$'); i >= 0 {
		t.URL = strings.TrimSpace(s[:i])
		if tok := strings.TrimSpace(s[i+1:]); IsHTTPOrHTTPS(tok) {
			t.Referer = tok
		}
	}
	if strings.ContainsRune(t.URL, '$') {
		return Target{}, fmt.Errorf("%w: %q has more than one $ segment", ErrRejected, Redact(s))
	}
	u, err := url.Parse(t.URL)
	if err != nil || u.Scheme == "" {
		return Target{}, fmt.Errorf("%w: %q is not an absolute url", ErrRejected, Redact(s))
	}
	return t, nil
}

// Route says how a stream URL is checked before probing.
type Route int

const (
	// RouteHEAD: plain http(s) authority; a HEAD/GET reachability check runs first.
	RouteHEAD Route = iota
	// RouteLadder: the probe ladder doubles as the reachability test.
	RouteLadder
)

func (r Route) String() string {
	if r == RouteHEAD {
		return "head"
	}
	return "ladder"
}

var proxiedMarkers = []string{"/udp/", "/rtp/", "/rtmp/"}

// Classify picks the reachability route for u. Non-HTTP schemes, http
// proxies of multicast/RTMP streams and bracketed IPv6 authorities go
// straight to the ladder.
func Classify(u string) Route {
	parsed, err := url.Parse(u)
	if err != nil {
		return RouteLadder
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return RouteLadder
	}
	if strings.HasPrefix(parsed.Host, "[") {
		return RouteLadder
	}
	if ip := net.ParseIP(parsed.Hostname()); ip != nil && ip.To4() == nil {
		return RouteLadder
	}
	p := strings.ToLower(parsed.Path)
	for _, m := range proxiedMarkers {
		if strings.Contains(p, m) {
			return RouteLadder
		}
	}
	return RouteHEAD
}

// Redact hides the query string, which commonly carries tokens, for logging.
func Redact(s string) string {
	if i := strings.Index(s, "?"); i >= 0 {
		return s[:i] + "?[redacted]"
	}
	return s
}
