package fetch

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrCloudflareDetected explains a failed source fetch whose response came
// from Cloudflare, typically a bot challenge (403/503) that retries will not
// get past.
type ErrCloudflareDetected struct {
	URL    string
	Status int
	Header string // which header triggered detection
	Value  string
}

func (e *ErrCloudflareDetected) Error() string {
	return fmt.Sprintf("cloudflare answered %s with status %d (header %s: %s)", e.URL, e.Status, e.Header, e.Value)
}

// cfResponseHeaders is the set of response headers that indicate Cloudflare.
var cfResponseHeaders = []string{
	"CF-RAY",
	"CF-Cache-Status",
	"CF-Request-ID",
	"CF-Mitigated",
}

// IsCFResponse classifies an error response. It returns nil when h carries
// no Cloudflare marker or status is a success.
func IsCFResponse(url string, status int, h http.Header) *ErrCloudflareDetected {
	if h == nil || (status >= 200 && status < 400) {
		return nil
	}
	for _, name := range cfResponseHeaders {
		if v := h.Get(name); v != "" {
			return &ErrCloudflareDetected{URL: url, Status: status, Header: name, Value: v}
		}
	}
	if server := h.Get("Server"); strings.Contains(strings.ToLower(server), "cloudflare") {
		return &ErrCloudflareDetected{URL: url, Status: status, Header: "Server", Value: server}
	}
	return nil
}
