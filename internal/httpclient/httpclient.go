package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16

	// UserAgent is sent on every outbound request.
	UserAgent = "iptvsift/1.0"
)

// Options tunes the shared client.
type Options struct {
	Timeout time.Duration
	// InsecureTLS turns off certificate verification. Off unless the operator
	// opts in.
	InsecureTLS bool
	// Limiter, when set, gates every request per host.
	Limiter *HostLimiter
}

var defaultClient = New(Options{})

// New builds a pooled client. Proxies come from HTTP_PROXY, HTTPS_PROXY and
// NO_PROXY. Compression is negotiated by DecodeBody, not the transport.
func New(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	tr := &http.Transport{
		Proxy: proxyFromEnvironment(),
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   MaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
	}
	if opts.InsecureTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}
	var rt http.RoundTripper = tr
	if opts.Limiter != nil {
		rt = &limitedTransport{base: tr, lim: opts.Limiter}
	}
	return &http.Client{Timeout: opts.Timeout, Transport: rt}
}

// Default returns the shared client with default options.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client sharing c's transport (and so its connection
// pool and limiter) with a different overall timeout.
func WithTimeout(c *http.Client, timeout time.Duration) *http.Client {
	if c == nil {
		c = defaultClient
	}
	cp := *c
	cp.Timeout = timeout
	return &cp
}

// NoRedirect returns a client sharing c's transport that hands 3xx
// responses back to the caller instead of following them.
func NoRedirect(c *http.Client) *http.Client {
	if c == nil {
		c = defaultClient
	}
	cp := *c
	cp.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &cp
}

func proxyFromEnvironment() func(*http.Request) (*url.URL, error) {
	pf := httpproxy.FromEnvironment().ProxyFunc()
	return func(r *http.Request) (*url.URL, error) { return pf(r.URL) }
}

type limitedTransport struct {
	base http.RoundTripper
	lim  *HostLimiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	release, err := t.lim.Acquire(req.Context(), req.URL.Host)
	if err != nil {
		return nil, err
	}
	defer release()
	return t.base.RoundTrip(req)
}
