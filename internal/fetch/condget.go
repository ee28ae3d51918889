package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/snapetech/iptvsift/internal/httpclient"
)

// ErrNotModified is returned by ConditionalGet when the server responds 304.
var ErrNotModified = errors.New("fetch: 304 not modified")

// GetResult carries the response body and the cache-validator headers from a
// successful (200) ConditionalGet call.
type GetResult struct {
	Body         []byte // decoded and converted to UTF-8
	ETag         string
	LastModified string
	// ContentHash is md5(Body); an unchanged hash means the cached entry only
	// needs its timestamp refreshed.
	ContentHash string
	Attempts    int
}

// ContentHash returns the hex MD5 of b.
func ContentHash(b []byte) string {
	h := md5.Sum(b)
	return hex.EncodeToString(h[:])
}

// ConditionalGet issues a GET with If-None-Match / If-Modified-Since if prior
// etag / lastModified are non-empty. Returns ErrNotModified on 304. On 200,
// reads and decodes the full body and captures ETag/Last-Modified.
// Failures after policy's retries are *Error.
func ConditionalGet(ctx context.Context, client *http.Client, url, etag, lastModified string, policy httpclient.RetryPolicy) (*GetResult, error) {
	if client == nil {
		client = httpclient.Default()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Location: url, Attempts: 0, Err: fmt.Errorf("build request: %w", err)}
	}
	httpclient.SetHeaders(req)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	attempts := 1
	userRetry := policy.OnRetry
	policy.OnRetry = func(attempt, status int, err error, wait time.Duration) {
		attempts = attempt + 1
		if userRetry != nil {
			userRetry(attempt, status, err, wait)
		}
	}
	resp, err := httpclient.DoWithRetry(ctx, client, req, policy)
	if err != nil {
		var ex *httpclient.ExhaustedError
		if errors.As(err, &ex) {
			fe := &Error{Location: url, Attempts: ex.Attempts, Status: ex.StatusCode, Err: ex}
			if cf := IsCFResponse(url, ex.StatusCode, ex.Header); cf != nil {
				fe.Err = cf
			}
			return nil, fe
		}
		return nil, &Error{Location: url, Attempts: attempts, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, ErrNotModified
	}
	if resp.StatusCode != http.StatusOK {
		fe := &Error{Location: url, Attempts: attempts, Status: resp.StatusCode}
		if cf := IsCFResponse(url, resp.StatusCode, resp.Header); cf != nil {
			fe.Err = cf
		}
		return nil, fe
	}

	raw, err := httpclient.DecodeBody(resp)
	if err != nil {
		return nil, &Error{Location: url, Attempts: attempts, Status: resp.StatusCode, Err: err}
	}
	body := ToUTF8(raw, resp.Header.Get("Content-Type"))
	return &GetResult{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		ContentHash:  ContentHash(body),
		Attempts:     attempts,
	}, nil
}
