package httpclient

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Backoff yields exponential delays with random jitter.
type Backoff struct {
	Base   time.Duration // delay before the first retry
	Max    time.Duration // cap; 0 means none
	Jitter float64       // up to this fraction of the delay is added at random
}

// Delay returns the wait before retry number attempt (0-based):
// Base·2^attempt plus jitter, capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := b.Base << attempt
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 && d > 0 {
		d += time.Duration(rand.Float64() * b.Jitter * float64(d))
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// RetryPolicy controls DoWithRetry.
type RetryPolicy struct {
	MaxRetries int
	Backoff    Backoff
	// RetryStatus reports whether a response status earns another attempt.
	// nil retries transport errors only.
	RetryStatus func(code int) bool
	// Max429Wait caps a server-sent Retry-After on 429.
	Max429Wait time.Duration
	// OnRetry runs before each wait.
	OnRetry func(attempt int, status int, err error, wait time.Duration)
}

// FetchRetryPolicy: up to 3 retries at 1s, 2s, 4s (+jitter) for anything
// that is not 200 or 304.
var FetchRetryPolicy = RetryPolicy{
	MaxRetries:  3,
	Backoff:     Backoff{Base: time.Second, Max: 30 * time.Second, Jitter: 0.5},
	RetryStatus: func(code int) bool { return code != http.StatusOK && code != http.StatusNotModified },
	Max429Wait:  60 * time.Second,
}

// ProbeRetryPolicy: two quick retries on transport errors; any response
// is final.
var ProbeRetryPolicy = RetryPolicy{
	MaxRetries: 2,
	Backoff:    Backoff{Base: 200 * time.Millisecond, Max: time.Second, Jitter: 0.5},
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts   int
	StatusCode int         // last status; 0 when the last attempt was a transport error
	Header     http.Header // headers of the last response, if any
	Err        error
}

func (e *ExhaustedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gave up after %d attempts: status %d", e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// DoWithRetry performs req, retrying transport errors and the statuses
// policy.RetryStatus selects. A 429 waits Retry-After when that is longer
// than the backoff. The request must have no body. Caller must close
// resp.Body when err == nil.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	if client == nil {
		client = Default()
	}
	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 0; ; attempt++ {
		r := req
		if attempt > 0 {
			r = req.Clone(ctx)
		}
		resp, err := client.Do(r)
		if err == nil {
			if policy.RetryStatus == nil || !policy.RetryStatus(resp.StatusCode) {
				return resp, nil
			}
			lastErr, lastStatus = nil, resp.StatusCode
		} else {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr, lastStatus = err, 0
		}
		if attempt >= policy.MaxRetries {
			ex := &ExhaustedError{Attempts: attempt + 1, StatusCode: lastStatus, Err: lastErr}
			if resp != nil {
				ex.Header = resp.Header.Clone()
				drain(resp)
			}
			return nil, ex
		}

		wait := policy.Backoff.Delay(attempt)
		if resp != nil {
			if resp.StatusCode == http.StatusTooManyRequests && policy.Max429Wait > 0 {
				if ra := parseRetryAfter(resp.Header.Get("Retry-After"), policy.Max429Wait); ra > wait {
					wait = ra
				}
			}
			drain(resp)
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, lastStatus, lastErr, wait)
		}
		if err := Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// parseRetryAfter parses Retry-After (seconds or HTTP-date); returns duration capped at max.
func parseRetryAfter(s string, max time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1 * time.Second
	}
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		d := time.Duration(sec) * time.Second
		if d > max {
			return max
		}
		return d
	}
	// RFC 1123 date
	t, err := time.Parse(time.RFC1123, s)
	if err != nil {
		return 1 * time.Second
	}
	until := time.Until(t)
	if until <= 0 {
		return 0
	}
	if until > max {
		return max
	}
	return until
}
