package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/snapetech/iptvsift/internal/httpclient"
	"github.com/snapetech/iptvsift/internal/safeurl"
)

// reachRange keeps reachability checks from pulling stream bytes.
const reachRange = "bytes=0-1023"

// CheckReachable issues a HEAD with a small Range header and, when that
// fails for any reason, one GET with the same timeout. Redirects are not
// followed; any 2xx or 3xx status means reachable.
func CheckReachable(ctx context.Context, client *http.Client, t safeurl.Target, timeout time.Duration) error {
	c := httpclient.NoRedirect(httpclient.WithTimeout(client, timeout))
	status, err := reachOnce(ctx, c, http.MethodHead, t)
	if err == nil && reachableStatus(status) {
		return nil
	}
	status, err = reachOnce(ctx, c, http.MethodGet, t)
	if err != nil {
		return &Error{Step: StepReach, Err: err}
	}
	if !reachableStatus(status) {
		return &Error{Step: StepReach, Err: fmt.Errorf("status %d", status)}
	}
	return nil
}

func reachableStatus(code int) bool { return code >= 200 && code < 400 }

func reachOnce(ctx context.Context, c *http.Client, method string, t safeurl.Target) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	req.Header.Set("Range", reachRange)
	if t.Referer != "" {
		req.Header.Set("Referer", t.Referer)
	}
	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	resp.Body.Close()
	return resp.StatusCode, nil
}
