package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

func TestDecodeBody(t *testing.T) {
	const want = "#EXTM3U\n#EXTINF:-1,CCTV1\nhttp://h/1.m3u8\n"
	var gz, br bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte(want))
	zw.Close()
	bw := brotli.NewWriter(&br)
	bw.Write([]byte(want))
	bw.Close()

	tests := []struct {
		enc  string
		body []byte
	}{
		{"", []byte(want)},
		{"gzip", gz.Bytes()},
		{"br", br.Bytes()},
	}
	for _, tt := range tests {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{tt.enc}},
			Body:   io.NopCloser(bytes.NewReader(tt.body)),
		}
		got, err := DecodeBody(resp)
		if err != nil {
			t.Errorf("%q: %v", tt.enc, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%q: body = %q", tt.enc, got)
		}
	}

	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"zstd"}},
		Body:   io.NopCloser(bytes.NewReader(nil)),
	}
	if _, err := DecodeBody(resp); err == nil {
		t.Error("unknown encoding should fail")
	}
}

func TestNoRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a" {
			http.Redirect(w, r, "/b", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := NoRedirect(nil).Get(srv.URL + "/a")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", resp.StatusCode)
	}
}

func TestHostLimiter_concurrency(t *testing.T) {
	lim := NewHostLimiter(0, 2)
	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := lim.Acquire(context.Background(), "cdn.example")
			if err != nil {
				t.Error(err)
				return
			}
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			release()
		}()
	}
	wg.Wait()
	if peak.Load() > 2 {
		t.Errorf("peak in flight = %d, want <= 2", peak.Load())
	}
}

func TestHostLimiter_cancel(t *testing.T) {
	lim := NewHostLimiter(0, 1)
	release, err := lim.Acquire(context.Background(), "h")
	if err != nil {
		t.Fatal(err)
	}
	defer release()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := lim.Acquire(ctx, "h"); err == nil {
		t.Fatal("second Acquire should fail when the only slot is held")
	}
	// Other hosts are independent.
	r2, err := lim.Acquire(context.Background(), "other")
	if err != nil {
		t.Fatal(err)
	}
	r2()
}

func TestNew_limiterWired(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := New(Options{Timeout: 2 * time.Second, Limiter: NewHostLimiter(1000, 4)})
	for i := 0; i < 3; i++ {
		resp, err := c.Get(srv.URL)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d", hits.Load())
	}
}

func TestWithBudget_expires(t *testing.T) {
	ctx, cancel := WithBudget(context.Background(), 20*time.Millisecond)
	defer cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("budget never expired")
	}
	if err := Cause(ctx); err != context.DeadlineExceeded {
		t.Errorf("Cause = %v, want deadline exceeded", err)
	}
}

func TestWithBudget_waitNotCharged(t *testing.T) {
	ctx, cancel := WithBudget(context.Background(), 60*time.Millisecond)
	defer cancel()

	resume := Waiting(ctx)
	time.Sleep(150 * time.Millisecond)
	if ctx.Err() != nil {
		t.Fatal("budget charged while waiting")
	}
	resume()
	resume()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("budget did not resume")
	}
}

func TestHostLimiter_queueNotCharged(t *testing.T) {
	lim := NewHostLimiter(0, 1)
	release, err := lim.Acquire(context.Background(), "cdn.example")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(150 * time.Millisecond)
		release()
	}()

	ctx, cancel := WithBudget(context.Background(), 60*time.Millisecond)
	defer cancel()
	r2, err := lim.Acquire(ctx, "cdn.example")
	if err != nil {
		t.Fatalf("queued Acquire: %v", err)
	}
	r2()
	if ctx.Err() != nil {
		t.Errorf("budget spent in the host queue: %v", Cause(ctx))
	}
}

func TestWithBudget_noBudgetIsNoop(t *testing.T) {
	resume := Waiting(context.Background())
	resume()
	if Cause(context.Background()) != nil {
		t.Error("Cause of a live context should be nil")
	}
}
