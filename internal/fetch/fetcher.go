// Package fetch retrieves source bodies through the content cache.
//
// Remote sources are served from the cache while fresh, revalidated with a
// conditional GET once stale, and retried with exponential backoff on any
// outcome other than 200 or 304. Local sources are read from disk. Every
// body is converted to UTF-8 before it leaves this package.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/snapetech/iptvsift/internal/cache"
	"github.com/snapetech/iptvsift/internal/httpclient"
	"github.com/snapetech/iptvsift/internal/logging"
	"github.com/snapetech/iptvsift/internal/metrics"
	"github.com/snapetech/iptvsift/internal/safeurl"
	"github.com/snapetech/iptvsift/internal/source"
)

// ─── Errors ──────────────────────────────────────────────────────────────────

// Error is a source that yielded no body: transport failure, bad status or
// exhausted retries.
type Error struct {
	Location string
	Attempts int
	Status   int // last HTTP status, 0 if none
	Err      error
}

func (e *Error) Error() string {
	loc := safeurl.Redact(e.Location)
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s): %v", loc, e.Status, e.Attempts, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", loc, e.Err)
	default:
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", loc, e.Status, e.Attempts)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ─── Configuration ───────────────────────────────────────────────────────────

// Config drives a Fetcher. Zero values are replaced with defaults by New.
type Config struct {
	// Client may be nil to use the default httpclient.
	Client *http.Client
	// Cache is required for remote sources to be cached; nil fetches every
	// time and persists nothing.
	Cache *cache.Cache
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Backoff overrides the retry schedule (default 1s, 2s, 4s plus jitter).
	Backoff httpclient.Backoff
	// Workers bounds FetchAll's concurrency. Default 4.
	Workers int

	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
}

// ─── Result ──────────────────────────────────────────────────────────────────

// Outcome says how a body was obtained.
type Outcome string

const (
	OutcomeLocal       Outcome = "local"
	OutcomeCached      Outcome = "cached"       // fresh entry, no network
	OutcomeNotModified Outcome = "not_modified" // 304
	OutcomeUnchanged   Outcome = "unchanged"    // 200, same MD5 as cached
	OutcomeUpdated     Outcome = "updated"      // 200, new body stored
	OutcomeFailed      Outcome = "failed"
)

// Result is the output for one source.
type Result struct {
	Source  source.Source
	Body    []byte
	Outcome Outcome
	Err     error
}

// Fetcher retrieves sources. Safe for concurrent use.
type Fetcher struct {
	cfg    Config
	policy httpclient.RetryPolicy
	log    logrus.FieldLogger
}

// New returns a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Client == nil {
		cfg.Client = httpclient.Default()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	log := cfg.Log
	if log == nil {
		log = logging.Discard()
	}
	log = log.WithField("component", "fetch")

	policy := httpclient.FetchRetryPolicy
	policy.MaxRetries = cfg.MaxRetries
	if cfg.Backoff.Base > 0 {
		policy.Backoff = cfg.Backoff
	}
	return &Fetcher{cfg: cfg, policy: policy, log: log}
}

// Fetch returns the body of src, or an error when none is available. A stale
// cached body is never returned after a failed revalidation.
func (f *Fetcher) Fetch(ctx context.Context, src source.Source) ([]byte, error) {
	r := f.fetch(ctx, src)
	return r.Body, r.Err
}

// FetchAll fetches every source with at most cfg.Workers in flight and
// returns results in input order.
func (f *Fetcher) FetchAll(ctx context.Context, srcs []source.Source) []Result {
	out := make([]Result, len(srcs))
	var g errgroup.Group
	g.SetLimit(f.cfg.Workers)
	for i, src := range srcs {
		g.Go(func() error {
			out[i] = f.fetch(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (f *Fetcher) fetch(ctx context.Context, src source.Source) Result {
	start := time.Now()
	var r Result
	if src.Kind == source.Local {
		r = f.fetchLocal(src)
	} else {
		r = f.fetchRemote(ctx, src)
	}
	r.Source = src
	f.cfg.Metrics.Source(string(r.Outcome))

	entry := f.log.WithFields(logrus.Fields{
		"location": safeurl.Redact(src.Location),
		"outcome":  r.Outcome,
		"elapsed":  time.Since(start).Round(time.Millisecond).String(),
	})
	if r.Err != nil {
		entry.WithError(r.Err).Warn("fetch: source failed")
	} else {
		entry.WithField("bytes", len(r.Body)).Info("fetch: ok")
	}
	return r
}

func (f *Fetcher) fetchLocal(src source.Source) Result {
	body, err := os.ReadFile(src.Path)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: &Error{Location: src.Location, Attempts: 1, Err: err}}
	}
	return Result{Body: ToUTF8(body, ""), Outcome: OutcomeLocal}
}

func (f *Fetcher) fetchRemote(ctx context.Context, src source.Source) Result {
	loc := src.Location
	c := f.cfg.Cache

	var (
		prev   cache.Entry
		cached bool
	)
	if c != nil {
		prev, cached = c.Get(loc)
	}
	if cached && c.Fresh(prev) {
		f.cfg.Metrics.CacheEvent("hit")
		return Result{Body: prev.Body, Outcome: OutcomeCached}
	}
	f.cfg.Metrics.CacheEvent("miss")

	var etag, lastModified string
	if cached {
		etag, lastModified = prev.ETag, prev.LastModified
	}
	policy := f.policy
	policy.OnRetry = func(attempt, status int, err error, wait time.Duration) {
		f.log.WithFields(logrus.Fields{
			"location": safeurl.Redact(loc),
			"attempt":  attempt,
			"status":   status,
			"wait":     wait.Round(time.Millisecond).String(),
		}).WithError(err).Debug("fetch: retrying")
	}
	res, err := ConditionalGet(ctx, f.cfg.Client, loc, etag, lastModified, policy)
	switch {
	case errors.Is(err, ErrNotModified):
		if !cached {
			return Result{Outcome: OutcomeFailed, Err: &Error{Location: loc, Attempts: 1, Status: http.StatusNotModified}}
		}
		c.Touch(loc, "", "")
		f.persist()
		f.cfg.Metrics.CacheEvent("not_modified")
		return Result{Body: prev.Body, Outcome: OutcomeNotModified}
	case err != nil:
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	if c == nil {
		return Result{Body: res.Body, Outcome: OutcomeUpdated}
	}
	if cached && ContentHash(prev.Body) == res.ContentHash {
		c.Touch(loc, res.ETag, res.LastModified)
		f.persist()
		f.cfg.Metrics.CacheEvent("unchanged")
		return Result{Body: prev.Body, Outcome: OutcomeUnchanged}
	}
	c.Put(loc, res.Body, res.ETag, res.LastModified)
	f.persist()
	f.cfg.Metrics.CacheEvent("stored")
	return Result{Body: res.Body, Outcome: OutcomeUpdated}
}

// persist saves the cache after each source. Failures here are logged; the
// run's final save decides whether the cache is unwritable.
func (f *Fetcher) persist() {
	if err := f.cfg.Cache.Save(); err != nil {
		f.log.WithError(err).Warn("fetch: cache save failed")
	}
}
