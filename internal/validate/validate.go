// Package validate decides, per stream URL, whether it is alive and what
// resolution it carries. Each distinct URL is validated once by a bounded
// worker pool; a single collector owns the result set.
package validate

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapetech/iptvsift/internal/catalog"
	"github.com/snapetech/iptvsift/internal/httpclient"
	"github.com/snapetech/iptvsift/internal/logging"
	"github.com/snapetech/iptvsift/internal/metrics"
	"github.com/snapetech/iptvsift/internal/probe"
	"github.com/snapetech/iptvsift/internal/safeurl"
)

const (
	DefaultTimeout = 5 * time.Second
	maxDeadline    = 12 * time.Second
)

// Ladder is the probe ladder; *probe.Ladder implements it.
type Ladder interface {
	Run(ctx context.Context, t safeurl.Target) (probe.Outcome, error)
}

// Config wires a Validator. Zero values get defaults in New.
type Config struct {
	Client *http.Client
	Ladder Ladder
	// Timeout is the base timeout for a reachability request.
	Timeout time.Duration
	// Deadline bounds all work for one URL. Default min(2.5×Timeout, 12s).
	// Time queued for a probe slot or a per-host gate does not count.
	Deadline time.Duration
	// Workers defaults to min(64, 4×CPU).
	Workers int
	// NoResolution skips the probe ladder for URLs that have a HEAD route.
	NoResolution bool

	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
}

// DefaultDeadline returns the per-URL bound for a base timeout.
func DefaultDeadline(timeout time.Duration) time.Duration {
	return min(timeout*5/2, maxDeadline)
}

// DefaultWorkers is min(64, 4×CPU).
func DefaultWorkers() int { return min(64, 4*runtime.NumCPU()) }

// Validator is safe for concurrent use.
type Validator struct {
	cfg Config
	log logrus.FieldLogger
}

// New returns a Validator.
func New(cfg Config) (*Validator, error) {
	if cfg.Ladder == nil {
		return nil, errors.New("validate: no probe ladder")
	}
	if cfg.Client == nil {
		cfg.Client = httpclient.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline(cfg.Timeout)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}
	log := cfg.Log
	if log == nil {
		log = logging.Discard()
	}
	return &Validator{cfg: cfg, log: log.WithField("component", "validate")}, nil
}

// Validate runs the state machine for one record:
// new → probing → reachable_with_resolution | reachable_no_resolution | unreachable.
func (v *Validator) Validate(ctx context.Context, rec catalog.ChannelRecord) catalog.ValidationResult {
	start := time.Now()
	res := catalog.ValidationResult{Record: rec, State: catalog.StateNew}
	finish := func(state catalog.State, err error) catalog.ValidationResult {
		res.State = state
		res.Reachable = state.Valid()
		if state == catalog.StateReachableNoResolution && rec.Hint.Known() {
			res.Resolution, res.ProbeSource = rec.Hint, catalog.ProbeHint
		}
		if err != nil {
			res.Err = err.Error()
		}
		res.Elapsed = time.Since(start)
		v.cfg.Metrics.Validation(string(state))
		return res
	}

	t, err := safeurl.Sanitize(rec.URL)
	if err != nil {
		v.log.WithFields(logrus.Fields{"channel": rec.Canonical, "source": rec.Source}).WithError(err).Warn("validate: url rejected")
		return finish(catalog.StateUnreachable, err)
	}

	ctx, cancel := httpclient.WithBudget(ctx, v.cfg.Deadline)
	defer cancel()
	res.State = catalog.StateProbing

	if safeurl.Classify(t.URL) == safeurl.RouteHEAD {
		if err := probe.CheckReachable(ctx, v.cfg.Client, t, v.cfg.Timeout); err != nil {
			return finish(catalog.StateUnreachable, err)
		}
		if v.cfg.NoResolution {
			return finish(catalog.StateReachableNoResolution, nil)
		}
		out, err := v.cfg.Ladder.Run(ctx, t)
		if err != nil {
			return finish(catalog.StateReachableNoResolution, err)
		}
		res.Resolution, res.Codec, res.ProbeSource = out.Resolution, out.Codec, out.Source
		return finish(catalog.StateReachableWithResolution, nil)
	}

	out, err := v.cfg.Ladder.Run(ctx, t)
	switch {
	case err == nil:
		res.Resolution, res.Codec, res.ProbeSource = out.Resolution, out.Codec, out.Source
		return finish(catalog.StateReachableWithResolution, nil)
	case out.Reachable:
		return finish(catalog.StateReachableNoResolution, err)
	default:
		return finish(catalog.StateUnreachable, err)
	}
}

// Run validates every distinct URL in recs once and returns one result per
// distinct (channel, url) pair, in first-seen order. When ctx is cancelled
// Run returns what has been collected so far with partial set, without
// waiting for in-flight work.
func (v *Validator) Run(ctx context.Context, recs []catalog.ChannelRecord) (results []catalog.ValidationResult, partial bool) {
	start := time.Now()
	defer v.cfg.Metrics.Stage("validate", start)

	pairs := distinctPairs(recs)
	var (
		urls  []string
		first = make(map[string]catalog.ChannelRecord)
	)
	for _, r := range pairs {
		if _, ok := first[r.URL]; !ok {
			first[r.URL] = r
			urls = append(urls, r.URL)
		}
	}

	jobs := make(chan catalog.ChannelRecord, v.cfg.Workers)
	done := make(chan catalog.ValidationResult, v.cfg.Workers)

	go func() {
		defer close(jobs)
		for _, u := range urls {
			select {
			case jobs <- first[u]:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for range min(v.cfg.Workers, len(urls)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				r := v.Validate(ctx, rec)
				if ctx.Err() != nil {
					return
				}
				select {
				case done <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	byURL := make(map[string]catalog.ValidationResult, len(urls))
collect:
	for {
		select {
		case r, ok := <-done:
			if !ok {
				break collect
			}
			byURL[r.Record.URL] = r
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case r, ok := <-done:
					if !ok {
						drained = true
						break
					}
					byURL[r.Record.URL] = r
				default:
					drained = true
				}
			}
			break collect
		}
	}

	partial = ctx.Err() != nil || len(byURL) < len(urls)
	results = make([]catalog.ValidationResult, 0, len(pairs))
	for _, rec := range pairs {
		r, ok := byURL[rec.URL]
		if !ok {
			continue
		}
		r.Record = rec
		results = append(results, r)
	}

	kept := 0
	for _, r := range byURL {
		if r.Reachable {
			kept++
		}
	}
	v.log.WithFields(logrus.Fields{
		"urls":      len(urls),
		"validated": len(byURL),
		"reachable": kept,
		"partial":   partial,
		"elapsed":   time.Since(start).Round(time.Millisecond).String(),
	}).Info("validate: done")
	return results, partial
}

// Unvalidated passes records through without any network check, for runs
// that skip validation. Each distinct (channel, url) pair is reported
// reachable without a resolution.
func Unvalidated(recs []catalog.ChannelRecord) []catalog.ValidationResult {
	pairs := distinctPairs(recs)
	out := make([]catalog.ValidationResult, 0, len(pairs))
	for _, rec := range pairs {
		r := catalog.ValidationResult{
			Record:    rec,
			Reachable: true,
			State:     catalog.StateReachableNoResolution,
		}
		if rec.Hint.Known() {
			r.Resolution, r.ProbeSource = rec.Hint, catalog.ProbeHint
		}
		out = append(out, r)
	}
	return out
}

// distinctPairs drops repeated (canonical, url) pairs; the first-seen record,
// and so its source, wins.
func distinctPairs(recs []catalog.ChannelRecord) []catalog.ChannelRecord {
	type key struct{ canonical, url string }
	seen := make(map[key]struct{}, len(recs))
	out := make([]catalog.ChannelRecord, 0, len(recs))
	for _, r := range recs {
		k := key{r.Canonical, r.URL}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
