// Package pipeline runs one aggregation pass: fetch every source, parse and
// normalize the records, validate the stream URLs, rank them and write both
// playlists.
//
// Component errors are contained where they happen and show up as log lines
// and counters. Only a *FatalError stops a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapetech/iptvsift/internal/cache"
	"github.com/snapetech/iptvsift/internal/catalog"
	"github.com/snapetech/iptvsift/internal/config"
	"github.com/snapetech/iptvsift/internal/emit"
	"github.com/snapetech/iptvsift/internal/fetch"
	"github.com/snapetech/iptvsift/internal/httpclient"
	"github.com/snapetech/iptvsift/internal/logging"
	"github.com/snapetech/iptvsift/internal/metrics"
	"github.com/snapetech/iptvsift/internal/normalize"
	"github.com/snapetech/iptvsift/internal/playlist"
	"github.com/snapetech/iptvsift/internal/probe"
	"github.com/snapetech/iptvsift/internal/rank"
	"github.com/snapetech/iptvsift/internal/safeurl"
	"github.com/snapetech/iptvsift/internal/source"
	"github.com/snapetech/iptvsift/internal/taxonomy"
	"github.com/snapetech/iptvsift/internal/validate"
)

// Fatal reasons.
const (
	ReasonNoSources  = "no usable sources"
	ReasonAllFailed  = "every source failed"
	ReasonNoChannels = "no canonical channels survived normalization"
	ReasonCache      = "cache file cannot be written"
	ReasonOutput     = "output not writable"
	ReasonTaxonomy   = "taxonomy unusable"
	ReasonProbeSetup = "probe setup failed"
)

// FatalError ends a run with a non-zero exit status.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err)
	}
	return "fatal: " + e.Reason
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(reason string, err error) *FatalError { return &FatalError{Reason: reason, Err: err} }

// Summary holds the run totals written to the last log line.
type Summary struct {
	SourcesOK         int
	SourcesFailed     int
	RecordsParsed     int
	RecordsNormalized int
	URLsValidated     int
	URLsKept          int
	Channels          int
	// ChannelsBelowFloor lists emitted channels with fewer URLs than the
	// configured floor.
	ChannelsBelowFloor []string
	// Partial is set when the run was interrupted.
	Partial  bool
	Wrote    bool
	Duration time.Duration
}

// Deps are the collaborators Run would otherwise build from the config.
// Every field is optional.
type Deps struct {
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	Client  *http.Client
	// Prober replaces ffprobe. When set, MediaInfo is used as given and no
	// binary is looked up.
	Prober    probe.Prober
	MediaInfo probe.Prober
}

// Run executes one pass. It returns ctx.Err() when interrupted before any
// output was written; an interrupted run that still wrote best-effort output
// returns nil with Summary.Partial set.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (sum Summary, err error) {
	start := time.Now()
	base := deps.Log
	if base == nil {
		base = logging.Discard()
	}
	log := base.WithField("component", "pipeline")
	m := deps.Metrics

	defer func() {
		sum.Duration = time.Since(start)
		entry := log.WithFields(logrus.Fields{
			"sources_ok":         sum.SourcesOK,
			"sources_failed":     sum.SourcesFailed,
			"records_parsed":     sum.RecordsParsed,
			"records_normalized": sum.RecordsNormalized,
			"urls_validated":     sum.URLsValidated,
			"urls_kept":          sum.URLsKept,
			"partial":            sum.Partial,
			"duration":           sum.Duration.Round(time.Millisecond).String(),
		})
		if err != nil {
			entry = entry.WithError(err)
		}
		m.SetURLsKept(sum.URLsKept)
		if werr := m.WriteTextfile(cfg.MetricsFile); werr != nil {
			log.WithError(werr).Warn("pipeline: metrics textfile not written")
		}
		entry.Info("pipeline: run summary")
	}()

	tax, err := loadTaxonomy(cfg.Taxonomy)
	if err != nil {
		return sum, fatal(ReasonTaxonomy, err)
	}
	srcs, err := loadSources(cfg.Sources, log)
	if err != nil {
		return sum, fatal(ReasonNoSources, err)
	}
	if len(srcs) == 0 {
		return sum, fatal(ReasonNoSources, nil)
	}

	client := deps.Client
	if client == nil {
		client = httpclient.New(httpclient.Options{
			InsecureTLS: cfg.InsecureTLS,
			Limiter:     httpclient.NewHostLimiter(cfg.HostRate, cfg.HostConcurrency),
		})
	}

	// ─── Fetch ───────────────────────────────────────────────────────────────
	t0 := time.Now()
	store := cache.Open(cfg.CacheFile, cfg.CacheTTL, base.WithField("component", "cache"))
	fetcher := fetch.New(fetch.Config{
		Client:     client,
		Cache:      store,
		MaxRetries: cfg.MaxRetries,
		Workers:    cfg.FetchWorkers(),
		Log:        base,
		Metrics:    m,
	})
	fetched := fetcher.FetchAll(ctx, srcs)
	if err := store.Save(); err != nil {
		return sum, fatal(ReasonCache, err)
	}
	m.Stage("fetch", t0)
	sum.Partial = ctx.Err() != nil

	// ─── Parse and normalize ─────────────────────────────────────────────────
	t0 = time.Now()
	norm := normalize.New(tax, normalize.Options{MinHeight: cfg.MinHeight, StrictHD: cfg.StrictHD})
	var (
		recs               []catalog.ChannelRecord
		unresolved, lowDef int
	)
	for _, r := range fetched {
		if r.Err != nil {
			sum.SourcesFailed++
			continue
		}
		raws, format, perr := playlist.Parse(r.Body)
		if perr != nil {
			sum.SourcesFailed++
			log.WithField("location", safeurl.Redact(r.Source.Location)).WithError(perr).Warn("pipeline: source skipped")
			continue
		}
		if want := r.Source.Format; want != "" && want != format.String() {
			log.WithFields(logrus.Fields{
				"location": safeurl.Redact(r.Source.Location),
				"declared": want,
				"detected": format.String(),
			}).Debug("pipeline: declared format differs")
		}
		sum.SourcesOK++
		sum.RecordsParsed += len(raws)
		for _, raw := range raws {
			rec, v := norm.Normalize(raw, r.Source.Location)
			switch v {
			case normalize.Kept:
				recs = append(recs, rec)
			case normalize.Unresolved:
				unresolved++
			case normalize.LowDefinition:
				lowDef++
			}
		}
	}
	sum.RecordsNormalized = len(recs)
	m.Records("parsed", sum.RecordsParsed)
	m.Records("normalized", sum.RecordsNormalized)
	m.Records("unresolved", unresolved)
	m.Records("low_definition", lowDef)
	m.Stage("normalize", t0)
	log.WithFields(logrus.Fields{
		"sources":    sum.SourcesOK,
		"parsed":     sum.RecordsParsed,
		"kept":       sum.RecordsNormalized,
		"unresolved": unresolved,
		"low_def":    lowDef,
	}).Info("pipeline: normalized")

	if sum.SourcesOK == 0 {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		return sum, fatal(ReasonAllFailed, nil)
	}
	if len(recs) == 0 {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		return sum, fatal(ReasonNoChannels, nil)
	}

	// ─── Validate ────────────────────────────────────────────────────────────
	t0 = time.Now()
	var results []catalog.ValidationResult
	if cfg.NoValidate {
		results = validate.Unvalidated(recs)
	} else {
		v, err := newValidator(cfg, deps, client, base)
		if err != nil {
			return sum, fatal(ReasonProbeSetup, err)
		}
		var partial bool
		results, partial = v.Run(ctx, recs)
		sum.Partial = sum.Partial || partial
		sum.URLsValidated = len(results)
	}
	m.Records("validated", sum.URLsValidated)
	m.Stage("validate", t0)

	if sum.Partial && cfg.NoPartialOutput {
		return sum, ctx.Err()
	}

	// ─── Rank and emit ───────────────────────────────────────────────────────
	t0 = time.Now()
	out := rank.Rank(results, cfg.URLCap)
	sum.URLsKept = out.Len()
	sum.Channels = len(out)
	sum.ChannelsBelowFloor = out.Below(cfg.URLFloor)
	for _, ch := range sum.ChannelsBelowFloor {
		log.WithFields(logrus.Fields{"channel": ch, "urls": len(out[ch]), "floor": cfg.URLFloor}).Info("pipeline: channel below url floor")
	}
	if sum.URLsKept == 0 {
		if sum.Partial {
			// Keep the previous files rather than replace them with nothing.
			return sum, ctx.Err()
		}
		log.Warn("pipeline: no reachable urls; writing empty playlists")
	}

	opts := emit.Options{EPGURL: cfg.EPGURL, GeneratedAt: cfg.BuildTime}
	if err := emit.WriteFiles(cfg.OutputM3U, cfg.OutputTxt, tax, out, opts); err != nil {
		return sum, fatal(ReasonOutput, err)
	}
	sum.Wrote = true
	m.Stage("emit", t0)
	if sum.Partial {
		log.Warn("pipeline: interrupted; wrote partial output")
	}
	return sum, nil
}

func loadTaxonomy(path string) (*taxonomy.Taxonomy, error) {
	if path == "" {
		return taxonomy.Default(), nil
	}
	return taxonomy.LoadFile(path)
}

func loadSources(path string, log logrus.FieldLogger) ([]source.Source, error) {
	if path == "" {
		return source.Builtin(), nil
	}
	srcs, bad, err := source.LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, e := range bad {
		log.WithError(e).Warn("pipeline: source entry skipped")
	}
	return srcs, nil
}

func newValidator(cfg *config.Config, deps Deps, client *http.Client, log logrus.FieldLogger) (*validate.Validator, error) {
	prober, mediaInfo := deps.Prober, deps.MediaInfo
	if prober == nil {
		slots := probe.NewSlots(cfg.ProbeSlots())
		if _, err := exec.LookPath(cfg.FFprobe); err != nil {
			log.WithFields(logrus.Fields{"component": "pipeline", "ffprobe": cfg.FFprobe}).Warn("pipeline: ffprobe not found; only playlist resolutions will be found")
		}
		prober = probe.NewFFprobe(cfg.FFprobe, slots, cfg.ProbeDeadline())
		if mi := probe.LookupMediaInfo(cfg.MediaInfo, slots, cfg.ProbeDeadline()); mi != nil {
			mediaInfo = mi
		}
	}
	ladder, err := probe.NewLadder(probe.LadderConfig{
		Client:          client,
		FFprobe:         prober,
		MediaInfo:       mediaInfo,
		PlaylistTimeout: cfg.Timeout,
		Log:             log,
		Metrics:         deps.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return validate.New(validate.Config{
		Client:       client,
		Ladder:       ladder,
		Timeout:      cfg.Timeout,
		Deadline:     cfg.ProbeDeadline(),
		Workers:      cfg.ValidateWorkers(),
		NoResolution: cfg.NoResolution,
		Log:          log,
		Metrics:      deps.Metrics,
	})
}

// IsFatal reports whether err ends the run with a failure status.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
