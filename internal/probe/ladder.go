package probe

import (
	"context"
	"errors"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/snapetech/iptvsift/internal/catalog"
	"github.com/snapetech/iptvsift/internal/httpclient"
	"github.com/snapetech/iptvsift/internal/logging"
	"github.com/snapetech/iptvsift/internal/metrics"
	"github.com/snapetech/iptvsift/internal/safeurl"
)

// MaxPlaylistTimeout bounds a nested playlist download.
const MaxPlaylistTimeout = 15 * time.Second

// LadderConfig wires a Ladder.
type LadderConfig struct {
	Client *http.Client
	// FFprobe is the direct media probe. Required.
	FFprobe Prober
	// MediaInfo is the optional last step. Leave nil when the utility is
	// not installed.
	MediaInfo Prober

	PlaylistTimeout time.Duration
	// Retries per step on transport errors. Default 2; negative disables.
	Retries int
	Backoff httpclient.Backoff
	// CacheSize is the number of playlist bodies kept for URLs shared by
	// several channels.
	CacheSize int

	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Outcome is the ladder's verdict for one URL.
type Outcome struct {
	Resolution catalog.Resolution
	Codec      string
	Source     catalog.ProbeSource
	// Reachable is true when any step got an answer from the server, even if
	// no resolution came out of it.
	Reachable bool
}

// Ladder runs the probe steps in order; the first success wins.
type Ladder struct {
	cfg    LadderConfig
	bodies *lru.Cache[string, []byte]
	log    logrus.FieldLogger
}

// NewLadder validates cfg and returns a Ladder.
func NewLadder(cfg LadderConfig) (*Ladder, error) {
	if cfg.FFprobe == nil {
		return nil, errors.New("probe: ladder needs a media prober")
	}
	if cfg.Client == nil {
		cfg.Client = httpclient.Default()
	}
	if cfg.PlaylistTimeout <= 0 || cfg.PlaylistTimeout > MaxPlaylistTimeout {
		cfg.PlaylistTimeout = MaxPlaylistTimeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = 2
	} else if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = httpclient.ProbeRetryPolicy.Backoff
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	bodies, err := lru.New[string, []byte](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = logging.Discard()
	}
	return &Ladder{cfg: cfg, bodies: bodies, log: log.WithField("component", "probe")}, nil
}

// Run probes t. On failure the returned error is a *Error naming the last
// step tried; Outcome.Reachable still reports whether the server answered.
func (l *Ladder) Run(ctx context.Context, t safeurl.Target) (Outcome, error) {
	var (
		out     Outcome
		lastErr error
	)
	probeTarget := t
	playlist := IsPlaylistURL(t.URL)
	var body []byte

	if playlist {
		var insp Inspection
		err := l.step(ctx, StepPlaylist, func(ctx context.Context) error {
			var err error
			if body, err = l.playlistBody(ctx, t); err != nil {
				return err
			}
			insp = InspectBody(t.URL, body)
			return nil
		})
		switch {
		case err != nil:
			lastErr = &Error{Step: StepPlaylist, Err: err}
		case insp.Resolution.Known():
			return Outcome{Resolution: insp.Resolution, Source: catalog.ProbePlaylist, Reachable: true}, nil
		case insp.SegmentURL == "":
			out.Reachable = true
		default:
			seg, err := safeurl.Sanitize(insp.SegmentURL)
			if err != nil {
				l.log.WithField("playlist", safeurl.Redact(t.URL)).WithError(err).Warn("probe: segment url rejected")
				lastErr = &Error{Step: StepPlaylist, Err: err}
				break
			}
			out.Reachable = true
			if seg.Referer == "" {
				seg.Referer = t.Referer
			}
			probeTarget = seg
		}
	}
	if ctx.Err() != nil {
		return out, &Error{Step: StepPlaylist, Err: httpclient.Cause(ctx)}
	}

	var info Info
	err := l.step(ctx, StepFFprobe, func(ctx context.Context) error {
		var err error
		info, err = l.cfg.FFprobe.Probe(ctx, probeTarget)
		return err
	})
	if err == nil {
		return Outcome{Resolution: info.Resolution, Codec: info.Codec, Source: catalog.ProbeFFprobe, Reachable: true}, nil
	}
	lastErr = &Error{Step: StepFFprobe, Err: err}
	if errors.Is(err, ErrNoStreams) {
		// The server answered; it just had nothing we could size.
		out.Reachable = true
	}
	if ctx.Err() != nil {
		return out, lastErr
	}

	if body != nil {
		if r, ok := InferFromPlaylist(body); ok {
			l.cfg.Metrics.ProbeStep(StepInfer, "ok")
			return Outcome{Resolution: r, Source: catalog.ProbeInferred, Reachable: true}, nil
		}
		l.cfg.Metrics.ProbeStep(StepInfer, "fail")
	}

	if l.cfg.MediaInfo != nil {
		err := l.step(ctx, StepMediaInfo, func(ctx context.Context) error {
			var err error
			info, err = l.cfg.MediaInfo.Probe(ctx, probeTarget)
			return err
		})
		if err == nil {
			return Outcome{Resolution: info.Resolution, Codec: info.Codec, Source: catalog.ProbeMediaInfo, Reachable: true}, nil
		}
		lastErr = &Error{Step: StepMediaInfo, Err: err}
	}
	return out, lastErr
}

func (l *Ladder) playlistBody(ctx context.Context, t safeurl.Target) ([]byte, error) {
	if body, ok := l.bodies.Get(t.URL); ok {
		return body, nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.PlaylistTimeout)
	defer cancel()
	body, err := FetchPlaylist(ctx, l.cfg.Client, t)
	if err != nil {
		return nil, err
	}
	l.bodies.Add(t.URL, body)
	return body, nil
}

// step runs fn, retrying transport failures with a short backoff.
func (l *Ladder) step(ctx context.Context, name string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			l.cfg.Metrics.ProbeStep(name, "ok")
			return nil
		}
		if !isTransient(err) || attempt >= l.cfg.Retries || ctx.Err() != nil {
			l.cfg.Metrics.ProbeStep(name, "fail")
			l.log.WithFields(logrus.Fields{"step": name, "attempts": attempt + 1}).WithError(err).Debug("probe: step failed")
			return err
		}
		if serr := httpclient.Sleep(ctx, l.cfg.Backoff.Delay(attempt)); serr != nil {
			l.cfg.Metrics.ProbeStep(name, "fail")
			return err
		}
	}
}
