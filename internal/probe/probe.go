// Package probe implements the techniques used to decide whether a stream
// URL is alive and what resolution it carries: a HEAD/GET reachability
// check, nested-playlist inspection, an external media probe, content
// inference and an optional secondary media-info utility. Ladder runs them
// in order.
package probe

import (
	"context"
	"errors"
	"fmt"

	"github.com/snapetech/iptvsift/internal/catalog"
	"github.com/snapetech/iptvsift/internal/safeurl"
)

// Step names, also used as metric labels.
const (
	StepReach     = "reachability"
	StepPlaylist  = "playlist"
	StepFFprobe   = "ffprobe"
	StepInfer     = "inferred"
	StepMediaInfo = "mediainfo"
)

// Error is a failed probe step.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("probe %s: %v", e.Step, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// ErrNoStreams means the probe ran but reported no video stream with a size.
var ErrNoStreams = errors.New("no video streams")

// transientError marks a transport-level failure worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func isTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Info is what a media probe reports about a stream.
type Info struct {
	Resolution catalog.Resolution
	Codec      string
}

// Prober is an external media probe.
type Prober interface {
	Probe(ctx context.Context, t safeurl.Target) (Info, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, t safeurl.Target) (Info, error)

func (f ProberFunc) Probe(ctx context.Context, t safeurl.Target) (Info, error) { return f(ctx, t) }
