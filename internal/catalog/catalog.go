// Package catalog holds the record types that flow through the pipeline:
// raw parser output, normalized channel records and validation results.
package catalog

import (
	"fmt"
	"time"
)

// Resolution is a video frame size. The zero value means unknown.
type Resolution struct {
	Width      int  `json:"width,omitempty"`
	Height     int  `json:"height,omitempty"`
	Interlaced bool `json:"interlaced,omitempty"`
}

// Known reports whether both dimensions are positive.
func (r Resolution) Known() bool { return r.Width > 0 && r.Height > 0 }

// String renders the resolution as it appears in output names, e.g. "1920*1080".
func (r Resolution) String() string {
	if !r.Known() {
		return ""
	}
	return fmt.Sprintf("%d*%d", r.Width, r.Height)
}

// RawRecord is one playlist entry as parsed, before alias resolution.
type RawRecord struct {
	Name      string
	URL       string
	GroupHint string     // group-title attribute or current #genre# header
	Hint      Resolution // advisory, taken from URL patterns
}

// ChannelRecord is a RawRecord whose name resolved to a canonical channel.
type ChannelRecord struct {
	Canonical string     `json:"canonical"`
	Category  string     `json:"category"`
	URL       string     `json:"url"`
	Source    string     `json:"source"` // location of the source that contributed it
	Name      string     `json:"name"`   // raw name, kept for token-based ranking
	Hint      Resolution `json:"hint,omitempty"`
}

// ProbeSource identifies which probe step produced a resolution.
type ProbeSource string

const (
	ProbeNone      ProbeSource = ""
	ProbePlaylist  ProbeSource = "playlist"  // #EXT-X-STREAM-INF RESOLUTION
	ProbeFFprobe   ProbeSource = "ffprobe"   // direct media probe
	ProbeInferred  ProbeSource = "inferred"  // keyword/bitrate inference; low confidence
	ProbeMediaInfo ProbeSource = "mediainfo" // secondary utility
	ProbeHint      ProbeSource = "hint"      // URL pattern only; never probed
)

// Confident reports whether a resolution from this source may be printed.
func (p ProbeSource) Confident() bool {
	switch p {
	case ProbePlaylist, ProbeFFprobe, ProbeMediaInfo:
		return true
	}
	return false
}

// State is the per-URL validation state.
//
//	new ──► probing ──► reachable_with_resolution
//	          │    └──► reachable_no_resolution
//	          └──────► unreachable
type State string

const (
	StateNew                     State = "new"
	StateProbing                 State = "probing"
	StateReachableWithResolution State = "reachable_with_resolution"
	StateReachableNoResolution   State = "reachable_no_resolution"
	StateUnreachable             State = "unreachable"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateReachableWithResolution || s == StateReachableNoResolution || s == StateUnreachable
}

// Valid reports whether the URL may appear in output.
func (s State) Valid() bool {
	return s == StateReachableWithResolution || s == StateReachableNoResolution
}

// ValidationResult is the verdict for one (canonical, url) pair.
type ValidationResult struct {
	Record      ChannelRecord `json:"record"`
	Reachable   bool          `json:"reachable"`
	Resolution  Resolution    `json:"resolution,omitempty"`
	Codec       string        `json:"codec,omitempty"`
	ProbeSource ProbeSource   `json:"probe_source,omitempty"`
	State       State         `json:"state"`
	Err         string        `json:"error,omitempty"`
	Elapsed     time.Duration `json:"elapsed,omitempty"`
}

// DisplayResolution returns the resolution to print next to the channel name,
// or the zero value when it is not known with confidence.
func (v ValidationResult) DisplayResolution() Resolution {
	if v.ProbeSource.Confident() && v.Resolution.Known() {
		return v.Resolution
	}
	return Resolution{}
}
