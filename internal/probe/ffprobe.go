package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/snapetech/iptvsift/internal/catalog"
	"github.com/snapetech/iptvsift/internal/httpclient"
	"github.com/snapetech/iptvsift/internal/safeurl"
)

// DefaultKillGrace is how long a cancelled child may keep its pipes open
// after it was killed.
const DefaultKillGrace = 500 * time.Millisecond

// Slots caps concurrent probe child processes across all Runners sharing it.
type Slots = semaphore.Weighted

// NewSlots returns a cap of n concurrent children.
func NewSlots(n int) *Slots {
	if n <= 0 {
		n = 1
	}
	return semaphore.NewWeighted(int64(n))
}

// FFprobe runs the ffprobe binary. The zero value is not usable; use
// NewFFprobe.
type FFprobe struct {
	Path      string
	Timeout   time.Duration // per invocation; also bounded by ctx
	KillGrace time.Duration
	slots     *Slots
}

// NewFFprobe returns a runner for the binary at path sharing slots.
func NewFFprobe(path string, slots *Slots, timeout time.Duration) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	if slots == nil {
		slots = NewSlots(1)
	}
	return &FFprobe{Path: path, Timeout: timeout, KillGrace: DefaultKillGrace, slots: slots}
}

// Probe runs ffprobe against t. The child is killed when ctx is done.
func (f *FFprobe) Probe(ctx context.Context, t safeurl.Target) (Info, error) {
	out, err := runChild(ctx, f.slots, f.Timeout, f.KillGrace, f.Path, FFprobeArgs(t, f.Timeout)...)
	if err != nil {
		return Info{}, err
	}
	return ParseFFprobe(out)
}

// FFprobeArgs builds the ffprobe command line for t with protocol-specific
// input options ahead of the URL.
func FFprobeArgs(t safeurl.Target, timeout time.Duration) []string {
	args := []string{"-v", "error", "-hide_banner"}
	scheme, path := "", ""
	if u, err := url.Parse(t.URL); err == nil {
		scheme, path = strings.ToLower(u.Scheme), strings.ToLower(u.Path)
	}
	micros := fmt.Sprint(timeout.Microseconds())
	switch scheme {
	case "rtsp":
		args = append(args, "-rtsp_transport", "tcp", "-timeout", micros)
	case "udp", "rtp":
		args = append(args, "-f", "mpegts", "-fflags", "+discardcorrupt", "-err_detect", "ignore_err")
	case "http", "https":
		args = append(args, "-rw_timeout", micros, "-user_agent", httpclient.UserAgent)
		if t.Referer != "" {
			args = append(args, "-headers", "Referer: "+t.Referer+"\r\n")
		}
		switch {
		case strings.Contains(path, "/udp/") || strings.Contains(path, "/rtp/"):
			args = append(args, "-f", "mpegts", "-fflags", "+discardcorrupt", "-err_detect", "ignore_err")
		case IsPlaylistURL(t.URL):
			args = append(args, "-f", "hls", "-allowed_extensions", "ALL")
		}
	}
	return append(args, "-show_streams", "-show_format", "-of", "json", t.URL)
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		FieldOrder string `json:"field_order"`
	} `json:"streams"`
	Format struct {
		ProbeScore int `json:"probe_score"`
	} `json:"format"`
}

// ParseFFprobe reads ffprobe's JSON. Success needs probe_score > 0 and a
// stream with a positive width and height; the largest such stream wins.
func ParseFFprobe(out []byte) (Info, error) {
	var p ffprobeOutput
	if err := json.Unmarshal(out, &p); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if p.Format.ProbeScore <= 0 {
		return Info{}, fmt.Errorf("%w: probe_score %d", ErrNoStreams, p.Format.ProbeScore)
	}
	var info Info
	for _, s := range p.Streams {
		if s.Width <= 0 || s.Height <= 0 || s.Height <= info.Resolution.Height {
			continue
		}
		info.Resolution = catalog.Resolution{
			Width:      s.Width,
			Height:     s.Height,
			Interlaced: interlaced(s.FieldOrder),
		}
		info.Codec = s.CodecName
	}
	if !info.Resolution.Known() {
		return Info{}, ErrNoStreams
	}
	return info, nil
}

func interlaced(fieldOrder string) bool {
	switch fieldOrder {
	case "tt", "bb", "tb", "bt":
		return true
	}
	return false
}

// runChild runs one probe child holding a process slot. The timeout starts
// once the slot is held. A non-zero exit is treated as a transport failure;
// ffprobe exits non-zero for refused connections and timeouts alike.
func runChild(ctx context.Context, slots *Slots, timeout, grace time.Duration, path string, args ...string) ([]byte, error) {
	resume := httpclient.Waiting(ctx)
	err := slots.Acquire(ctx, 1)
	resume()
	if err != nil {
		return nil, err
	}
	defer slots.Release(1)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.WaitDelay = grace
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", path, httpclient.Cause(ctx))
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, transient(fmt.Errorf("%s exited %d: %s", path, exitErr.ExitCode(), msg))
	}
	return nil, err
}
