package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/iptvsift/internal/catalog"
	"github.com/snapetech/iptvsift/internal/safeurl"
)

// MediaInfo runs the mediainfo utility as a last-resort probe.
type MediaInfo struct {
	Path      string
	Timeout   time.Duration
	KillGrace time.Duration
	slots     *Slots
}

// LookupMediaInfo returns a runner when the binary can be found, or nil.
func LookupMediaInfo(path string, slots *Slots, timeout time.Duration) *MediaInfo {
	if path == "" {
		path = "mediainfo"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil
	}
	if slots == nil {
		slots = NewSlots(1)
	}
	return &MediaInfo{Path: resolved, Timeout: timeout, KillGrace: DefaultKillGrace, slots: slots}
}

// Probe runs mediainfo against t.URL. mediainfo has no header option, so the
// Referer is not sent.
func (m *MediaInfo) Probe(ctx context.Context, t safeurl.Target) (Info, error) {
	out, err := runChild(ctx, m.slots, m.Timeout, m.KillGrace, m.Path, "--Output=JSON", t.URL)
	if err != nil {
		return Info{}, err
	}
	return ParseMediaInfo(out)
}

type mediaInfoOutput struct {
	Media struct {
		Track []struct {
			Type     string `json:"@type"`
			Format   string `json:"Format"`
			Width    string `json:"Width"`
			Height   string `json:"Height"`
			ScanType string `json:"ScanType"`
		} `json:"track"`
	} `json:"media"`
}

// ParseMediaInfo reads mediainfo's JSON and returns the first video track
// with a size.
func ParseMediaInfo(out []byte) (Info, error) {
	var p mediaInfoOutput
	if err := json.Unmarshal(out, &p); err != nil {
		return Info{}, fmt.Errorf("parse mediainfo output: %w", err)
	}
	for _, tr := range p.Media.Track {
		if tr.Type != "Video" {
			continue
		}
		w, _ := strconv.Atoi(strings.TrimSpace(tr.Width))
		h, _ := strconv.Atoi(strings.TrimSpace(tr.Height))
		if w > 0 && h > 0 {
			return Info{
				Resolution: catalog.Resolution{Width: w, Height: h, Interlaced: strings.EqualFold(tr.ScanType, "Interlaced")},
				Codec:      strings.ToLower(tr.Format),
			}, nil
		}
	}
	return Info{}, ErrNoStreams
}
