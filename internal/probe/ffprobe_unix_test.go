//go:build unix

package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/snapetech/iptvsift/internal/catalog"
	"github.com/snapetech/iptvsift/internal/httpclient"
	"github.com/snapetech/iptvsift/internal/safeurl"
)

const fullHDJSON = `{"streams":[{"codec_type":"video","codec_name":"h264","width":1920,"height":1080}],"format":{"probe_score":100}}`

// fakeBinary writes an executable shell script standing in for ffprobe.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	p := filepath.Join(t.TempDir(), "ffprobe")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFFprobe_realChild(t *testing.T) {
	bin := fakeBinary(t, "echo '"+fullHDJSON+"'\n")
	info, err := NewFFprobe(bin, NewSlots(1), 5*time.Second).Probe(context.Background(), safeurl.Target{URL: "rtp://239.1.1.1:5000"})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Resolution != (catalog.Resolution{Width: 1920, Height: 1080}) || info.Codec != "h264" {
		t.Errorf("info = %+v", info)
	}
}

func TestFFprobe_childKilledOnCancel(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "pid")
	bin := fakeBinary(t, "echo $$ > "+pidFile+"\nexec sleep 30\n")
	const base = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := NewFFprobe(bin, NewSlots(1), 30*time.Second).Probe(ctx, safeurl.Target{URL: "udp://239.1.1.1:5000"})
		errc <- err
	}()

	var pid int
	for deadline := time.Now().Add(2 * time.Second); pid == 0; {
		if b, err := os.ReadFile(pidFile); err == nil {
			pid, _ = strconv.Atoi(strings.TrimSpace(string(b)))
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("child never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	start := time.Now()
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(base):
		t.Fatal("Probe did not return within one base timeout of cancel")
	}
	if elapsed := time.Since(start); elapsed > base {
		t.Errorf("cancel took %v", elapsed)
	}
	if err := syscall.Kill(pid, 0); !errors.Is(err, syscall.ESRCH) {
		t.Errorf("child %d still alive after cancel: %v", pid, err)
	}
}

func TestFFprobe_timeoutStartsAfterSlot(t *testing.T) {
	bin := fakeBinary(t, "sleep 0.3\necho '"+fullHDJSON+"'\n")
	f := NewFFprobe(bin, NewSlots(1), 2*time.Second)

	errc := make(chan error, 2)
	for range 2 {
		go func() {
			ctx, cancel := httpclient.WithBudget(context.Background(), 500*time.Millisecond)
			defer cancel()
			_, err := f.Probe(ctx, safeurl.Target{URL: "rtp://239.1.1.1:5000"})
			errc <- err
		}()
	}
	for range 2 {
		if err := <-errc; err != nil {
			t.Errorf("queued probe failed: %v", err)
		}
	}
}
