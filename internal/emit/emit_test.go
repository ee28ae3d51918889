package emit

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/snapetech/iptvsift/internal/catalog"
	"github.com/snapetech/iptvsift/internal/normalize"
	"github.com/snapetech/iptvsift/internal/playlist"
	"github.com/snapetech/iptvsift/internal/rank"
	"github.com/snapetech/iptvsift/internal/taxonomy"
)

var (
	fullHD  = catalog.Resolution{Width: 1920, Height: 1080}
	builtAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
)

func probed(rec catalog.ChannelRecord, res catalog.Resolution, src catalog.ProbeSource) catalog.ValidationResult {
	return catalog.ValidationResult{
		Record: rec, Reachable: true, Resolution: res, ProbeSource: src,
		State: catalog.StateReachableWithResolution,
	}
}

// dedupedCCTV parses, normalizes and probes a text list where one channel
// appears twice under two aliases.
func dedupedCCTV(t *testing.T) (*taxonomy.Taxonomy, rank.Output) {
	t.Helper()
	body := "央视频道,#genre#\n" +
		"CCTV-1,http://host/cctv1.m3u8\n" +
		"CCTV-1 HD,http://host/cctv1.m3u8\n" +
		"CCTV-2 财经,http://host/cctv2.m3u8\n"
	raws, _, err := playlist.Parse([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	tax := taxonomy.Default()
	n := normalize.New(tax, normalize.Options{})
	var results []catalog.ValidationResult
	for _, raw := range raws {
		rec, v := n.Normalize(raw, "a.txt")
		if v != normalize.Kept {
			t.Fatalf("%q: %v", raw.Name, v)
		}
		results = append(results, probed(rec, fullHD, catalog.ProbeFFprobe))
	}
	return tax, rank.Rank(results, rank.DefaultCap)
}

func TestText_dedupeAndSuffix(t *testing.T) {
	tax, out := dedupedCCTV(t)
	var buf bytes.Buffer
	if err := Text(&buf, tax, out, Options{GeneratedAt: builtAt}); err != nil {
		t.Fatal(err)
	}
	want := "\xEF\xBB\xBF" +
		"央视频道,#genre#\n" +
		"CCTV1[1920*1080],http://host/cctv1.m3u8\n" +
		"CCTV2[1920*1080],http://host/cctv2.m3u8\n" +
		"\n" +
		"更新时间,#genre#\n" +
		"2026-01-02 03:04:05\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("text output (-want +got):\n%s", diff)
	}
}

func TestM3U_dedupeAndSuffix(t *testing.T) {
	tax, out := dedupedCCTV(t)
	var buf bytes.Buffer
	if err := M3U(&buf, tax, out, Options{EPGURL: "http://epg/e.xml"}); err != nil {
		t.Fatal(err)
	}
	want := `#EXTM3U x-tvg-url="http://epg/e.xml"
#EXTINF:-1 tvg-name="CCTV1" group-title="央视频道",CCTV1[1920*1080]
http://host/cctv1.m3u8
#EXTINF:-1 tvg-name="CCTV2" group-title="央视频道",CCTV2[1920*1080]
http://host/cctv2.m3u8
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("m3u output (-want +got):\n%s", diff)
	}
}

func TestText_orderAndSuffixes(t *testing.T) {
	tax := taxonomy.Default()
	rec := func(ch, url string) catalog.ChannelRecord {
		cat, _ := tax.CategoryOf(ch)
		return catalog.ChannelRecord{Canonical: ch, Category: cat, URL: url, Name: ch}
	}
	out := rank.Rank([]catalog.ValidationResult{
		probed(rec("湖南卫视", "http://h/hn"), fullHD, catalog.ProbeInferred),
		probed(rec("CCTV2", "http://h/c2"), catalog.Resolution{}, ""),
		probed(rec("CCTV1", "http://h/c1"), fullHD, catalog.ProbePlaylist),
	}, 90)

	var buf bytes.Buffer
	if err := Text(&buf, tax, out, Options{GeneratedAt: builtAt}); err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimPrefix(buf.String(), "\xEF\xBB\xBF"), "\n")
	want := []string{
		"央视频道,#genre#",
		"CCTV1[1920*1080],http://h/c1",
		"CCTV2,http://h/c2",
		"",
		"卫视频道,#genre#",
		"湖南卫视,http://h/hn",
		"",
		"更新时间,#genre#",
		"2026-01-02 03:04:05",
		"",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lines (-want +got):\n%s", diff)
	}
}

func TestText_empty(t *testing.T) {
	var buf bytes.Buffer
	if err := Text(&buf, taxonomy.Default(), rank.Output{}, Options{GeneratedAt: builtAt}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "\xEF\xBB\xBF更新时间,#genre#\n2026-01-02 03:04:05\n" {
		t.Errorf("empty output = %q", got)
	}
}

// Emitted files are valid inputs: every (channel, url) pair survives a
// parse and re-normalization.
func TestRoundTrip(t *testing.T) {
	tax := taxonomy.Default()
	n := normalize.New(tax, normalize.Options{})
	rec := func(ch, url string) catalog.ChannelRecord {
		cat, _ := tax.CategoryOf(ch)
		return catalog.ChannelRecord{Canonical: ch, Category: cat, URL: url, Name: ch}
	}
	out := rank.Rank([]catalog.ValidationResult{
		probed(rec("CCTV1", "http://h/c1.m3u8"), fullHD, catalog.ProbeFFprobe),
		probed(rec("CCTV5+", "rtp://239.1.1.5:5000"), catalog.Resolution{Width: 3840, Height: 2160}, catalog.ProbeFFprobe),
		probed(rec("凤凰卫视中文台", "http://h/fh.m3u8$http://ref/"), catalog.Resolution{}, ""),
		probed(rec("CCTV4K", "http://h/4k.m3u8"), catalog.Resolution{Width: 3840, Height: 2160}, catalog.ProbePlaylist),
	}, 90)

	type pair struct{ ch, url string }
	var want []pair
	walk(tax, out, func(e entry) { want = append(want, pair{e.channel, e.r.Record.URL}) })

	for name, render := range map[string]func(*bytes.Buffer) error{
		"text": func(b *bytes.Buffer) error { return Text(b, tax, out, Options{GeneratedAt: builtAt}) },
		"m3u":  func(b *bytes.Buffer) error { return M3U(b, tax, out, Options{}) },
	} {
		var buf bytes.Buffer
		if err := render(&buf); err != nil {
			t.Fatal(err)
		}
		raws, _, err := playlist.Parse(buf.Bytes())
		if err != nil {
			t.Fatalf("%s: reparse: %v", name, err)
		}
		var got []pair
		for _, raw := range raws {
			r, v := n.Normalize(raw, "out")
			if v != normalize.Kept {
				t.Errorf("%s: %q did not re-normalize: %v", name, raw.Name, v)
				continue
			}
			got = append(got, pair{r.Canonical, r.URL})
		}
		if diff := cmp.Diff(want, got, cmp.AllowUnexported(pair{})); diff != "" {
			t.Errorf("%s round trip (-want +got):\n%s", name, diff)
		}
	}
}

func TestWriteFiles(t *testing.T) {
	tax, out := dedupedCCTV(t)
	dir := t.TempDir()
	m3uPath, txtPath := filepath.Join(dir, "result.m3u"), filepath.Join(dir, "result.txt")
	if err := WriteFiles(m3uPath, txtPath, tax, out, Options{GeneratedAt: builtAt}); err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}
	for _, p := range []string{m3uPath, txtPath} {
		b, err := os.ReadFile(p)
		if err != nil || !bytes.Contains(b, []byte("http://host/cctv2.m3u8")) {
			t.Errorf("%s: %v %q", p, err, b)
		}
	}

	if err := WriteFiles(filepath.Join(dir, "missing", "x.m3u"), "", tax, out, Options{}); err == nil {
		t.Error("WriteFiles into a missing directory succeeded")
	}
}
