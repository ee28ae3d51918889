// Package emit renders ranked channels as an extended playlist and as the
// line-oriented text format. Both walk categories and channels in taxonomy
// order, so equal inputs give byte-identical files.
package emit

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/snapetech/iptvsift/internal/cache"
	"github.com/snapetech/iptvsift/internal/catalog"
	"github.com/snapetech/iptvsift/internal/rank"
	"github.com/snapetech/iptvsift/internal/taxonomy"
)

// DefaultEPGURL is advertised in the playlist header when none is configured.
const DefaultEPGURL = "https://live.fanmingming.com/e.xml"

// TimestampHeader heads the trailing block of the text output.
const TimestampHeader = "更新时间"

const timestampLayout = "2006-01-02 15:04:05"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options for both writers.
type Options struct {
	EPGURL      string
	GeneratedAt time.Time
}

type entry struct {
	category, channel string
	r                 catalog.ValidationResult
}

// walk yields every kept URL in emission order.
func walk(tax *taxonomy.Taxonomy, out rank.Output, fn func(e entry)) {
	for _, cat := range tax.Categories() {
		for _, ch := range tax.Channels(cat) {
			for _, r := range out[ch] {
				fn(entry{category: cat, channel: ch, r: r})
			}
		}
	}
}

// DisplayName is the channel name with a "[W*H]" suffix when the resolution
// is known with confidence.
func DisplayName(canonical string, r catalog.ValidationResult) string {
	if res := r.DisplayResolution(); res.Known() {
		return canonical + "[" + res.String() + "]"
	}
	return canonical
}

// M3U writes the extended-playlist dialect.
func M3U(w io.Writer, tax *taxonomy.Taxonomy, out rank.Output, opts Options) error {
	epg := opts.EPGURL
	if epg == "" {
		epg = DefaultEPGURL
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#EXTM3U x-tvg-url=%q\n", epg)
	walk(tax, out, func(e entry) {
		fmt.Fprintf(bw, "#EXTINF:-1 tvg-name=\"%s\" group-title=\"%s\",%s\n%s\n",
			e.channel, e.category, DisplayName(e.channel, e.r), e.r.Record.URL)
	})
	return bw.Flush()
}

// Text writes the line-oriented dialect: a BOM, one "<category>,#genre#"
// block per non-empty category separated by blank lines, then a timestamp
// block.
func Text(w io.Writer, tax *taxonomy.Taxonomy, out rank.Output, opts Options) error {
	bw := bufio.NewWriter(w)
	bw.Write(utf8BOM)
	current := ""
	walk(tax, out, func(e entry) {
		if e.category != current {
			if current != "" {
				bw.WriteString("\n")
			}
			current = e.category
			fmt.Fprintf(bw, "%s,#genre#\n", e.category)
		}
		fmt.Fprintf(bw, "%s,%s\n", DisplayName(e.channel, e.r), e.r.Record.URL)
	})
	if current != "" {
		bw.WriteString("\n")
	}
	at := opts.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}
	fmt.Fprintf(bw, "%s,#genre#\n%s\n", TimestampHeader, at.Format(timestampLayout))
	return bw.Flush()
}

// WriteFiles renders both dialects and replaces each file atomically. An
// empty path skips that dialect.
func WriteFiles(m3uPath, txtPath string, tax *taxonomy.Taxonomy, out rank.Output, opts Options) error {
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now()
	}
	for _, f := range []struct {
		path   string
		render func(io.Writer, *taxonomy.Taxonomy, rank.Output, Options) error
	}{
		{m3uPath, M3U},
		{txtPath, Text},
	} {
		if f.path == "" {
			continue
		}
		var buf bytes.Buffer
		if err := f.render(&buf, tax, out, opts); err != nil {
			return fmt.Errorf("emit %s: %w", f.path, err)
		}
		if err := cache.WriteFileAtomic(f.path, buf.Bytes()); err != nil {
			return fmt.Errorf("emit %s: %w", f.path, err)
		}
	}
	return nil
}
