// Package playlist turns source bodies into raw channel records. The body's
// dialect is decided once by Detect; each dialect has its own parser and
// both produce catalog.RawRecord.
package playlist

import (
	"bufio"
	"bytes"
	"errors"
	"strings"

	"github.com/snapetech/iptvsift/internal/catalog"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// ErrUnrecognized means a body is neither dialect: it has content but no
// "#EXTM3U" header and no line with a comma.
var ErrUnrecognized = errors.New("playlist: unrecognized format")

// Format is the dialect of a body.
type Format int

const (
	FormatText     Format = iota // name,url lines with #genre# headers
	FormatExtended               // #EXTM3U / #EXTINF
)

func (f Format) String() string {
	if f == FormatExtended {
		return "m3u"
	}
	return "txt"
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Detect reports FormatExtended when the first non-whitespace content, after
// an optional UTF-8 BOM, is the literal tag #EXTM3U.
func Detect(body []byte) Format {
	b := bytes.TrimPrefix(body, utf8BOM)
	b = bytes.TrimLeft(b, " \t\r\n\f\v")
	if bytes.HasPrefix(b, []byte("#EXTM3U")) {
		return FormatExtended
	}
	return FormatText
}

var parsers = map[Format]func([]byte) ([]catalog.RawRecord, error){
	FormatExtended: parseExtended,
	FormatText:     parseText,
}

// Parse detects the dialect and parses body. An empty body, or an extended
// playlist without #EXTINF entries, yields no records and no error.
func Parse(body []byte) ([]catalog.RawRecord, Format, error) {
	f := Detect(body)
	recs, err := parsers[f](bytes.TrimPrefix(body, utf8BOM))
	return recs, f, err
}

// streamPrefixes are the URL schemes a text-dialect line is split on.
var streamPrefixes = []string{"http://", "https://", "rtmp://", "rtsp://", "mms://", "udp://", "rtp://"}

func isStreamURL(s string) bool {
	for _, p := range streamPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func scanLines(body []byte, fn func(line string)) error {
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(nil, maxLineSize)
	for sc.Scan() {
		fn(sc.Text())
	}
	return sc.Err()
}

func newRecord(name, url, group string) (catalog.RawRecord, bool) {
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	if name == "" || url == "" {
		return catalog.RawRecord{}, false
	}
	hint := ResolutionHint(url)
	if !hint.Known() {
		hint = ResolutionHint(name)
	}
	return catalog.RawRecord{Name: name, URL: url, GroupHint: strings.TrimSpace(group), Hint: hint}, true
}

// ─── Extended dialect ────────────────────────────────────────────────────────

func parseExtended(body []byte) ([]catalog.RawRecord, error) {
	var (
		out     []catalog.RawRecord
		pending map[string]string
	)
	err := scanLines(body, func(raw string) {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXTINF:"):
			pending = parseEXTINF(line)
		case strings.HasPrefix(line, "#"):
		case pending != nil && isStreamURL(line):
			name := pending["name"]
			if v := strings.TrimSpace(pending["tvg-name"]); v != "" {
				name = v
			}
			if rec, ok := newRecord(name, line, pending["group-title"]); ok {
				out = append(out, rec)
			}
			pending = nil
		}
	})
	return out, err
}

// parseEXTINF splits "#EXTINF:-1 k="v" k2='v2',Display Name" into an
// attribute map; the display name is stored under "name". The attribute
// list ends at the first comma outside a quoted value and the display name
// is whatever follows the last comma.
func parseEXTINF(line string) map[string]string {
	m := make(map[string]string)
	line = strings.TrimPrefix(line, "#EXTINF:")
	if idx := firstUnquotedComma(line); idx >= 0 {
		name := line[idx+1:]
		if last := strings.LastIndexByte(name, ','); last >= 0 {
			name = name[last+1:]
		}
		m["name"] = strings.TrimSpace(name)
		line = line[:idx]
	}
	for {
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			break
		}
		before := strings.TrimSpace(line[:eq])
		key := before
		if idx := strings.LastIndex(before, " "); idx >= 0 {
			key = strings.TrimSpace(before[idx+1:])
		}
		line = strings.TrimSpace(line[eq+1:])
		if len(line) < 2 {
			break
		}
		quote := line[0]
		if quote != '"' && quote != '\'' {
			break
		}
		line = line[1:]
		end := strings.IndexByte(line, quote)
		if end < 0 {
			break
		}
		m[strings.ToLower(key)] = line[:end]
		line = line[end+1:]
	}
	return m
}

func firstUnquotedComma(s string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			if i > 0 && s[i-1] == '=' {
				quote = c
			}
		case c == ',':
			return i
		}
	}
	return -1
}

// ─── Text dialect ────────────────────────────────────────────────────────────

func parseText(body []byte) ([]catalog.RawRecord, error) {
	var (
		out      []catalog.RawRecord
		group    string
		content  bool
		anyComma bool
	)
	err := scanLines(body, func(raw string) {
		line := strings.TrimSpace(raw)
		if line == "" {
			return
		}
		content = true
		if !strings.Contains(line, ",") {
			return
		}
		anyComma = true
		if g, ok := genreHeader(line); ok {
			group = g
			return
		}
		name, url := splitTextLine(line)
		if rec, ok := newRecord(name, url, group); ok {
			out = append(out, rec)
		}
	})
	if err != nil {
		return out, err
	}
	if content && !anyComma {
		return nil, ErrUnrecognized
	}
	return out, nil
}

func genreHeader(line string) (string, bool) {
	for _, suf := range []string{",#genre#", ",genre#"} {
		if strings.HasSuffix(line, suf) {
			return strings.TrimSpace(strings.TrimSuffix(line, suf)), true
		}
	}
	return "", false
}

// splitTextLine splits at the earliest stream-protocol prefix, or at the
// last comma when the line has none.
func splitTextLine(line string) (name, url string) {
	at := -1
	for _, p := range streamPrefixes {
		if i := strings.Index(line, p); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	if at >= 0 {
		name = strings.TrimSpace(line[:at])
		name = strings.TrimSpace(strings.TrimSuffix(name, ","))
		return name, line[at:]
	}
	i := strings.LastIndex(line, ",")
	return line[:i], line[i+1:]
}
