// Package source is the registry of upstream playlist locations.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInput marks a malformed location or source list.
var ErrInput = errors.New("source: invalid input")

// Kind is where a source body comes from.
type Kind int

const (
	Remote Kind = iota
	Local
)

func (k Kind) String() string {
	if k == Local {
		return "local"
	}
	return "remote"
}

// Source is one upstream document. Location is the original string; Path is
// the filesystem path for local sources.
type Source struct {
	Location string
	Kind     Kind
	Path     string
	Format   string // expected format: "m3u", "txt" or "" (detect)
}

// Parse classifies a location. http(s) URLs are remote, file:// URLs and bare
// paths are local, and any other scheme is an ErrInput.
func Parse(location string) (Source, error) {
	loc := strings.TrimSpace(location)
	if loc == "" {
		return Source{}, fmt.Errorf("%w: empty location", ErrInput)
	}
	u, err := url.Parse(loc)
	if err != nil {
		// Windows-style or otherwise odd paths still make sense as files.
		if !strings.Contains(loc, "://") {
			return Source{Location: loc, Kind: Local, Path: loc}, nil
		}
		return Source{}, fmt.Errorf("%w: %q: %v", ErrInput, loc, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return Source{}, fmt.Errorf("%w: %q has no host", ErrInput, loc)
		}
		return Source{Location: loc, Kind: Remote}, nil
	case "file":
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		if p == "" {
			return Source{}, fmt.Errorf("%w: %q has no path", ErrInput, loc)
		}
		return Source{Location: loc, Kind: Local, Path: filepath.FromSlash(p)}, nil
	case "":
		return Source{Location: loc, Kind: Local, Path: loc}, nil
	default:
		if len(u.Scheme) == 1 {
			// C:\lists\a.txt
			return Source{Location: loc, Kind: Local, Path: loc}, nil
		}
		return Source{}, fmt.Errorf("%w: %q: unsupported scheme %q", ErrInput, loc, u.Scheme)
	}
}

// Builtin returns the default registry in fetch order.
func Builtin() []Source {
	out := make([]Source, 0, len(builtinLocations))
	for _, b := range builtinLocations {
		s, err := Parse(b.URL)
		if err != nil {
			panic(err)
		}
		s.Format = b.Format
		out = append(out, s)
	}
	return out
}

type entry struct {
	URL    string `yaml:"url"`
	Format string `yaml:"format,omitempty"`
}

var builtinLocations = []entry{
	{URL: "https://raw.githubusercontent.com/fanmingming/live/main/tv/m3u/ipv6.m3u", Format: "m3u"},
	{URL: "https://raw.githubusercontent.com/YueChan/Live/main/IPTV.m3u", Format: "m3u"},
	{URL: "https://raw.githubusercontent.com/joevess/IPTV/main/home.m3u8", Format: "m3u"},
	{URL: "https://raw.githubusercontent.com/ssili126/tv/main/itvlist.txt", Format: "txt"},
	{URL: "https://raw.githubusercontent.com/Guovin/iptv-api/gd/output/result.txt", Format: "txt"},
	{URL: "https://iptv-org.github.io/iptv/countries/cn.m3u", Format: "m3u"},
}

// LoadFile reads a source list. Files ending in .yaml/.yml hold a list of
// {url, format}; anything else is one location per line with # comments.
// Malformed entries are returned as errors alongside the usable sources.
func LoadFile(path string) ([]Source, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("source: %w", err)
	}
	var entries []entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrInput, path, err)
		}
	default:
		sc := bufio.NewScanner(bytes.NewReader(data))
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			entries = append(entries, entry{URL: line})
		}
		if err := sc.Err(); err != nil {
			return nil, nil, fmt.Errorf("source: read %s: %w", path, err)
		}
	}

	var (
		out  []Source
		errs []error
	)
	for _, e := range entries {
		s, err := Parse(e.URL)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch f := strings.ToLower(strings.TrimSpace(e.Format)); f {
		case "", "m3u", "txt":
			s.Format = f
		default:
			errs = append(errs, fmt.Errorf("%w: %q: unknown format %q", ErrInput, e.URL, e.Format))
			continue
		}
		out = append(out, s)
	}
	return out, errs, nil
}
