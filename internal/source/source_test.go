package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Source
	}{
		{"http://example.com/a.m3u", Source{Location: "http://example.com/a.m3u", Kind: Remote}},
		{" https://example.com/a.txt ", Source{Location: "https://example.com/a.txt", Kind: Remote}},
		{"file:///srv/lists/a.txt", Source{Location: "file:///srv/lists/a.txt", Kind: Local, Path: filepath.FromSlash("/srv/lists/a.txt")}},
		{"lists/a.txt", Source{Location: "lists/a.txt", Kind: Local, Path: "lists/a.txt"}},
		{"/abs/a.m3u", Source{Location: "/abs/a.m3u", Kind: Local, Path: "/abs/a.m3u"}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestParse_invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "ftp://example.com/a.m3u", "http:///nohost", "gopher://x/y"} {
		if _, err := Parse(in); !errors.Is(err, ErrInput) {
			t.Errorf("Parse(%q) err = %v, want ErrInput", in, err)
		}
	}
}

func TestBuiltin(t *testing.T) {
	srcs := Builtin()
	if len(srcs) == 0 {
		t.Fatal("Builtin() is empty")
	}
	for _, s := range srcs {
		if s.Kind != Remote {
			t.Errorf("%s: kind %v", s.Location, s.Kind)
		}
	}
}

func TestLoadFile_lines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.txt")
	doc := "# upstreams\nhttp://a.example/a.m3u\n\nftp://bad.example/x\n./local.txt\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	srcs, errs, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(srcs) != 2 || srcs[0].Location != "http://a.example/a.m3u" || srcs[1].Kind != Local {
		t.Errorf("sources = %+v", srcs)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrInput) {
		t.Errorf("errs = %v", errs)
	}
}

func TestLoadFile_yaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	doc := `- url: https://a.example/list.txt
  format: txt
- url: https://b.example/list.m3u
- url: https://c.example/x
  format: xml
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	srcs, errs, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []Source{
		{Location: "https://a.example/list.txt", Kind: Remote, Format: "txt"},
		{Location: "https://b.example/list.m3u", Kind: Remote},
	}
	if diff := cmp.Diff(want, srcs); diff != "" {
		t.Errorf("LoadFile mismatch (-want +got):\n%s", diff)
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v, want one unknown-format error", errs)
	}
}

func TestLoadFile_missing(t *testing.T) {
	if _, _, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error")
	}
}
