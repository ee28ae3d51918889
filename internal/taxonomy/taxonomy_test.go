package taxonomy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefault_consistent(t *testing.T) {
	tax := Default()
	if got := tax.Categories(); len(got) == 0 || got[0] != "央视频道" {
		t.Fatalf("Categories() = %v", got)
	}
	for _, cat := range tax.Categories() {
		for _, ch := range tax.Channels(cat) {
			got, ok := tax.CategoryOf(ch)
			if !ok || got != cat {
				t.Errorf("CategoryOf(%q) = %q, %v; want %q", ch, got, ok, cat)
			}
			if c, ok := tax.Resolve(ch); !ok || c != ch {
				t.Errorf("Resolve(%q) = %q, %v; canonical must resolve to itself", ch, c, ok)
			}
		}
	}
}

func TestResolve(t *testing.T) {
	tax := Default()
	tests := []struct {
		raw  string
		want string
	}{
		{"CCTV1", "CCTV1"},
		{"  CCTV1\t", "CCTV1"},
		{"CCTV-1", "CCTV1"},
		{"CCTV-1 HD", "CCTV1"},
		{"CCTV1高清", "CCTV1"},
		{"CCTV1(HD)", "CCTV1"},
		{"CCTV1[高清]", "CCTV1"},
		{"CCTV1[1920*1080]", "CCTV1"},
		{"CCTV-2 财经", "CCTV2"},
		{"CCTV-13 新闻 HD", "CCTV13"},
		{"CCTV13", "CCTV13"},
		{"CCTV5+", "CCTV5+"},
		{"CCTV-5+ 体育赛事·HD", "CCTV5+"},
		{"CCTV4K超高清", "CCTV4K"},
		{"cctv_7 军事", "CCTV7"},
		{"CCTV 08", "CCTV8"},
		{"湖南卫视HD", "湖南卫视"},
		{"湖南卫视 4K", "湖南卫视"},
		{"芒果台", "湖南卫视"},
		{"TVB翡翠台", "翡翠台"},
		{"凤凰中文", "凤凰卫视中文台"},
		{"黑龙江", "黑龙江卫视"},
	}
	for _, tt := range tests {
		got, ok := tax.Resolve(tt.raw)
		if !ok || got != tt.want {
			t.Errorf("Resolve(%q) = %q, %v; want %q", tt.raw, got, ok, tt.want)
		}
	}
}

func TestResolve_misses(t *testing.T) {
	tax := Default()
	for _, raw := range []string{
		"",
		"   ",
		"CCTV",
		"CCTV99",
		"凤凰卫视", // contained in three canonicals
		"风云",
		"Discovery",
		"卫",
	} {
		if got, ok := tax.Resolve(raw); ok {
			t.Errorf("Resolve(%q) = %q, want miss", raw, got)
		}
	}
}

func TestResolve_digitBoundary(t *testing.T) {
	tax := Default()
	if got, _ := tax.Resolve("CCTV13 新闻频道"); got != "CCTV13" {
		t.Errorf("got %q, want CCTV13", got)
	}
	if got, _ := tax.Resolve("CCTV5+赛事"); got != "CCTV5+" {
		t.Errorf("got %q, want CCTV5+", got)
	}
}

func TestResolve_idempotent(t *testing.T) {
	tax := Default()
	for _, raw := range []string{"CCTV-1 HD", "芒果台", "CCTV-5+", "凤凰资讯", "cctv 17"} {
		once, ok := tax.Resolve(raw)
		if !ok {
			t.Fatalf("Resolve(%q) missed", raw)
		}
		twice, ok := tax.Resolve(once)
		if !ok || twice != once {
			t.Errorf("Resolve(Resolve(%q)) = %q, want %q", raw, twice, once)
		}
	}
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"CCTV1 HD":           "CCTV1",
		"CCTV1-HD":           "CCTV1",
		"北京卫视(高清)":           "北京卫视",
		"北京卫视 高清 [HD]":       "北京卫视",
		"CCTV4K超高清":          "CCTV4K",
		"CCTV1[3840*2160]":   "CCTV1",
		"CCTV1 [1920x1080]":  "CCTV1",
		"HD":                 "HD",
		"CCTV-1\t":           "CCTV-1",
		"凤凰卫视中文台":            "凤凰卫视中文台",
		"CHC高清电影":            "CHC高清电影",
		"CCTV1[1920*1080]高清": "CCTV1",
	}
	for in, want := range tests {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNew_errors(t *testing.T) {
	tests := []struct {
		name string
		defs []CategoryDef
		want string
	}{
		{
			name: "duplicate alias",
			defs: []CategoryDef{{Name: "A", Channels: []ChannelDef{
				{Name: "X", Aliases: []string{"same"}},
				{Name: "Y", Aliases: []string{"same"}},
			}}},
			want: `alias "same" maps to both "X" and "Y"`,
		},
		{
			name: "alias shadows canonical",
			defs: []CategoryDef{{Name: "A", Channels: []ChannelDef{
				{Name: "X"},
				{Name: "Y", Aliases: []string{"X"}},
			}}},
			want: `alias "X" maps to both "X" and "Y"`,
		},
		{
			name: "empty alias",
			defs: []CategoryDef{{Name: "A", Channels: []ChannelDef{{Name: "X", Aliases: []string{" "}}}}},
			want: "empty alias",
		},
		{
			name: "channel in two categories",
			defs: []CategoryDef{
				{Name: "A", Channels: []ChannelDef{{Name: "X"}}},
				{Name: "B", Channels: []ChannelDef{{Name: "X"}}},
			},
			want: `channel "X" in both "A" and "B"`,
		},
		{
			name: "duplicate category",
			defs: []CategoryDef{{Name: "A"}, {Name: "A"}},
			want: `category "A" declared twice`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defs)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("New() err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	doc := `categories:
  - name: 体育
    channels:
      - name: 风云足球
        aliases: [风云足球频道]
      - name: CCTV5
        aliases: [CCTV-5]
  - name: 新闻
    channels:
      - name: CCTV13
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	tax, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"体育", "新闻"}, tax.Categories()); diff != "" {
		t.Errorf("Categories() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"风云足球", "CCTV5"}, tax.Channels("体育")); diff != "" {
		t.Errorf("Channels() mismatch (-want +got):\n%s", diff)
	}
	if got, _ := tax.Resolve("CCTV-13 新闻"); got != "CCTV13" {
		t.Errorf("Resolve via regex = %q", got)
	}
	if tax.Index("新闻") != 1 || tax.Index("nope") != -1 {
		t.Error("Index mismatch")
	}
}

func TestLoadFile_empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("categories: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for taxonomy with no categories")
	}
}
