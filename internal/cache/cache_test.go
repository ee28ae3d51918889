package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"source_cache.json", "source_cache.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			c := Open(path, time.Hour, nil)
			c.SetClock(func() time.Time { return fixed })
			c.Put("http://a/list.m3u", []byte("#EXTM3U\n"), `"abc"`, "Sun, 01 Mar 2026 11:00:00 GMT")
			c.Put("http://b/list.txt", []byte("CCTV1,http://x/1\n"), "", "")
			if err := c.Save(); err != nil {
				t.Fatalf("Save: %v", err)
			}

			c2 := Open(path, time.Hour, nil)
			if c2.Len() != 2 {
				t.Fatalf("Len = %d, want 2", c2.Len())
			}
			for _, loc := range []string{"http://a/list.m3u", "http://b/list.txt"} {
				want, _ := c.Get(loc)
				got, ok := c2.Get(loc)
				if !ok {
					t.Fatalf("%s missing after reload", loc)
				}
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("%s mismatch (-want +got):\n%s", loc, diff)
				}
			}
		})
	}
}

func TestOpen_missingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	if c := Open(filepath.Join(dir, "none.json"), 0, nil); c.Len() != 0 {
		t.Errorf("missing file: Len = %d", c.Len())
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if c := Open(bad, 0, nil); c.Len() != 0 {
		t.Errorf("corrupt file: Len = %d", c.Len())
	}
}

func TestSave_unwritable(t *testing.T) {
	c := Open(filepath.Join(t.TempDir(), "no", "such", "dir", "c.json"), 0, nil)
	c.Put("http://a/", []byte("x"), "", "")
	if err := c.Save(); err == nil {
		t.Fatal("expected error saving into a missing directory")
	}
}

func TestFreshAndTouch(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(nil, time.Hour, nil)
	c.SetClock(func() time.Time { return now })
	c.Put("k", []byte("body"), `"v1"`, "")

	e, _ := c.Get("k")
	if !c.Fresh(e) {
		t.Error("just-put entry must be fresh")
	}
	now = now.Add(2 * time.Hour)
	if c.Fresh(e) {
		t.Error("entry older than TTL must be stale")
	}
	if !c.Touch("k", "", "Thu, 01 Jan 2026 02:00:00 GMT") {
		t.Fatal("Touch on existing entry returned false")
	}
	e, _ = c.Get("k")
	if !c.Fresh(e) || e.ETag != `"v1"` || e.LastModified == "" || string(e.Body) != "body" {
		t.Errorf("after Touch: %+v", e)
	}
	if c.Touch("missing", "", "") {
		t.Error("Touch on missing entry returned true")
	}
}

func TestConcurrentWriters(t *testing.T) {
	c := Open(filepath.Join(t.TempDir(), "c.json"), time.Hour, nil)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loc := "http://h/" + string(rune('a'+i%26)) + string(rune('a'+i/26))
			c.Put(loc, []byte{byte(i)}, "", "")
			c.Touch(loc, "e", "")
			if err := c.Save(); err != nil {
				t.Errorf("Save: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 32 {
		t.Errorf("Len = %d, want 32", c.Len())
	}
	if reloaded := Open(c.store.(*JSONStore).Path, time.Hour, nil); reloaded.Len() != 32 {
		t.Errorf("reloaded Len = %d, want 32", reloaded.Len())
	}
}

func TestStoreFor(t *testing.T) {
	if _, ok := StoreFor("x/source_cache.json").(*JSONStore); !ok {
		t.Error("json path should use JSONStore")
	}
	if _, ok := StoreFor("x/cache.SQLite").(*SQLiteStore); !ok {
		t.Error(".sqlite path should use SQLiteStore")
	}
}
