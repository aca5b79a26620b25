package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fileCacheSection(dir string) string {
	return "[cache]\nbackend = \"file\"\ndir = '" + dir + "'\n"
}

func TestCachePath(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "cache")
	env := newTestEnv(t, fileCacheSection(cacheDir))

	out, err := execute(t, "--config", env.cfgPath, "cache", "path")
	if err != nil {
		t.Fatalf("cache path error = %v", err)
	}
	if got := strings.TrimSpace(out); got != cacheDir {
		t.Errorf("cache path = %q, want %q", got, cacheDir)
	}
}

func TestCacheClearAfterTrack(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "cache")
	env := newTestEnv(t, fileCacheSection(cacheDir))

	if _, err := execute(t, "--config", env.cfgPath, "track", env.seqPath, "-o", env.dir, "--format", "json"); err != nil {
		t.Fatalf("track error = %v", err)
	}
	if countEntries(t, cacheDir) == 0 {
		t.Fatal("track should populate the file cache")
	}

	if _, err := execute(t, "--config", env.cfgPath, "cache", "clear"); err != nil {
		t.Fatalf("cache clear error = %v", err)
	}
	if n := countEntries(t, cacheDir); n != 0 {
		t.Errorf("%d entries left after clear", n)
	}
}

func TestCacheClearNullBackend(t *testing.T) {
	env := newTestEnv(t, "")
	if _, err := execute(t, "--config", env.cfgPath, "cache", "clear"); err != nil {
		t.Errorf("cache clear on the null backend error = %v", err)
	}
}

func countEntries(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".json") {
			n++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	return n
}
