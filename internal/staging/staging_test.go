package staging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"safekeep/internal/fs"
	"safekeep/internal/sk"
)

// stubFS wraps the real filesystem with a fixed DiskFree answer.
type stubFS struct {
	*fs.OSFilesystemManager
	free uint64
}

func (s *stubFS) DiskFree(string) (uint64, error) { return s.free, nil }

func newTestArea(t *testing.T, minFree, free uint64) (*StagingArea, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "backups")
	area, err := NewStagingArea(dir, minFree, &stubFS{OSFilesystemManager: fs.NewOSFilesystemManager(), free: free})
	if err != nil {
		t.Fatalf("NewStagingArea() error = %v", err)
	}
	return area, dir
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNewStagingArea_CreatesDirectory(t *testing.T) {
	t.Parallel()
	_, dir := newTestArea(t, 0, 0)
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat staging dir: %v", err)
	}
	if !info.IsDir() {
		t.Error("staging dir is not a directory")
	}
}

func TestStagingArea_NewRun(t *testing.T) {
	t.Run("refuses when free space is below minimum", func(t *testing.T) {
		t.Parallel()
		area, _ := newTestArea(t, 1000, 10)
		_, err := area.NewRun()
		if err == nil || !strings.Contains(err.Error(), "staging area full") {
			t.Fatalf("NewRun() error = %v, want staging area full", err)
		}
	})

	t.Run("starts when enough space is free", func(t *testing.T) {
		t.Parallel()
		area, _ := newTestArea(t, 1000, 5000)
		if _, err := area.NewRun(); err != nil {
			t.Fatalf("NewRun() error = %v", err)
		}
	})
}

func TestRun_Lifecycle(t *testing.T) {
	t.Run("paths stay inside the staging directory", func(t *testing.T) {
		t.Parallel()
		area, dir := newTestArea(t, 0, 0)
		r, err := area.NewRun()
		if err != nil {
			t.Fatalf("NewRun() error = %v", err)
		}
		p := r.Path("../../escape.sql")
		if filepath.Dir(p) != dir {
			t.Errorf("Path() = %s, want a file in %s", p, dir)
		}
	})

	t.Run("discard removes tracked files except kept ones", func(t *testing.T) {
		t.Parallel()
		area, _ := newTestArea(t, 0, 0)
		r, err := area.NewRun()
		if err != nil {
			t.Fatalf("NewRun() error = %v", err)
		}

		dump := r.Path("db.sql")
		gz := r.Path("db.sql.gz")
		enc := r.Path("db.sql.gz.enc")
		never := r.Path("never-written")
		for _, p := range []string{dump, gz, enc} {
			touch(t, p)
		}

		r.Keep(enc)
		if err := r.Discard(); err != nil {
			t.Fatalf("Discard() error = %v", err)
		}

		for _, p := range []string{dump, gz, never} {
			if exists(p) {
				t.Errorf("%s still exists after Discard()", p)
			}
		}
		if !exists(enc) {
			t.Error("kept artifact was removed")
		}
	})

	t.Run("remove deletes now and untracks", func(t *testing.T) {
		t.Parallel()
		area, _ := newTestArea(t, 0, 0)
		r, err := area.NewRun()
		if err != nil {
			t.Fatalf("NewRun() error = %v", err)
		}

		dump := r.Path("db.sql")
		touch(t, dump)
		if err := r.Remove(dump); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if exists(dump) {
			t.Error("file exists after Remove()")
		}

		// Recreated by someone else; no longer the run's to delete.
		touch(t, dump)
		if err := r.Discard(); err != nil {
			t.Fatalf("Discard() error = %v", err)
		}
		if !exists(dump) {
			t.Error("Discard() removed an untracked file")
		}
	})
}

func TestRun_RemoveReportsFailures(t *testing.T) {
	t.Parallel()
	area, dir := newTestArea(t, 0, 0)
	r, err := area.NewRun()
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}

	// A non-empty directory cannot be removed with os.Remove.
	blocker := r.Path("blocker")
	if err := os.MkdirAll(filepath.Join(blocker, "child"), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	err = r.Remove(blocker)
	var ioErr *sk.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Remove() error = %v, want *sk.IOError", err)
	}
	if filepath.Dir(ioErr.Path) != dir {
		t.Errorf("IOError path = %s, want inside %s", ioErr.Path, dir)
	}
}
