// Package dbdriver dumps and restores the database that safekeep protects.
package dbdriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"safekeep/internal/sk"
)

// SQLiteDriver backs up a file-based SQLite database.
type SQLiteDriver struct {
	path string
}

var _ sk.DatabaseDriver = (*SQLiteDriver)(nil)

// NewSQLiteDriver creates a driver for the database file at path.
func NewSQLiteDriver(path string) *SQLiteDriver {
	return &SQLiteDriver{path: path}
}

func (d *SQLiteDriver) Name() string          { return "sqlite" }
func (d *SQLiteDriver) DumpExtension() string { return "sqlite3" }

// Dump writes a consistent, compacted copy of the database to dst with
// VACUUM INTO. The source is opened read-only.
func (d *SQLiteDriver) Dump(ctx context.Context, dst string) error {
	if _, err := os.Stat(d.path); err != nil {
		return &sk.IOError{Op: "stat", Path: d.path, Err: err}
	}

	db, err := sql.Open("sqlite3", "file:"+d.path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("opening %s: %w", d.path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("dumping %s: %w", d.path, err)
	}
	return nil
}

// Restore checks that src is an intact SQLite database and moves a copy of
// it over the live database file. Stale -wal and -shm files are removed so
// SQLite does not replay them against the restored file.
func (d *SQLiteDriver) Restore(ctx context.Context, src string) error {
	if err := checkIntegrity(ctx, src); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return &sk.IOError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(d.path), "."+filepath.Base(d.path)+".restore-*")
	if err != nil {
		return &sk.IOError{Op: "create", Path: d.path, Err: err}
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		return &sk.IOError{Op: "copy", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &sk.IOError{Op: "sync", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &sk.IOError{Op: "close", Path: tmpPath, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		return &sk.IOError{Op: "rename", Path: d.path, Err: err}
	}
	success = true

	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(d.path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &sk.IOError{Op: "remove", Path: d.path + suffix, Err: err}
		}
	}
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if result != "ok" {
		return fmt.Errorf("restore source %s failed integrity check: %s", path, result)
	}
	return nil
}
