// Package archive compresses backup artifacts: gzip for single files and
// gzip-compressed tar for directory trees.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	skfs "safekeep/internal/fs"
	"safekeep/internal/sk"
)

// GzipArchiver implements sk.Archiver with klauspost/compress.
type GzipArchiver struct {
	level   int
	exclude []string
	logger  sk.Logger
}

var _ sk.Archiver = (*GzipArchiver)(nil)

// NewGzipArchiver creates an archiver. exclude holds ignore patterns applied
// to every archived tree in addition to the tree's own .skignore file.
func NewGzipArchiver(exclude []string, logger sk.Logger) *GzipArchiver {
	if logger == nil {
		logger = sk.NewNopLogger()
	}
	return &GzipArchiver{level: gzip.DefaultCompression, exclude: exclude, logger: logger}
}

// CompressFile gzips src into dst.
func (a *GzipArchiver) CompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &sk.IOError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	return writeFile(dst, func(w io.Writer) error {
		zw, err := gzip.NewWriterLevel(w, a.level)
		if err != nil {
			return err
		}
		zw.Name = filepath.Base(src)
		if _, err := io.Copy(zw, in); err != nil {
			return err
		}
		return zw.Close()
	})
}

// DecompressFile gunzips src into dst.
func (a *GzipArchiver) DecompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &sk.IOError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("reading gzip header of %s: %w", src, err)
	}
	defer zr.Close()

	return writeFile(dst, func(w io.Writer) error {
		_, err := io.Copy(w, zr)
		return err
	})
}

// ArchiveDir writes a gzip-compressed tar of dir to dst. Entry names are
// relative to dir. Only regular files and directories are archived;
// symlinks and special files are skipped, as is anything matching the
// exclude patterns.
func (a *GzipArchiver) ArchiveDir(dir, dst string) error {
	matcher, err := skfs.LoadIgnoreMatcher(dir, a.exclude)
	if err != nil {
		return fmt.Errorf("loading exclude patterns: %w", err)
	}

	return writeFile(dst, func(w io.Writer) error {
		zw, err := gzip.NewWriterLevel(w, a.level)
		if err != nil {
			return err
		}
		tw := tar.NewWriter(zw)

		files := 0
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			if matcher.Match(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && !d.Type().IsRegular() {
				a.logger.Debug("skipping non-regular file", "path", path)
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := addEntry(tw, path, filepath.ToSlash(rel), info); err != nil {
				return fmt.Errorf("archiving %s: %w", path, err)
			}
			if !d.IsDir() {
				files++
			}
			return nil
		})
		if err != nil {
			return err
		}

		if err := tw.Close(); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		a.logger.Debug("directory archived", "dir", dir, "files", files)
		return nil
	})
}

func addEntry(tw *tar.Writer, path, name string, info fs.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// writeFile creates dst and runs fill against it, removing dst if
// anything fails.
func writeFile(dst string, fill func(io.Writer) error) error {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return &sk.IOError{Op: "create", Path: dst, Err: err}
	}

	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(dst)
		}
	}()

	if err := fill(f); err != nil {
		return &sk.IOError{Op: "write", Path: dst, Err: err}
	}
	if err := f.Close(); err != nil {
		return &sk.IOError{Op: "close", Path: dst, Err: err}
	}
	success = true
	return nil
}
