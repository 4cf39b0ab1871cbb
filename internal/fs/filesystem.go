package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"

	"safekeep/internal/sk"
)

// checksumChunkSize is the read size used when hashing artifacts.
const checksumChunkSize = 4096

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

// Checksum returns the lowercase hex SHA-256 of the file at path.
func (m *OSFilesystemManager) Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &sk.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	sum, err := ChecksumReader(f)
	if err != nil {
		return "", &sk.IOError{Op: "read", Path: path, Err: err}
	}
	return sum, nil
}

// ChecksumReader returns the lowercase hex SHA-256 of everything read from r.
func ChecksumReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, checksumChunkSize)
	// Hide WriterTo so the copy reads in checksumChunkSize chunks.
	if _, err := io.CopyBuffer(h, struct{ io.Reader }{r}, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Size returns the size of the file at path.
func (m *OSFilesystemManager) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, &sk.IOError{Op: "stat", Path: path, Err: err}
	}
	return info.Size(), nil
}

// Exists reports whether anything exists at path.
func (m *OSFilesystemManager) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes the file at path. A missing file is not an error.
func (m *OSFilesystemManager) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &sk.IOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// Compile-time check that OSFilesystemManager implements sk.FilesystemManager interface
var _ sk.FilesystemManager = (*OSFilesystemManager)(nil)
