//go:build unix

package fs

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"safekeep/internal/sk"
)

// FileLock is an advisory flock(2) lock on a file, shared by every process
// that backs up into the same directory.
type FileLock struct {
	path string
}

// NewFileLock creates a lock on path. The file is created on first use.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock takes an exclusive lock without blocking.
func (l *FileLock) TryLock() (func() error, error) {
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, &sk.IOError{Op: "open", Path: l.path, Err: err}
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, sk.ErrBackupInProgress
		}
		return nil, &sk.IOError{Op: "flock", Path: l.path, Err: err}
	}

	return func() error {
		uerr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
		cerr := f.Close()
		if uerr != nil {
			return fmt.Errorf("unlocking %s: %w", l.path, uerr)
		}
		return cerr
	}, nil
}

var _ sk.Locker = (*FileLock)(nil)
