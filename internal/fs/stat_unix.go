//go:build unix

package fs

import (
	"golang.org/x/sys/unix"

	"safekeep/internal/sk"
)

// DiskFree returns the bytes available to unprivileged users on the
// filesystem holding path.
func (m *OSFilesystemManager) DiskFree(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, &sk.IOError{Op: "statfs", Path: path, Err: err}
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
