package sk

// FilesystemManager abstracts the filesystem operations the backup pipeline
// performs on artifacts. Failures are reported as *IOError.
type FilesystemManager interface {
	// Checksum returns the lowercase hex SHA-256 of the file, read in fixed-size chunks.
	Checksum(path string) (string, error)

	// Size returns the size of the file in bytes.
	Size(path string) (int64, error)

	// Exists reports whether a regular file or directory exists at path.
	Exists(path string) bool

	// Remove deletes the file. Removing a missing file is not an error.
	Remove(path string) error

	// DiskFree returns the bytes available to unprivileged users on the filesystem holding path.
	DiskFree(path string) (uint64, error)
}

// Locker provides mutual exclusion across backup manager operations.
type Locker interface {
	// TryLock acquires the lock without blocking. It returns ErrBackupInProgress
	// if the lock is held elsewhere. The returned function releases it.
	TryLock() (unlock func() error, err error)
}

// StagingArea hands out paths for the intermediate files of one pipeline run.
type StagingArea interface {
	// NewRun starts a pipeline run. It fails if the staging directory cannot
	// hold another artifact.
	NewRun() (StagingRun, error)
}

// StagingRun tracks the files produced by one pipeline run so that a failed
// run leaves nothing behind.
type StagingRun interface {
	// Path returns the absolute path for name and tracks it for removal.
	Path(name string) string

	// Remove deletes the tracked files at the given paths now.
	Remove(paths ...string) error

	// Keep stops tracking path so Discard leaves it in place.
	Keep(path string)

	// Discard removes every tracked file that still exists.
	Discard() error
}
