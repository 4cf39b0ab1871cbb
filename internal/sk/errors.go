package sk

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied matches every *PermissionDenied via errors.Is.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBackupInProgress is returned when another process or goroutine holds the backup lock.
	ErrBackupInProgress = errors.New("another backup operation is in progress")

	// ErrNotFound is returned by service lookups for missing records.
	ErrNotFound = errors.New("not found")

	// ErrNotRestorable is returned when restoring anything but a database backup.
	ErrNotRestorable = errors.New("only database backups can be restored automatically")

	// ErrChecksumMismatch is returned when an artifact no longer matches its recorded checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// CryptoError reports a malformed key or a ciphertext that failed to authenticate.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	if e.Err == nil {
		return "crypto: " + e.Op
	}
	return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// IOError reports a filesystem failure on a specific path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// BackupError wraps a failure in a backup or restore pipeline stage.
type BackupError struct {
	Stage string
	Err   error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup %s failed: %v", e.Stage, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// PermissionDenied is returned by the gate when an identity lacks a permission or role.
type PermissionDenied struct {
	Username   string
	Permission string // set for permission checks
	Role       string // set for role checks
}

func (e *PermissionDenied) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("permission denied: %s does not hold role %s", e.Username, e.Role)
	}
	return fmt.Sprintf("permission denied: %s lacks %s", e.Username, e.Permission)
}

func (e *PermissionDenied) Is(target error) bool { return target == ErrPermissionDenied }
