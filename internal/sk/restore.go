package sk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"safekeep/internal/model"
)

// RestoreDatabaseBackup verifies the artifact against its recorded checksum,
// decrypts and decompresses it to temporary files, and replays it into the
// application database. Temporaries are removed on every exit path.
// Only database backups can be restored this way.
func (m *BackupManager) RestoreDatabaseBackup(ctx context.Context, rec *model.BackupRecord) (err error) {
	if rec.BackupType != model.BackupDatabase {
		return &BackupError{Stage: "restore", Err: ErrNotRestorable}
	}

	release, err := m.acquire()
	if err != nil {
		return err
	}
	defer release()

	defer func() {
		m.metrics.RestoreFinished(err == nil)
		if err != nil {
			m.logger.Error("restore failed", "id", rec.ID, "error", err)
		}
	}()

	run, err := m.staging.NewRun()
	if err != nil {
		return &BackupError{Stage: "prepare", Err: err}
	}
	defer m.discard(run)

	artifact, err := m.locateArtifact(run, rec)
	if err != nil {
		return &BackupError{Stage: "locate", Err: err}
	}

	if err := m.verifyChecksum(artifact, rec.Checksum); err != nil {
		return &BackupError{Stage: "verify", Err: err}
	}

	compressedName := strings.TrimSuffix(filepath.Base(rec.FilePath), ".enc")
	compressed := run.Path("restore_" + compressedName)
	if _, err := m.files.DecryptFile(artifact, compressed); err != nil {
		return &BackupError{Stage: "decrypt", Err: err}
	}

	plain := run.Path("restore_" + strings.TrimSuffix(compressedName, ".gz"))
	if err := m.archiver.DecompressFile(compressed, plain); err != nil {
		return &BackupError{Stage: "decompress", Err: err}
	}
	if err := run.Remove(compressed); err != nil {
		return &BackupError{Stage: "cleanup", Err: err}
	}

	if err := m.driver.Restore(ctx, plain); err != nil {
		return &BackupError{Stage: "restore", Err: err}
	}

	m.logger.Info("backup restored", "id", rec.ID, "path", rec.FilePath, "driver", m.driver.Name())
	return nil
}

// VerifyBackup recomputes the artifact checksum and compares it to the record.
// Full backup records have no artifact of their own and cannot be verified.
func (m *BackupManager) VerifyBackup(rec *model.BackupRecord) error {
	if rec.BackupType == model.BackupFull {
		return &BackupError{Stage: "verify", Err: errors.New("full backup records have no artifact")}
	}
	if err := m.verifyChecksum(rec.FilePath, rec.Checksum); err != nil {
		return &BackupError{Stage: "verify", Err: err}
	}
	return nil
}

func (m *BackupManager) verifyChecksum(path, want string) error {
	got, err := m.fs.Checksum(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: %s has %s, recorded %s", ErrChecksumMismatch, path, got, want)
	}
	return nil
}

// locateArtifact returns a local path for the record's artifact, fetching it
// from the off-site vault into the run when the local copy is gone.
func (m *BackupManager) locateArtifact(run StagingRun, rec *model.BackupRecord) (string, error) {
	if m.fs.Exists(rec.FilePath) {
		return rec.FilePath, nil
	}
	if m.vault == nil {
		return "", &IOError{Op: "open", Path: rec.FilePath, Err: os.ErrNotExist}
	}

	key := filepath.Base(rec.FilePath)
	dst := run.Path(key)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", &IOError{Op: "create", Path: dst, Err: err}
	}
	defer f.Close()

	if err := m.vault.Get(key, f); err != nil {
		return "", fmt.Errorf("fetching %s from vault: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", &IOError{Op: "close", Path: dst, Err: err}
	}

	m.logger.Info("artifact fetched from vault", "key", key)
	return dst, nil
}
