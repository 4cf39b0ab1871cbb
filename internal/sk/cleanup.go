package sk

import (
	"fmt"
	"path/filepath"

	"safekeep/internal/model"
)

// CleanupOldBackups deletes every backup whose retention date has passed:
// the artifact, its off-site copy and finally the record. Cleanup is
// best-effort: a record that cannot be removed is logged and skipped, and
// is retried on the next run. Returns the number of records removed.
func (m *BackupManager) CleanupOldBackups() (int, error) {
	release, err := m.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	expired, err := m.database.ListExpiredBackupRecords(m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("listing expired backups: %w", err)
	}

	removed := 0
	for _, rec := range expired {
		if err := m.removeBackup(rec); err != nil {
			m.logger.Error("cleanup skipped record", "id", rec.ID, "path", rec.FilePath, "error", err)
			continue
		}
		removed++
		m.logger.Info("cleanup removed record", "id", rec.ID, "type", rec.BackupType, "path", rec.FilePath)
	}

	m.metrics.CleanupRemoved(removed)
	m.logger.Info("cleanup finished", "expired", len(expired), "removed", removed)
	return removed, nil
}

// removeBackup deletes the artifact and off-site copy before the record so
// that a failure leaves the record in place for the next run.
func (m *BackupManager) removeBackup(rec *model.BackupRecord) error {
	if rec.BackupType != model.BackupFull {
		if err := m.fs.Remove(rec.FilePath); err != nil {
			return fmt.Errorf("removing artifact: %w", err)
		}
		if m.vault != nil {
			if err := m.vault.Delete(filepath.Base(rec.FilePath)); err != nil {
				return fmt.Errorf("removing off-site copy: %w", err)
			}
		}
	}

	if err := m.database.DeleteBackupRecord(rec.ID); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}
