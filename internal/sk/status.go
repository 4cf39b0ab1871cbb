package sk

import (
	"fmt"
	"time"

	"safekeep/internal/model"
)

// recentWindow is the period GetBackupStatus summarizes.
const recentWindow = 7 * 24 * time.Hour

// BackupStatus is a read-only snapshot of the backup ledger and backup directory.
type BackupStatus struct {
	RecentBackupsCount int   // records created in the last 7 days
	TotalSizeBytes     int64 // combined size of those records
	LastBackupAt       *time.Time
	BackupDirectory    string
	DiskFreeBytes      uint64
}

// GetBackupStatus summarizes recent backups and the space left for new ones.
func (m *BackupManager) GetBackupStatus() (*BackupStatus, error) {
	now := m.clock.Now()

	recent, err := m.database.ListBackupRecordsSince(now.Add(-recentWindow))
	if err != nil {
		return nil, fmt.Errorf("listing recent backups: %w", err)
	}

	status := &BackupStatus{
		RecentBackupsCount: len(recent),
		BackupDirectory:    m.settings.BackupDir,
	}
	for _, rec := range recent {
		status.TotalSizeBytes += rec.FileSize
	}

	latest, err := m.database.ListBackupRecords(1)
	if err != nil {
		return nil, fmt.Errorf("finding latest backup: %w", err)
	}
	if len(latest) > 0 {
		at := latest[0].CreatedAt
		status.LastBackupAt = &at
	}

	free, err := m.fs.DiskFree(m.settings.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("checking free space: %w", err)
	}
	status.DiskFreeBytes = free

	return status, nil
}

// ListBackups returns the most recent backup records, newest first.
func (m *BackupManager) ListBackups(limit int) ([]*model.BackupRecord, error) {
	records, err := m.database.ListBackupRecords(limit)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	return records, nil
}

// GetBackup returns the record with the given ID, or ErrNotFound.
func (m *BackupManager) GetBackup(id string) (*model.BackupRecord, error) {
	rec, err := m.database.FindBackupRecord(id)
	if err != nil {
		return nil, fmt.Errorf("finding backup %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("backup %s: %w", id, ErrNotFound)
	}
	return rec, nil
}
