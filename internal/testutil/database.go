package testutil

import (
	"path/filepath"
	"sync"
	"testing"

	"safekeep/internal/database"
	"safekeep/internal/model"
	"safekeep/internal/sk"
)

// NewTestDatabase creates a migrated SQLite database in a temporary file.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "sk.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

// FaultyDatabase wraps a Database and fails selected writes.
type FaultyDatabase struct {
	sk.Database

	mu              sync.Mutex
	CreateRecordErr error
	DeleteRecordErr map[string]error // by record ID
	InsertAuditErr  error
}

func NewFaultyDatabase(db sk.Database) *FaultyDatabase {
	return &FaultyDatabase{Database: db, DeleteRecordErr: map[string]error{}}
}

func (f *FaultyDatabase) CreateBackupRecord(rec *model.BackupRecord) error {
	f.mu.Lock()
	err := f.CreateRecordErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Database.CreateBackupRecord(rec)
}

func (f *FaultyDatabase) DeleteBackupRecord(id string) error {
	f.mu.Lock()
	err := f.DeleteRecordErr[id]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Database.DeleteBackupRecord(id)
}

func (f *FaultyDatabase) InsertAuditEntry(entry *model.AuditEntry) error {
	f.mu.Lock()
	err := f.InsertAuditErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Database.InsertAuditEntry(entry)
}
