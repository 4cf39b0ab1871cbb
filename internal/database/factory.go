package database

import (
	"fmt"
	"os"
	"path/filepath"

	"safekeep/internal/config"
)

// DatabaseFileName is the metadata database file inside data_dir.
const DatabaseFileName = "sk.db"

// NewDatabaseFromConfig opens the metadata database described by cfg.
// In-memory databases are migrated immediately since they start empty;
// file databases are migrated by `sk init` and only checked here.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, DatabaseFileName))
	case "memory":
		db, err := NewSQLiteDatabase(":memory:")
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
