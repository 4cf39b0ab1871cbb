package dbdriver

import (
	"fmt"
	"time"

	"safekeep/internal/config"
	"safekeep/internal/sk"
)

// NewDriverFromConfig creates the driver for the configured target database.
func NewDriverFromConfig(cfg config.TargetConfig, timeout time.Duration) (sk.DatabaseDriver, error) {
	conn := Connection{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Name:     cfg.Name,
	}

	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite target requires path to be set")
		}
		return NewSQLiteDriver(cfg.Path), nil
	case "postgres":
		return NewPostgresDriver(conn, cfg.DumpBin, cfg.RestoreBin, timeout), nil
	case "mysql":
		return NewMySQLDriver(conn, cfg.DumpBin, cfg.RestoreBin, timeout), nil
	default:
		return nil, fmt.Errorf("unknown target database type: %s", cfg.Type)
	}
}
