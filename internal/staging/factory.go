package staging

import (
	"safekeep/internal/config"
	"safekeep/internal/sk"
)

// NewStagingAreaFromConfig creates the staging area for the configured backup directory.
func NewStagingAreaFromConfig(cfg config.BackupConfig, fsmgr sk.FilesystemManager) (*StagingArea, error) {
	return NewStagingArea(cfg.BackupDir, cfg.MinFreeBytes, fsmgr)
}
