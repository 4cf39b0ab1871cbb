package sk

import (
	"time"

	"safekeep/internal/model"
)

// Metrics records backup pipeline outcomes.
type Metrics interface {
	BackupSucceeded(t model.BackupType, size int64, elapsed time.Duration)
	BackupFailed(t model.BackupType)
	RestoreFinished(success bool)
	CleanupRemoved(count int)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) BackupSucceeded(model.BackupType, int64, time.Duration) {}
func (NopMetrics) BackupFailed(model.BackupType)                          {}
func (NopMetrics) RestoreFinished(bool)                                   {}
func (NopMetrics) CleanupRemoved(int)                                     {}
