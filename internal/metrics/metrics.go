// Package metrics exports backup pipeline metrics in the Prometheus format.
// sk is a CLI, so instead of serving /metrics the registry is written to a
// node_exporter textfile collector file when the process exits.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"safekeep/internal/model"
	"safekeep/internal/sk"
)

// Registry holds the backup metrics on a private prometheus.Registry.
type Registry struct {
	reg *prometheus.Registry

	backupsTotal   *prometheus.CounterVec
	backupSize     *prometheus.GaugeVec
	backupDuration *prometheus.HistogramVec
	lastBackup     *prometheus.GaugeVec
	restoresTotal  *prometheus.CounterVec
	cleanupRemoved prometheus.Counter
}

// NewRegistry creates a Registry with every metric registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		// backupsTotal counts finished backups by type and result.
		backupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sk_backups_total",
			Help: "Total number of backups by type and result",
		}, []string{"type", "result"}),

		// backupSize is the size of the most recent artifact per type.
		backupSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sk_backup_size_bytes",
			Help: "Size in bytes of the most recent backup artifact",
		}, []string{"type"}),

		// backupDuration measures how long successful backups take.
		backupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sk_backup_duration_seconds",
			Help:    "Backup duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		}, []string{"type"}),

		// lastBackup is the Unix time of the most recent successful backup per type.
		lastBackup: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sk_last_backup_timestamp_seconds",
			Help: "Unix time of the most recent successful backup",
		}, []string{"type"}),

		restoresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sk_restores_total",
			Help: "Total number of database restores by result",
		}, []string{"result"}),

		cleanupRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "sk_cleanup_removed_total",
			Help: "Total number of expired backups removed by cleanup",
		}),
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (r *Registry) BackupSucceeded(t model.BackupType, size int64, elapsed time.Duration) {
	r.backupsTotal.WithLabelValues(string(t), result(true)).Inc()
	r.backupSize.WithLabelValues(string(t)).Set(float64(size))
	r.backupDuration.WithLabelValues(string(t)).Observe(elapsed.Seconds())
	r.lastBackup.WithLabelValues(string(t)).SetToCurrentTime()
}

func (r *Registry) BackupFailed(t model.BackupType) {
	r.backupsTotal.WithLabelValues(string(t), result(false)).Inc()
}

func (r *Registry) RestoreFinished(success bool) {
	r.restoresTotal.WithLabelValues(result(success)).Inc()
}

func (r *Registry) CleanupRemoved(count int) {
	r.cleanupRemoved.Add(float64(count))
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile atomically writes the registry to path in the text
// exposition format.
func (r *Registry) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

var _ sk.Metrics = (*Registry)(nil)
