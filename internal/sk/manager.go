package sk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"safekeep/internal/model"
)

// artifactTimeLayout is the timestamp embedded in artifact names.
const artifactTimeLayout = "20060102_150405"

// BackupSettings holds the directories the manager reads from and writes to.
type BackupSettings struct {
	BackupDir string // where artifacts are written; owned by the manager
	MediaRoot string // empty disables media backups
	LogsRoot  string // empty disables logs backups
}

// ManagerDeps bundles the collaborators of a BackupManager.
// Vault, Locker and Metrics are optional.
type ManagerDeps struct {
	Database Database
	Driver   DatabaseDriver
	Files    SecureFileHandler
	Archiver Archiver
	FS       FilesystemManager
	Staging  StagingArea
	Vault    Vault
	Locker   Locker
	Metrics  Metrics
	Logger   Logger
	Clock    Clock
	IDGen    IDGenerator
}

// BackupManager orchestrates backup creation, restoration and retention cleanup.
// Every artifact it produces is compressed and encrypted, and every
// operation either records a complete artifact or leaves nothing behind.
// Operations are mutually exclusive within the process and, when a Locker
// is configured, across processes sharing the backup directory.
type BackupManager struct {
	settings BackupSettings
	database Database
	driver   DatabaseDriver
	files    SecureFileHandler
	archiver Archiver
	fs       FilesystemManager
	staging  StagingArea
	vault    Vault
	locker   Locker
	metrics  Metrics
	logger   Logger
	clock    Clock
	idgen    IDGenerator

	mu sync.Mutex
}

// NewBackupManager creates a BackupManager from its settings and collaborators.
func NewBackupManager(settings BackupSettings, deps ManagerDeps) *BackupManager {
	m := &BackupManager{
		settings: settings,
		database: deps.Database,
		driver:   deps.Driver,
		files:    deps.Files,
		archiver: deps.Archiver,
		fs:       deps.FS,
		staging:  deps.Staging,
		vault:    deps.Vault,
		locker:   deps.Locker,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		clock:    deps.Clock,
		idgen:    deps.IDGen,
	}
	if m.metrics == nil {
		m.metrics = NopMetrics{}
	}
	if m.logger == nil {
		m.logger = NewNopLogger()
	}
	if m.clock == nil {
		m.clock = RealClock{}
	}
	if m.idgen == nil {
		m.idgen = UUIDGenerator{}
	}
	return m
}

// BackupDir returns the directory artifacts are written to.
func (m *BackupManager) BackupDir() string {
	return m.settings.BackupDir
}

// FullBackup is the result of CreateFullBackup: the summary record plus the
// component records. Media and Logs are nil when their roots are absent.
type FullBackup struct {
	Record   *model.BackupRecord
	Database *model.BackupRecord
	Media    *model.BackupRecord
	Logs     *model.BackupRecord
}

// CreateDatabaseBackup dumps the application database, compresses and
// encrypts the dump, and records the artifact with 30-day retention.
func (m *BackupManager) CreateDatabaseBackup(ctx context.Context, actor *model.Identity) (*model.BackupRecord, error) {
	release, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	return m.createDatabaseBackup(ctx, actor)
}

// CreateMediaBackup archives the media root. It returns nil, nil when no
// media root is configured or the directory does not exist.
func (m *BackupManager) CreateMediaBackup(actor *model.Identity) (*model.BackupRecord, error) {
	release, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	return m.createArchiveBackup(model.BackupMedia, m.settings.MediaRoot, actor)
}

// CreateLogsBackup archives the logs root with 90-day retention. It returns
// nil, nil when the logs root is absent.
func (m *BackupManager) CreateLogsBackup(actor *model.Identity) (*model.BackupRecord, error) {
	release, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	return m.createArchiveBackup(model.BackupLogs, m.settings.LogsRoot, actor)
}

// CreateFullBackup runs the database, media and logs backups in that order
// and records a summary "full" record. The database step is mandatory.
// Component records written before a later failure are kept; the summary
// record is only written once every attempted component has succeeded.
func (m *BackupManager) CreateFullBackup(ctx context.Context, actor *model.Identity) (*FullBackup, error) {
	release, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	started := m.clock.Now()
	result := &FullBackup{}

	if result.Database, err = m.createDatabaseBackup(ctx, actor); err != nil {
		return nil, err
	}
	if result.Media, err = m.createArchiveBackup(model.BackupMedia, m.settings.MediaRoot, actor); err != nil {
		return nil, err
	}
	if result.Logs, err = m.createArchiveBackup(model.BackupLogs, m.settings.LogsRoot, actor); err != nil {
		return nil, err
	}

	var total int64
	for _, component := range []*model.BackupRecord{result.Database, result.Media, result.Logs} {
		if component != nil {
			total += component.FileSize
		}
	}

	now := m.clock.Now()
	rec := &model.BackupRecord{
		ID:            m.idgen.New(),
		BackupType:    model.BackupFull,
		FilePath:      "full_backup_" + started.UTC().Format(artifactTimeLayout),
		FileSize:      total,
		IsEncrypted:   true,
		RetentionDate: now.Add(model.BackupFull.RetentionPeriod()),
		CreatedBy:     identityID(actor),
		CreatedAt:     now,
	}
	if err := m.database.CreateBackupRecord(rec); err != nil {
		return nil, m.failed(model.BackupFull, &BackupError{Stage: "record", Err: err})
	}

	m.metrics.BackupSucceeded(model.BackupFull, total, now.Sub(started))
	m.logger.Info("full backup created", "id", rec.ID, "size", total)
	result.Record = rec
	return result, nil
}

// createDatabaseBackup runs dump → gzip → encrypt → record. The caller holds the lock.
func (m *BackupManager) createDatabaseBackup(ctx context.Context, actor *model.Identity) (*model.BackupRecord, error) {
	started := m.clock.Now()

	run, err := m.staging.NewRun()
	if err != nil {
		return nil, m.failed(model.BackupDatabase, &BackupError{Stage: "prepare", Err: err})
	}
	defer m.discard(run)

	base := m.artifactBase(model.BackupDatabase, started)
	dumpPath := run.Path(base + "." + m.driver.DumpExtension())
	if err := m.driver.Dump(ctx, dumpPath); err != nil {
		return nil, m.failed(model.BackupDatabase, &BackupError{Stage: "dump", Err: err})
	}

	gzPath := run.Path(filepath.Base(dumpPath) + ".gz")
	if err := m.archiver.CompressFile(dumpPath, gzPath); err != nil {
		return nil, m.failed(model.BackupDatabase, &BackupError{Stage: "compress", Err: err})
	}

	return m.seal(run, model.BackupDatabase, started, actor, gzPath, dumpPath)
}

// createArchiveBackup runs tar.gz → encrypt → record over root. The caller holds the lock.
func (m *BackupManager) createArchiveBackup(t model.BackupType, root string, actor *model.Identity) (*model.BackupRecord, error) {
	if root == "" || !m.fs.Exists(root) {
		m.logger.Info("backup skipped, root not present", "type", t, "root", root)
		return nil, nil
	}

	started := m.clock.Now()

	run, err := m.staging.NewRun()
	if err != nil {
		return nil, m.failed(t, &BackupError{Stage: "prepare", Err: err})
	}
	defer m.discard(run)

	tarPath := run.Path(m.artifactBase(t, started) + ".tar.gz")
	if err := m.archiver.ArchiveDir(root, tarPath); err != nil {
		return nil, m.failed(t, &BackupError{Stage: "archive", Err: err})
	}

	return m.seal(run, t, started, actor, tarPath)
}

// seal encrypts the compressed artifact, deletes the unencrypted
// intermediates, copies the result off-site and records it.
func (m *BackupManager) seal(run StagingRun, t model.BackupType, started time.Time, actor *model.Identity, compressed string, intermediates ...string) (*model.BackupRecord, error) {
	encPath := run.Path(filepath.Base(compressed) + ".enc")
	checksum, err := m.files.EncryptFile(compressed, encPath)
	if err != nil {
		return nil, m.failed(t, &BackupError{Stage: "encrypt", Err: err})
	}

	if err := run.Remove(append(intermediates, compressed)...); err != nil {
		return nil, m.failed(t, &BackupError{Stage: "cleanup", Err: err})
	}

	size, err := m.fs.Size(encPath)
	if err != nil {
		return nil, m.failed(t, &BackupError{Stage: "stat", Err: err})
	}

	key := filepath.Base(encPath)
	if m.vault != nil {
		if err := m.upload(key, encPath, size); err != nil {
			return nil, m.failed(t, &BackupError{Stage: "offsite", Err: err})
		}
	}

	now := m.clock.Now()
	rec := &model.BackupRecord{
		ID:            m.idgen.New(),
		BackupType:    t,
		FilePath:      encPath,
		FileSize:      size,
		Checksum:      checksum,
		IsEncrypted:   true,
		RetentionDate: now.Add(t.RetentionPeriod()),
		CreatedBy:     identityID(actor),
		CreatedAt:     now,
	}
	if err := m.database.CreateBackupRecord(rec); err != nil {
		if m.vault != nil {
			if verr := m.vault.Delete(key); verr != nil {
				m.logger.Warn("removing off-site copy of unrecorded artifact", "key", key, "error", verr)
			}
		}
		return nil, m.failed(t, &BackupError{Stage: "record", Err: err})
	}

	run.Keep(encPath)
	m.metrics.BackupSucceeded(t, size, now.Sub(started))
	m.logger.Info("backup created", "type", t, "id", rec.ID, "path", encPath, "size", size)
	return rec, nil
}

// upload copies a finished artifact to the off-site vault.
func (m *BackupManager) upload(key, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	if err := m.vault.Put(key, f, size); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	m.logger.Debug("artifact copied off-site", "key", key, "size", size)
	return nil
}

// artifactBase returns "<type>_backup_<timestamp>", suffixed with _N when an
// artifact from the same second already exists in the backup directory.
func (m *BackupManager) artifactBase(t model.BackupType, at time.Time) string {
	base := fmt.Sprintf("%s_backup_%s", t, at.UTC().Format(artifactTimeLayout))

	entries, err := os.ReadDir(m.settings.BackupDir)
	if err != nil {
		return base
	}
	taken := func(candidate string) bool {
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), candidate+".") {
				return true
			}
		}
		return false
	}

	candidate := base
	for n := 1; taken(candidate); n++ {
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
	return candidate
}

// acquire takes the process mutex and, if configured, the cross-process lock.
func (m *BackupManager) acquire() (func(), error) {
	if !m.mu.TryLock() {
		return nil, &BackupError{Stage: "lock", Err: ErrBackupInProgress}
	}
	if m.locker == nil {
		return m.mu.Unlock, nil
	}

	unlock, err := m.locker.TryLock()
	if err != nil {
		m.mu.Unlock()
		return nil, &BackupError{Stage: "lock", Err: err}
	}
	return func() {
		if err := unlock(); err != nil {
			m.logger.Warn("releasing backup lock", "error", err)
		}
		m.mu.Unlock()
	}, nil
}

func (m *BackupManager) failed(t model.BackupType, err error) error {
	m.metrics.BackupFailed(t)
	m.logger.Error("backup failed", "type", t, "error", err)
	return err
}

func (m *BackupManager) discard(run StagingRun) {
	if err := run.Discard(); err != nil {
		m.logger.Warn("removing intermediate files", "error", err)
	}
}

func identityID(u *model.Identity) string {
	if u == nil {
		return ""
	}
	return u.ID
}
