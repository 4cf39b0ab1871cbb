package sk_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"safekeep/internal/fs"
	"safekeep/internal/model"
	"safekeep/internal/sk"
	"safekeep/internal/testutil"
)

func TestBackupManager_CreateDatabaseBackup(t *testing.T) {
	t.Run("writes one encrypted artifact and records it", func(t *testing.T) {
		e := newTestEnv(t)

		rec, err := e.manager.CreateDatabaseBackup(context.Background(), e.actor)
		if err != nil {
			t.Fatalf("CreateDatabaseBackup() error = %v", err)
		}

		wantPath := filepath.Join(e.backupDir, "database_backup_20240115_103000.sql.gz.enc")
		if rec.FilePath != wantPath {
			t.Errorf("FilePath = %s, want %s", rec.FilePath, wantPath)
		}
		if got := listDir(t, e.backupDir); len(got) != 1 || got[0] != filepath.Base(wantPath) {
			t.Errorf("backup dir = %v, want only the artifact", got)
		}
		if rec.BackupType != model.BackupDatabase || !rec.IsEncrypted || rec.CreatedBy != e.actor.ID {
			t.Errorf("record = %+v", rec)
		}
		if rec.Checksum != fileChecksum(t, rec.FilePath) {
			t.Errorf("Checksum = %s, does not match artifact", rec.Checksum)
		}
		size, _ := e.fs.Size(rec.FilePath)
		if rec.FileSize != size {
			t.Errorf("FileSize = %d, want %d", rec.FileSize, size)
		}
		if want := e.clock.Now().Add(30 * 24 * time.Hour); !rec.RetentionDate.Equal(want) {
			t.Errorf("RetentionDate = %v, want %v", rec.RetentionDate, want)
		}
		if got := openArtifact(t, e.cipher, rec.FilePath); !bytes.Equal(got, dumpContent) {
			t.Errorf("artifact content = %q, want the dump", got)
		}

		stored, err := e.db.FindBackupRecord(rec.ID)
		if err != nil || stored == nil {
			t.Fatalf("FindBackupRecord() = %v, %v", stored, err)
		}
		if stored.Checksum != rec.Checksum {
			t.Errorf("stored checksum = %s, want %s", stored.Checksum, rec.Checksum)
		}
	})

	t.Run("artifact does not contain the plaintext", func(t *testing.T) {
		e := newTestEnv(t)
		rec, err := e.manager.CreateDatabaseBackup(context.Background(), nil)
		if err != nil {
			t.Fatalf("CreateDatabaseBackup() error = %v", err)
		}
		if rec.CreatedBy != "" {
			t.Errorf("CreatedBy = %q, want empty without an actor", rec.CreatedBy)
		}
		if got := openArtifact(t, testutil.NewKeyCipher(t), rec.FilePath); !bytes.Equal(got, dumpContent) {
			t.Errorf("artifact content = %q", got)
		}
	})

	t.Run("backups in the same second get distinct names", func(t *testing.T) {
		e := newTestEnv(t)

		first, err := e.manager.CreateDatabaseBackup(context.Background(), e.actor)
		if err != nil {
			t.Fatalf("first backup error = %v", err)
		}
		second, err := e.manager.CreateDatabaseBackup(context.Background(), e.actor)
		if err != nil {
			t.Fatalf("second backup error = %v", err)
		}
		if first.FilePath == second.FilePath {
			t.Fatalf("both backups written to %s", first.FilePath)
		}
		if filepath.Base(second.FilePath) != "database_backup_20240115_103000_1.sql.gz.enc" {
			t.Errorf("second FilePath = %s", second.FilePath)
		}
		if countRecords(t, e.db) != 2 {
			t.Errorf("records = %d, want 2", countRecords(t, e.db))
		}
	})

	t.Run("same-second names stay distinct in a backup dir with glob characters", func(t *testing.T) {
		e := newTestEnvIn(t, "backups[prod]")

		first, err := e.manager.CreateDatabaseBackup(context.Background(), e.actor)
		if err != nil {
			t.Fatalf("first backup error = %v", err)
		}
		second, err := e.manager.CreateDatabaseBackup(context.Background(), e.actor)
		if err != nil {
			t.Fatalf("second backup error = %v", err)
		}

		if first.FilePath == second.FilePath {
			t.Fatalf("both backups written to %s", first.FilePath)
		}
		for _, rec := range []*model.BackupRecord{first, second} {
			if got := fileChecksum(t, rec.FilePath); got != rec.Checksum {
				t.Errorf("%s checksum = %s, record has %s", filepath.Base(rec.FilePath), got, rec.Checksum)
			}
		}
		want := []string{
			"database_backup_20240115_103000.sql.gz.enc",
			"database_backup_20240115_103000_1.sql.gz.enc",
		}
		if got := listDir(t, e.backupDir); !slices.Equal(got, want) {
			t.Errorf("backup dir = %v, want %v", got, want)
		}
	})

	t.Run("copies the artifact off-site", func(t *testing.T) {
		v := testutil.NewTestVault()
		e := newTestEnv(t, withVault(v))

		rec, err := e.manager.CreateDatabaseBackup(context.Background(), e.actor)
		if err != nil {
			t.Fatalf("CreateDatabaseBackup() error = %v", err)
		}

		var buf bytes.Buffer
		if err := v.Get(filepath.Base(rec.FilePath), &buf); err != nil {
			t.Fatalf("vault Get() error = %v", err)
		}
		if testutil.SHA256Hex(buf.Bytes()) != rec.Checksum {
			t.Error("off-site copy differs from the local artifact")
		}
	})
}

func TestBackupManager_FailuresLeaveNothingBehind(t *testing.T) {
	injected := errors.New("injected")

	tests := []struct {
		name      string
		opts      []envOption
		inject    func(*testEnv)
		wantStage string
	}{
		{
			name:      "dump fails",
			inject:    func(e *testEnv) { e.driver.DumpErr = injected },
			wantStage: "dump",
		},
		{
			name:      "compression fails",
			inject:    func(e *testEnv) { e.archiver.CompressErr = injected },
			wantStage: "compress",
		},
		{
			name:      "encryption fails",
			opts:      []envOption{withCipher(testutil.FailingCipher{})},
			wantStage: "encrypt",
		},
		{
			name:      "record insert fails",
			inject:    func(e *testEnv) { e.records.CreateRecordErr = injected },
			wantStage: "record",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testutil.NewTestVault()
			e := newTestEnv(t, append(tt.opts, withVault(v))...)
			if tt.inject != nil {
				tt.inject(e)
			}

			rec, err := e.manager.CreateDatabaseBackup(context.Background(), e.actor)
			if err == nil {
				t.Fatalf("CreateDatabaseBackup() = %+v, want error", rec)
			}
			var berr *sk.BackupError
			if !errors.As(err, &berr) || berr.Stage != tt.wantStage {
				t.Errorf("error = %v, want BackupError at stage %s", err, tt.wantStage)
			}
			if got := listDir(t, e.backupDir); len(got) != 0 {
				t.Errorf("backup dir = %v, want empty", got)
			}
			if n := countRecords(t, e.db); n != 0 {
				t.Errorf("records = %d, want 0", n)
			}
			if keys := v.Keys(); len(keys) != 0 {
				t.Errorf("vault keys = %v, want none", keys)
			}
		})
	}

	t.Run("encryption failure is a crypto error", func(t *testing.T) {
		e := newTestEnv(t, withCipher(testutil.FailingCipher{}))
		_, err := e.manager.CreateDatabaseBackup(context.Background(), e.actor)
		var cerr *sk.CryptoError
		if !errors.As(err, &cerr) {
			t.Errorf("error = %v, want it to wrap *sk.CryptoError", err)
		}
	})

	t.Run("staging area refuses a run", func(t *testing.T) {
		e := newTestEnv(t)
		m := sk.NewBackupManager(sk.BackupSettings{BackupDir: e.backupDir}, sk.ManagerDeps{
			Database: e.db,
			Driver:   e.driver,
			Files:    testutil.NewTestFileHandler(e.cipher),
			Archiver: e.archiver,
			FS:       e.fs,
			Staging:  fullStaging{},
			Clock:    e.clock,
		})
		_, err := m.CreateDatabaseBackup(context.Background(), e.actor)
		var berr *sk.BackupError
		if !errors.As(err, &berr) || berr.Stage != "prepare" {
			t.Errorf("error = %v, want BackupError at stage prepare", err)
		}
	})
}

type fullStaging struct{}

func (fullStaging) NewRun() (sk.StagingRun, error) {
	return nil, errors.New("staging area full")
}

func TestBackupManager_CreateArchiveBackups(t *testing.T) {
	t.Run("media backup archives the media root", func(t *testing.T) {
		e := newTestEnv(t)
		writeTree(t, e.mediaRoot, map[string]string{"a.jpg": "img", "sub/b.png": "img2"})

		rec, err := e.manager.CreateMediaBackup(e.actor)
		if err != nil {
			t.Fatalf("CreateMediaBackup() error = %v", err)
		}
		if rec == nil {
			t.Fatal("CreateMediaBackup() returned nil record")
		}
		if filepath.Base(rec.FilePath) != "media_backup_20240115_103000.tar.gz.enc" {
			t.Errorf("FilePath = %s", rec.FilePath)
		}
		if want := e.clock.Now().Add(30 * 24 * time.Hour); !rec.RetentionDate.Equal(want) {
			t.Errorf("RetentionDate = %v, want %v", rec.RetentionDate, want)
		}
		if got := listDir(t, e.backupDir); len(got) != 1 {
			t.Errorf("backup dir = %v, want only the artifact", got)
		}
	})

	t.Run("logs backup keeps 90 days", func(t *testing.T) {
		e := newTestEnv(t)
		writeTree(t, e.logsRoot, map[string]string{"app.log": "line\n"})

		rec, err := e.manager.CreateLogsBackup(e.actor)
		if err != nil {
			t.Fatalf("CreateLogsBackup() error = %v", err)
		}
		if want := e.clock.Now().Add(90 * 24 * time.Hour); !rec.RetentionDate.Equal(want) {
			t.Errorf("RetentionDate = %v, want %v", rec.RetentionDate, want)
		}
		if !strings.HasPrefix(filepath.Base(rec.FilePath), "logs_backup_") {
			t.Errorf("FilePath = %s", rec.FilePath)
		}
	})

	t.Run("absent roots are skipped", func(t *testing.T) {
		e := newTestEnv(t)

		media, err := e.manager.CreateMediaBackup(e.actor)
		if err != nil || media != nil {
			t.Errorf("CreateMediaBackup() = %v, %v, want nil, nil", media, err)
		}
		logs, err := e.manager.CreateLogsBackup(e.actor)
		if err != nil || logs != nil {
			t.Errorf("CreateLogsBackup() = %v, %v, want nil, nil", logs, err)
		}
		if n := countRecords(t, e.db); n != 0 {
			t.Errorf("records = %d, want 0", n)
		}
	})

	t.Run("archive failure leaves nothing", func(t *testing.T) {
		e := newTestEnv(t)
		writeTree(t, e.mediaRoot, map[string]string{"a.jpg": "img"})
		e.archiver.ArchiveErr = errors.New("injected")

		_, err := e.manager.CreateMediaBackup(e.actor)
		var berr *sk.BackupError
		if !errors.As(err, &berr) || berr.Stage != "archive" {
			t.Errorf("error = %v, want BackupError at stage archive", err)
		}
		if got := listDir(t, e.backupDir); len(got) != 0 {
			t.Errorf("backup dir = %v, want empty", got)
		}
	})
}

func TestBackupManager_CreateFullBackup(t *testing.T) {
	t.Run("records every component and a summary", func(t *testing.T) {
		e := newTestEnv(t)
		writeTree(t, e.mediaRoot, map[string]string{"a.jpg": "img"})
		writeTree(t, e.logsRoot, map[string]string{"app.log": "line\n"})

		full, err := e.manager.CreateFullBackup(context.Background(), e.actor)
		if err != nil {
			t.Fatalf("CreateFullBackup() error = %v", err)
		}
		if full.Database == nil || full.Media == nil || full.Logs == nil {
			t.Fatalf("components = %+v, want all three", full)
		}

		rec := full.Record
		if rec.BackupType != model.BackupFull || rec.FilePath != "full_backup_20240115_103000" {
			t.Errorf("summary = %+v", rec)
		}
		if rec.Checksum != "" {
			t.Errorf("summary Checksum = %q, want empty", rec.Checksum)
		}
		if want := full.Database.FileSize + full.Media.FileSize + full.Logs.FileSize; rec.FileSize != want {
			t.Errorf("summary FileSize = %d, want %d", rec.FileSize, want)
		}
		if want := e.clock.Now().Add(90 * 24 * time.Hour); !rec.RetentionDate.Equal(want) {
			t.Errorf("RetentionDate = %v, want %v", rec.RetentionDate, want)
		}
		if n := countRecords(t, e.db); n != 4 {
			t.Errorf("records = %d, want 4", n)
		}
	})

	t.Run("optional components may be absent", func(t *testing.T) {
		e := newTestEnv(t)

		full, err := e.manager.CreateFullBackup(context.Background(), e.actor)
		if err != nil {
			t.Fatalf("CreateFullBackup() error = %v", err)
		}
		if full.Media != nil || full.Logs != nil {
			t.Errorf("components = %+v, want database only", full)
		}
		if full.Record.FileSize != full.Database.FileSize {
			t.Errorf("summary FileSize = %d, want %d", full.Record.FileSize, full.Database.FileSize)
		}
		if n := countRecords(t, e.db); n != 2 {
			t.Errorf("records = %d, want 2", n)
		}
	})

	t.Run("database failure aborts without a summary", func(t *testing.T) {
		e := newTestEnv(t)
		writeTree(t, e.mediaRoot, map[string]string{"a.jpg": "img"})
		e.driver.DumpErr = errors.New("injected")

		if _, err := e.manager.CreateFullBackup(context.Background(), e.actor); err == nil {
			t.Fatal("CreateFullBackup() expected error")
		}
		if n := countRecords(t, e.db); n != 0 {
			t.Errorf("records = %d, want 0", n)
		}
	})
}

func TestBackupManager_Locking(t *testing.T) {
	t.Run("operations in one process are exclusive", func(t *testing.T) {
		e := newTestEnv(t)

		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		e.driver.OnDump = func() {
			once.Do(func() { close(started) })
			<-release
		}

		var wg sync.WaitGroup
		wg.Add(1)
		var firstErr error
		go func() {
			defer wg.Done()
			_, firstErr = e.manager.CreateDatabaseBackup(context.Background(), e.actor)
		}()

		<-started
		_, err := e.manager.CleanupOldBackups()
		if !errors.Is(err, sk.ErrBackupInProgress) {
			t.Errorf("concurrent CleanupOldBackups() error = %v, want ErrBackupInProgress", err)
		}
		close(release)
		wg.Wait()

		if firstErr != nil {
			t.Errorf("first backup error = %v", firstErr)
		}
	})

	t.Run("a lock held by another process fails fast", func(t *testing.T) {
		lockPath := filepath.Join(t.TempDir(), "sk.lock")
		e := newTestEnv(t, withLocker(fs.NewFileLock(lockPath)))

		unlock, err := fs.NewFileLock(lockPath).TryLock()
		if err != nil {
			t.Fatalf("TryLock() error = %v", err)
		}

		_, err = e.manager.CreateDatabaseBackup(context.Background(), e.actor)
		var berr *sk.BackupError
		if !errors.Is(err, sk.ErrBackupInProgress) || !errors.As(err, &berr) || berr.Stage != "lock" {
			t.Errorf("error = %v, want lock-stage ErrBackupInProgress", err)
		}

		if err := unlock(); err != nil {
			t.Fatalf("unlock error = %v", err)
		}
		if _, err := e.manager.CreateDatabaseBackup(context.Background(), e.actor); err != nil {
			t.Errorf("backup after unlock error = %v", err)
		}
	})
}

type recordingMetrics struct {
	mu        sync.Mutex
	succeeded map[model.BackupType]int
	failed    map[model.BackupType]int
	restores  []bool
	removed   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{succeeded: map[model.BackupType]int{}, failed: map[model.BackupType]int{}}
}

func (m *recordingMetrics) BackupSucceeded(t model.BackupType, _ int64, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.succeeded[t]++
}

func (m *recordingMetrics) BackupFailed(t model.BackupType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[t]++
}

func (m *recordingMetrics) RestoreFinished(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restores = append(m.restores, ok)
}

func (m *recordingMetrics) CleanupRemoved(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed += n
}

func TestBackupManager_Metrics(t *testing.T) {
	metrics := newRecordingMetrics()
	e := newTestEnv(t, withMetrics(metrics))

	if _, err := e.manager.CreateFullBackup(context.Background(), e.actor); err != nil {
		t.Fatalf("CreateFullBackup() error = %v", err)
	}
	e.driver.DumpErr = errors.New("injected")
	if _, err := e.manager.CreateDatabaseBackup(context.Background(), e.actor); err == nil {
		t.Fatal("expected dump failure")
	}

	if metrics.succeeded[model.BackupDatabase] != 1 || metrics.succeeded[model.BackupFull] != 1 {
		t.Errorf("succeeded = %v", metrics.succeeded)
	}
	if metrics.failed[model.BackupDatabase] != 1 {
		t.Errorf("failed = %v", metrics.failed)
	}
}
