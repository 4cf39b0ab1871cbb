package sk_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"

	"safekeep/internal/database"
	"safekeep/internal/model"
	"safekeep/internal/sk"
	"safekeep/internal/testutil"
)

var dumpContent = []byte("CREATE TABLE t(x);\nINSERT INTO t VALUES (1);\n")

// testEnv wires a BackupManager to a temporary backup directory, a real
// database and cipher, and fault-injectable driver, archiver and filesystem.
type testEnv struct {
	db        *database.SQLiteDatabase
	records   *testutil.FaultyDatabase
	clock     *testutil.StubClock
	driver    *testutil.FakeDriver
	archiver  *testutil.FaultyArchiver
	fs        *testutil.FaultyFilesystemManager
	cipher    sk.Cipher
	backupDir string
	mediaRoot string
	logsRoot  string
	manager   *sk.BackupManager
	actor     *model.Identity
}

type envOption func(*sk.BackupSettings, *sk.ManagerDeps)

func withVault(v sk.Vault) envOption {
	return func(_ *sk.BackupSettings, d *sk.ManagerDeps) { d.Vault = v }
}

func withCipher(c sk.Cipher) envOption {
	return func(_ *sk.BackupSettings, d *sk.ManagerDeps) { d.Files = testutil.NewTestFileHandler(c) }
}

func withDriver(drv sk.DatabaseDriver) envOption {
	return func(_ *sk.BackupSettings, d *sk.ManagerDeps) { d.Driver = drv }
}

func withLocker(l sk.Locker) envOption {
	return func(_ *sk.BackupSettings, d *sk.ManagerDeps) { d.Locker = l }
}

func withMetrics(m sk.Metrics) envOption {
	return func(_ *sk.BackupSettings, d *sk.ManagerDeps) { d.Metrics = m }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	return newTestEnvIn(t, "backups", opts...)
}

// newTestEnvIn is newTestEnv with the backup directory named dirName.
func newTestEnvIn(t *testing.T, dirName string, opts ...envOption) *testEnv {
	t.Helper()

	root := t.TempDir()
	e := &testEnv{
		db:        testutil.NewTestDatabase(t),
		clock:     testutil.FixedClock(),
		driver:    testutil.NewFakeDriver(dumpContent),
		archiver:  testutil.NewFaultyArchiver(),
		fs:        testutil.NewFaultyFilesystemManager(),
		cipher:    testutil.NewKeyCipher(t),
		backupDir: filepath.Join(root, dirName),
		mediaRoot: filepath.Join(root, "media"),
		logsRoot:  filepath.Join(root, "logs"),
	}
	e.records = testutil.NewFaultyDatabase(e.db)

	e.actor = &model.Identity{ID: "admin-id", Username: "admin", IsSuperuser: true, IsActive: true, CreatedAt: e.clock.Now()}
	if err := e.db.CreateIdentity(e.actor); err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}

	settings := sk.BackupSettings{
		BackupDir: e.backupDir,
		MediaRoot: e.mediaRoot,
		LogsRoot:  e.logsRoot,
	}
	deps := sk.ManagerDeps{
		Database: e.records,
		Driver:   e.driver,
		Files:    testutil.NewTestFileHandler(e.cipher),
		Archiver: e.archiver,
		FS:       e.fs,
		Staging:  testutil.NewTestStagingArea(t, e.backupDir),
		Clock:    e.clock,
		IDGen:    testutil.NewStubIDGenerator(),
	}
	for _, opt := range opts {
		opt(&settings, &deps)
	}

	e.manager = sk.NewBackupManager(settings, deps)
	return e
}

// writeTree creates files (relative path → content) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// listDir returns the sorted names in dir.
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// openArtifact decrypts and gunzips an artifact.
func openArtifact(t *testing.T, c sk.Cipher, path string) []byte {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening artifact: %v", err)
	}
	defer f.Close()

	var compressed bytes.Buffer
	if err := c.DecryptStream(f, &compressed); err != nil {
		t.Fatalf("decrypting artifact: %v", err)
	}
	zr, err := gzip.NewReader(&compressed)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	return data
}

func countRecords(t *testing.T, db sk.Database) int {
	t.Helper()
	recs, err := db.ListBackupRecords(1000)
	if err != nil {
		t.Fatalf("ListBackupRecords() error = %v", err)
	}
	return len(recs)
}

func fileChecksum(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return testutil.SHA256Hex(data)
}
