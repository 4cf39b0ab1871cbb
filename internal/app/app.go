package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"safekeep/internal/archive"
	"safekeep/internal/config"
	"safekeep/internal/database"
	"safekeep/internal/dbdriver"
	"safekeep/internal/encryption"
	"safekeep/internal/fs"
	"safekeep/internal/metrics"
	"safekeep/internal/model"
	"safekeep/internal/sk"
	"safekeep/internal/staging"
	"safekeep/internal/vault"
)

const (
	// LockFileName is the cross-process lock taken inside the backup directory.
	LockFileName = ".sk.lock"

	// MetadataVaultKey is the vault key of the encrypted metadata store snapshot.
	MetadataVaultKey = "sk_metadata.db.enc"
)

// SKApp is the application layer between the CLI and the sk services.
// It constructs all dependencies from config, resolves the acting identity,
// gates and audits every operation, and manages the store lifecycle on Close.
type SKApp struct {
	cfg        *config.Config
	inv        *Invocation
	db         *database.SQLiteDatabase
	vault      sk.Vault
	cipher     sk.Cipher
	files      *encryption.FileHandler
	metrics    *metrics.Registry
	manager    *sk.BackupManager
	gate       *sk.Gate
	audit      *sk.AuditLogger
	identities *sk.Identities
	secrets    *encryption.SecretStore
	logger     sk.Logger
	logFile    *os.File

	actor    *model.Identity
	resolved bool
}

// Options tune how an SKApp is built.
type Options struct {
	Console      io.Writer  // receives log records at ConsoleLevel and above; defaults to stderr
	ConsoleLevel slog.Level // defaults to slog.LevelInfo
	Clock        sk.Clock
	IDGen        sk.IDGenerator
}

// NewSKApp creates a fully wired SKApp from the given config. The metadata
// store must already be migrated (see InitSKApp). The caller must call Close
// when done.
func NewSKApp(ctx context.Context, cfg *config.Config, inv *Invocation, opts Options) (*SKApp, error) {
	return newSKApp(ctx, cfg, inv, opts, false)
}

// InitSKApp is NewSKApp for `sk init`: it applies pending migrations to the
// metadata store instead of refusing to run against an outdated schema.
func InitSKApp(ctx context.Context, cfg *config.Config, inv *Invocation, opts Options) (*SKApp, error) {
	return newSKApp(ctx, cfg, inv, opts, true)
}

func newSKApp(ctx context.Context, cfg *config.Config, inv *Invocation, opts Options, migrate bool) (*SKApp, error) {
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = sk.RealClock{}
	}
	if opts.IDGen == nil {
		opts.IDGen = sk.UUIDGenerator{}
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if migrate {
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
	} else if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run sk init): %w", err)
	}

	cipher, err := encryption.NewCipherFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	v, err := vault.NewVaultsFromConfig(ctx, cfg.Vaults)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	timeout := time.Duration(cfg.Backup.ToolTimeoutSeconds) * time.Second
	driver, err := dbdriver.NewDriverFromConfig(cfg.Target, timeout)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating database driver: %w", err)
	}

	fsmgr := fs.NewOSFilesystemManager()
	sa, err := staging.NewStagingAreaFromConfig(cfg.Backup, fsmgr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating staging area: %w", err)
	}

	slogger, logFile, err := newLogger(cfg.LogDir, inv.ID, opts.Console, opts.ConsoleLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger.With("cmd", inv.Command)}

	files := encryption.NewFileHandler(cipher, fsmgr)
	reg := metrics.NewRegistry()
	manager := sk.NewBackupManager(sk.BackupSettings{
		BackupDir: cfg.Backup.BackupDir,
		MediaRoot: cfg.Backup.MediaRoot,
		LogsRoot:  cfg.Backup.LogsRoot,
	}, sk.ManagerDeps{
		Database: db,
		Driver:   driver,
		Files:    files,
		Archiver: archive.NewGzipArchiver(cfg.Backup.Exclude, logger),
		FS:       fsmgr,
		Staging:  sa,
		Vault:    v,
		Locker:   fs.NewFileLock(filepath.Join(cfg.Backup.BackupDir, LockFileName)),
		Metrics:  reg,
		Logger:   logger,
		Clock:    opts.Clock,
		IDGen:    opts.IDGen,
	})

	audit := sk.NewAuditLogger(db, logger, opts.Clock, opts.IDGen)

	return &SKApp{
		cfg:        cfg,
		inv:        inv,
		db:         db,
		vault:      v,
		cipher:     cipher,
		files:      files,
		metrics:    reg,
		manager:    manager,
		gate:       sk.NewGate(db, audit, logger, opts.Clock, opts.IDGen),
		audit:      audit,
		identities: sk.NewIdentities(db, audit, opts.Clock, opts.IDGen),
		secrets:    encryption.NewSecretStore(db, cipher, opts.Clock),
		logger:     logger,
		logFile:    logFile,
	}, nil
}

// Actor returns the identity the invocation runs as, or nil when it runs
// anonymously. An actor name that matches no identity is an error.
func (a *SKApp) Actor() (*model.Identity, error) {
	if a.resolved {
		return a.actor, nil
	}
	if a.inv.Actor != "" {
		actor, err := a.identities.Lookup(a.inv.Actor)
		if err != nil {
			return nil, fmt.Errorf("resolving acting identity: %w", err)
		}
		a.actor = actor
	}
	a.resolved = true
	return a.actor, nil
}

// authorize resolves the actor and checks perm. Denials are audited by the gate.
func (a *SKApp) authorize(perm model.Permission) (*model.Identity, error) {
	actor, err := a.Actor()
	if err != nil {
		a.inv.Fail()
		return nil, err
	}
	if err := a.gate.RequirePermission(actor, perm, a.inv.RequestContext()); err != nil {
		a.inv.Fail()
		return nil, err
	}
	return actor, nil
}

// record audits the outcome of an operation and marks failed invocations.
func (a *SKApp) record(actor *model.Identity, action model.Action, resourceType, resourceID string, details map[string]any, opErr error) {
	if details == nil {
		details = map[string]any{}
	}
	if opErr != nil {
		details["error"] = opErr.Error()
		a.inv.Fail()
	}
	a.audit.LogActivity(actor, action, resourceType,
		sk.WithResourceID(resourceID),
		sk.WithDetails(details),
		sk.WithSuccess(opErr == nil),
		sk.WithRequest(a.inv.RequestContext()),
	)
}

// Bootstrap seeds the default roles and creates the first superuser when the
// store has no identities yet. It is the only operation that runs ungated.
func (a *SKApp) Bootstrap(adminName string) (*model.Identity, bool, error) {
	a.inv.MarkMutated()

	if _, _, err := a.gate.SeedDefaultRoles(); err != nil {
		a.inv.Fail()
		return nil, false, err
	}
	admin, created, err := a.identities.Bootstrap(adminName)
	if err != nil {
		a.inv.Fail()
		return nil, false, err
	}
	return admin, created, nil
}

// BackupResult is the outcome of CreateBackup. Records lists every record
// written, components first; it is empty when an optional root is absent.
type BackupResult struct {
	Records []*model.BackupRecord
}

// CreateBackup runs a backup of the given type.
func (a *SKApp) CreateBackup(ctx context.Context, t model.BackupType) (*BackupResult, error) {
	actor, err := a.authorize(model.PermManageBackups)
	if err != nil {
		return nil, err
	}
	a.inv.MarkMutated()

	result := &BackupResult{}
	var rec *model.BackupRecord
	switch t {
	case model.BackupDatabase:
		rec, err = a.manager.CreateDatabaseBackup(ctx, actor)
	case model.BackupMedia:
		rec, err = a.manager.CreateMediaBackup(actor)
	case model.BackupLogs:
		rec, err = a.manager.CreateLogsBackup(actor)
	case model.BackupFull:
		var full *sk.FullBackup
		if full, err = a.manager.CreateFullBackup(ctx, actor); err == nil {
			for _, c := range []*model.BackupRecord{full.Database, full.Media, full.Logs} {
				if c != nil {
					result.Records = append(result.Records, c)
				}
			}
			rec = full.Record
		}
	default:
		err = &model.UnknownValueError{Kind: "backup type", Value: string(t)}
	}

	details := map[string]any{"backup_type": string(t)}
	var id string
	if rec != nil {
		id = rec.ID
		details["file_size"] = rec.FileSize
		details["path"] = rec.FilePath
		result.Records = append(result.Records, rec)
	} else if err == nil {
		details["skipped"] = true
	}
	a.record(actor, model.ActionBackupCreate, "backup", id, details, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListBackups returns the most recent backup records, newest first.
func (a *SKApp) ListBackups(limit int) ([]*model.BackupRecord, error) {
	if _, err := a.authorize(model.PermManageBackups); err != nil {
		return nil, err
	}
	return a.manager.ListBackups(limit)
}

// BackupStatus summarizes recent backups and free space.
func (a *SKApp) BackupStatus() (*sk.BackupStatus, error) {
	if _, err := a.authorize(model.PermManageBackups); err != nil {
		return nil, err
	}
	return a.manager.GetBackupStatus()
}

// RestoreBackup restores the database backup with the given record ID.
func (a *SKApp) RestoreBackup(ctx context.Context, id string) error {
	actor, err := a.authorize(model.PermManageBackups)
	if err != nil {
		return err
	}

	rec, err := a.manager.GetBackup(id)
	if err == nil {
		err = a.manager.RestoreDatabaseBackup(ctx, rec)
	}

	details := map[string]any{}
	if rec != nil {
		details["backup_type"] = string(rec.BackupType)
		details["file_size"] = rec.FileSize
		details["path"] = rec.FilePath
	}
	a.record(actor, model.ActionBackupRestore, "backup", id, details, err)
	return err
}

// VerifyBackup checks the artifact of the given record against its checksum.
func (a *SKApp) VerifyBackup(id string) (*model.BackupRecord, error) {
	actor, err := a.authorize(model.PermManageBackups)
	if err != nil {
		return nil, err
	}

	rec, err := a.manager.GetBackup(id)
	if err == nil {
		err = a.manager.VerifyBackup(rec)
	}
	a.record(actor, model.ActionView, "backup", id, map[string]any{"verify": true}, err)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CleanupBackups removes expired backups and returns how many were removed.
func (a *SKApp) CleanupBackups() (int, error) {
	actor, err := a.authorize(model.PermManageBackups)
	if err != nil {
		return 0, err
	}
	a.inv.MarkMutated()

	removed, err := a.manager.CleanupOldBackups()
	a.record(actor, model.ActionBackupCleanup, "backup", "", map[string]any{"deleted_count": removed}, err)
	return removed, err
}

// SeedRoles creates or refreshes the built-in roles.
func (a *SKApp) SeedRoles() (created, updated int, err error) {
	actor, err := a.authorize(model.PermManageRoles)
	if err != nil {
		return 0, 0, err
	}
	a.inv.MarkMutated()

	created, updated, err = a.gate.SeedDefaultRoles()
	a.record(actor, model.ActionPermissionChange, "role", "",
		map[string]any{"action": "seed", "created": created, "updated": updated}, err)
	return created, updated, err
}

// ListRoles returns every role.
func (a *SKApp) ListRoles() ([]*model.Role, error) {
	if _, err := a.authorize(model.PermManageRoles); err != nil {
		return nil, err
	}
	roles, err := a.db.ListRoles()
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	return roles, nil
}

// AssignRole gives the named user a role.
func (a *SKApp) AssignRole(username, role string) (*model.UserRole, error) {
	actor, err := a.authorize(model.PermManageRoles)
	if err != nil {
		return nil, err
	}
	name, err := model.ParseRoleName(role)
	if err != nil {
		a.inv.Fail()
		return nil, err
	}
	user, err := a.identities.Lookup(username)
	if err != nil {
		a.inv.Fail()
		return nil, err
	}
	a.inv.MarkMutated()

	ur, err := a.gate.AssignRole(actor, user, name, a.inv.RequestContext())
	if err != nil {
		a.inv.Fail()
		return nil, err
	}
	return ur, nil
}

// RevokeRole takes a role away from the named user.
func (a *SKApp) RevokeRole(username, role string) error {
	actor, err := a.authorize(model.PermManageRoles)
	if err != nil {
		return err
	}
	name, err := model.ParseRoleName(role)
	if err != nil {
		a.inv.Fail()
		return err
	}
	user, err := a.identities.Lookup(username)
	if err != nil {
		a.inv.Fail()
		return err
	}
	a.inv.MarkMutated()

	if err := a.gate.RevokeRole(actor, user, name, a.inv.RequestContext()); err != nil {
		a.inv.Fail()
		return err
	}
	return nil
}

// UserRoles returns the named user's role assignments.
func (a *SKApp) UserRoles(username string) ([]*model.UserRole, error) {
	if _, err := a.authorize(model.PermManageRoles); err != nil {
		return nil, err
	}
	user, err := a.identities.Lookup(username)
	if err != nil {
		return nil, err
	}
	return a.gate.UserRoles(user)
}

// AddUser creates an identity.
func (a *SKApp) AddUser(username string, superuser bool) (*model.Identity, error) {
	actor, err := a.authorize(model.PermManageUsers)
	if err != nil {
		return nil, err
	}
	a.inv.MarkMutated()

	u, err := a.identities.Create(actor, username, superuser)
	if err != nil {
		a.inv.Fail()
		return nil, err
	}
	return u, nil
}

// ListUsers returns every identity.
func (a *SKApp) ListUsers() ([]*model.Identity, error) {
	if _, err := a.authorize(model.PermManageUsers); err != nil {
		return nil, err
	}
	return a.identities.List()
}

// QueryAudit returns one page of the audit log.
func (a *SKApp) QueryAudit(filter sk.AuditFilter, page int) (*sk.AuditPage, error) {
	if _, err := a.authorize(model.PermViewAuditLogs); err != nil {
		return nil, err
	}
	return a.audit.Query(filter, page)
}

// ExportAudit writes matching audit entries to w as CSV. The export itself is audited.
func (a *SKApp) ExportAudit(w io.Writer, filter sk.AuditFilter) (int, error) {
	actor, err := a.authorize(model.PermViewAuditLogs)
	if err != nil {
		return 0, err
	}

	rows, err := a.audit.ExportCSV(w, filter)
	a.record(actor, model.ActionExport, "audit_logs", "", map[string]any{"rows": rows}, err)
	return rows, err
}

// SecuritySummary returns the security dashboard counters.
func (a *SKApp) SecuritySummary() (*sk.SecuritySummary, error) {
	if _, err := a.authorize(model.PermViewAuditLogs); err != nil {
		return nil, err
	}
	return a.audit.Summary()
}

// PutSecret stores a JSON document encrypted under name.
func (a *SKApp) PutSecret(name, rawJSON string) error {
	actor, err := a.authorize(model.PermManageSecurity)
	if err != nil {
		return err
	}

	var value any
	if err := json.Unmarshal([]byte(rawJSON), &value); err != nil {
		a.inv.Fail()
		return fmt.Errorf("secret value is not valid JSON: %w", err)
	}
	a.inv.MarkMutated()

	err = a.secrets.Put(name, value)
	a.record(actor, model.ActionUpdate, "encrypted_data", name, nil, err)
	return err
}

// GetSecret returns the JSON document stored under name.
func (a *SKApp) GetSecret(name string) (string, error) {
	actor, err := a.authorize(model.PermManageSecurity)
	if err != nil {
		return "", err
	}

	var value any
	err = a.secrets.Get(name, &value)
	a.record(actor, model.ActionView, "encrypted_data", name, nil, err)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encoding secret %s: %w", name, err)
	}
	return string(data), nil
}

// Close finalizes the invocation and closes all resources.
// For mutating invocations with a vault configured, an encrypted snapshot of
// the metadata store is copied to the vault. Metrics are written to the
// configured textfile.
func (a *SKApp) Close() error {
	var errs []error

	if a.inv.Mutated() && a.vault != nil {
		if err := a.uploadMetadata(); err != nil {
			errs = append(errs, err)
		}
	}

	if path := a.cfg.Backup.MetricsTextfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		}
	}

	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	a.logger.Info("invocation finished", "status", a.inv.Status, "actor", a.inv.Actor)
	if a.logFile != nil {
		a.logFile.Close()
	}

	return errors.Join(errs...)
}

// uploadMetadata snapshots the metadata store, encrypts the snapshot and
// uploads it to the vault under MetadataVaultKey.
func (a *SKApp) uploadMetadata() error {
	dir, err := os.MkdirTemp("", "sk-metadata-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for metadata snapshot: %w", err)
	}
	defer os.RemoveAll(dir)

	plain := filepath.Join(dir, "sk.db")
	if err := a.db.BackupTo(plain); err != nil {
		return fmt.Errorf("snapshotting metadata: %w", err)
	}

	enc := filepath.Join(dir, MetadataVaultKey)
	if _, err := a.files.EncryptFile(plain, enc); err != nil {
		return fmt.Errorf("encrypting metadata snapshot: %w", err)
	}

	f, err := os.Open(enc)
	if err != nil {
		return fmt.Errorf("opening metadata snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat metadata snapshot: %w", err)
	}

	if err := a.vault.Put(MetadataVaultKey, f, info.Size()); err != nil {
		return fmt.Errorf("uploading metadata to vault: %w", err)
	}
	a.logger.Debug("metadata snapshot uploaded", "key", MetadataVaultKey, "size", info.Size())
	return nil
}
