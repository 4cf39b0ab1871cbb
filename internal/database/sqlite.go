package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"safekeep/internal/database/migrations"
	"safekeep/internal/database/queries"
	"safekeep/internal/model"
	"safekeep/internal/sk"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements sk.Database using SQLite.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *queries.Queries
	path    string
}

// NewSQLiteDatabase opens the database at path. path can be a file path or
// ":memory:" for an in-memory database. The schema is not migrated.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteDatabase{
		db:      db,
		queries: queries.New(db),
		path:    path,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		db:      db,
		queries: queries.New(db),
	}
}

// OpenConnection opens and configures a SQLite database connection.
// Foreign keys are enabled on every pooled connection via the DSN.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Backup records

func toBackupRecord(r queries.BackupRecord) *model.BackupRecord {
	return &model.BackupRecord{
		ID:            r.ID,
		BackupType:    model.BackupType(r.BackupType),
		FilePath:      r.FilePath,
		FileSize:      r.FileSize,
		Checksum:      r.Checksum,
		IsEncrypted:   r.IsEncrypted,
		RetentionDate: r.RetentionDate.UTC(),
		CreatedBy:     r.CreatedBy.String,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func toBackupRecords(rows []queries.BackupRecord) []*model.BackupRecord {
	result := make([]*model.BackupRecord, len(rows))
	for i := range rows {
		result[i] = toBackupRecord(rows[i])
	}
	return result
}

func (s *SQLiteDatabase) CreateBackupRecord(rec *model.BackupRecord) error {
	err := s.queries.InsertBackupRecord(context.Background(), queries.InsertBackupRecordParams{
		ID:            rec.ID,
		BackupType:    string(rec.BackupType),
		FilePath:      rec.FilePath,
		FileSize:      rec.FileSize,
		Checksum:      rec.Checksum,
		IsEncrypted:   rec.IsEncrypted,
		RetentionDate: rec.RetentionDate.UTC(),
		CreatedBy:     nullString(rec.CreatedBy),
		CreatedAt:     rec.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("creating backup record: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindBackupRecord(id string) (*model.BackupRecord, error) {
	r, err := s.queries.GetBackupRecord(context.Background(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding backup record: %w", err)
	}
	return toBackupRecord(r), nil
}

func (s *SQLiteDatabase) ListBackupRecords(limit int) ([]*model.BackupRecord, error) {
	rows, err := s.queries.ListBackupRecords(context.Background(), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing backup records: %w", err)
	}
	return toBackupRecords(rows), nil
}

func (s *SQLiteDatabase) ListBackupRecordsSince(since time.Time) ([]*model.BackupRecord, error) {
	rows, err := s.queries.ListBackupRecordsSince(context.Background(), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing backup records since %s: %w", since.Format(time.RFC3339), err)
	}
	return toBackupRecords(rows), nil
}

func (s *SQLiteDatabase) ListExpiredBackupRecords(t time.Time) ([]*model.BackupRecord, error) {
	rows, err := s.queries.ListExpiredBackupRecords(context.Background(), t.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing expired backup records: %w", err)
	}
	return toBackupRecords(rows), nil
}

func (s *SQLiteDatabase) DeleteBackupRecord(id string) error {
	if err := s.queries.DeleteBackupRecord(context.Background(), id); err != nil {
		return fmt.Errorf("deleting backup record: %w", err)
	}
	return nil
}

// Audit log

func toAuditLogFilter(f sk.AuditFilter) queries.AuditLogFilter {
	qf := queries.AuditLogFilter{
		Username: f.Username,
		Action:   string(f.Action),
		Limit:    int64(f.Limit),
		Offset:   int64(f.Offset),
	}
	if !f.From.IsZero() {
		qf.From = f.From.UTC()
	}
	if !f.To.IsZero() {
		qf.To = f.To.UTC()
	}
	if f.Success != nil {
		qf.Success = sql.NullBool{Bool: *f.Success, Valid: true}
	}
	return qf
}

func (s *SQLiteDatabase) InsertAuditEntry(entry *model.AuditEntry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encoding audit details: %w", err)
	}

	err = s.queries.InsertAuditLog(context.Background(), queries.InsertAuditLogParams{
		ID:           entry.ID,
		UserID:       nullString(entry.UserID),
		Action:       string(entry.Action),
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		IpAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		Details:      string(encoded),
		Success:      entry.Success,
		Timestamp:    entry.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) QueryAuditEntries(filter sk.AuditFilter) ([]*model.AuditEntry, error) {
	rows, err := s.queries.ListAuditLogs(context.Background(), toAuditLogFilter(filter))
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}

	result := make([]*model.AuditEntry, len(rows))
	for i, r := range rows {
		details := map[string]any{}
		if r.Details != "" {
			if err := json.Unmarshal([]byte(r.Details), &details); err != nil {
				return nil, fmt.Errorf("decoding details of audit entry %s: %w", r.ID, err)
			}
		}
		result[i] = &model.AuditEntry{
			ID:           r.ID,
			UserID:       r.UserID.String,
			Username:     r.Username.String,
			Action:       model.Action(r.Action),
			ResourceType: r.ResourceType,
			ResourceID:   r.ResourceID,
			IPAddress:    r.IpAddress,
			UserAgent:    r.UserAgent,
			Details:      details,
			Success:      r.Success,
			Timestamp:    r.Timestamp.UTC(),
		}
	}
	return result, nil
}

func (s *SQLiteDatabase) CountAuditEntries(filter sk.AuditFilter) (int64, error) {
	count, err := s.queries.CountAuditLogs(context.Background(), toAuditLogFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("counting audit entries: %w", err)
	}
	return count, nil
}

// Identities

func toIdentity(i queries.Identity) *model.Identity {
	return &model.Identity{
		ID:          i.ID,
		Username:    i.Username,
		IsSuperuser: i.IsSuperuser,
		IsActive:    i.IsActive,
		CreatedAt:   i.CreatedAt.UTC(),
	}
}

func (s *SQLiteDatabase) CreateIdentity(identity *model.Identity) error {
	err := s.queries.InsertIdentity(context.Background(), queries.InsertIdentityParams{
		ID:          identity.ID,
		Username:    identity.Username,
		IsSuperuser: identity.IsSuperuser,
		IsActive:    identity.IsActive,
		CreatedAt:   identity.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("creating identity: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindIdentityByID(id string) (*model.Identity, error) {
	i, err := s.queries.GetIdentityByID(context.Background(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding identity by id: %w", err)
	}
	return toIdentity(i), nil
}

func (s *SQLiteDatabase) FindIdentityByUsername(username string) (*model.Identity, error) {
	i, err := s.queries.GetIdentityByUsername(context.Background(), username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding identity by username: %w", err)
	}
	return toIdentity(i), nil
}

func (s *SQLiteDatabase) ListIdentities() ([]*model.Identity, error) {
	rows, err := s.queries.ListIdentities(context.Background())
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	result := make([]*model.Identity, len(rows))
	for i := range rows {
		result[i] = toIdentity(rows[i])
	}
	return result, nil
}

func (s *SQLiteDatabase) CountIdentities() (int64, error) {
	count, err := s.queries.CountIdentities(context.Background())
	if err != nil {
		return 0, fmt.Errorf("counting identities: %w", err)
	}
	return count, nil
}

// Roles

func toRole(r queries.Role) (*model.Role, error) {
	var perms model.PermissionSet
	if err := json.Unmarshal([]byte(r.Permissions), &perms); err != nil {
		return nil, fmt.Errorf("decoding permissions of role %s: %w", r.Name, err)
	}
	return &model.Role{
		ID:          r.ID,
		Name:        model.RoleName(r.Name),
		Description: r.Description,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}, nil
}

func (s *SQLiteDatabase) UpsertRole(role *model.Role) (bool, error) {
	ctx := context.Background()

	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return false, fmt.Errorf("encoding permissions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	created := false
	existing, err := qtx.GetRoleByName(ctx, string(role.Name))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = qtx.InsertRole(ctx, queries.InsertRoleParams{
			ID:          role.ID,
			Name:        string(role.Name),
			Description: role.Description,
			Permissions: string(perms),
			CreatedAt:   role.CreatedAt.UTC(),
			UpdatedAt:   role.UpdatedAt.UTC(),
		})
		if err != nil {
			return false, fmt.Errorf("inserting role: %w", err)
		}
		created = true
	case err != nil:
		return false, fmt.Errorf("finding role: %w", err)
	default:
		err = qtx.UpdateRole(ctx, queries.UpdateRoleParams{
			Description: role.Description,
			Permissions: string(perms),
			UpdatedAt:   role.UpdatedAt.UTC(),
			ID:          existing.ID,
		})
		if err != nil {
			return false, fmt.Errorf("updating role: %w", err)
		}
		role.ID = existing.ID
		role.CreatedAt = existing.CreatedAt.UTC()
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return created, nil
}

func (s *SQLiteDatabase) FindRoleByName(name model.RoleName) (*model.Role, error) {
	r, err := s.queries.GetRoleByName(context.Background(), string(name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding role by name: %w", err)
	}
	return toRole(r)
}

func (s *SQLiteDatabase) ListRoles() ([]*model.Role, error) {
	rows, err := s.queries.ListRoles(context.Background())
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	result := make([]*model.Role, len(rows))
	for i := range rows {
		if result[i], err = toRole(rows[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// User roles

func (s *SQLiteDatabase) AssignRole(assignment *model.UserRole) (*model.UserRole, error) {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	result := *assignment
	result.IsActive = true
	result.AssignedAt = assignment.AssignedAt.UTC()

	existing, err := qtx.GetUserRole(ctx, assignment.UserID, assignment.Role.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = qtx.InsertUserRole(ctx, queries.InsertUserRoleParams{
			ID:         assignment.ID,
			UserID:     assignment.UserID,
			RoleID:     assignment.Role.ID,
			AssignedBy: nullString(assignment.AssignedBy),
			AssignedAt: result.AssignedAt,
			IsActive:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("inserting user role: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("finding user role: %w", err)
	default:
		// Re-assigning reactivates the existing row.
		err = qtx.ActivateUserRole(ctx, queries.ActivateUserRoleParams{
			AssignedBy: nullString(assignment.AssignedBy),
			AssignedAt: result.AssignedAt,
			ID:         existing.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("reactivating user role: %w", err)
		}
		result.ID = existing.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return &result, nil
}

func (s *SQLiteDatabase) DeactivateUserRole(userID, roleID string) (bool, error) {
	n, err := s.queries.DeactivateUserRole(context.Background(), userID, roleID)
	if err != nil {
		return false, fmt.Errorf("deactivating user role: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) ListUserRoles(userID string, activeOnly bool) ([]*model.UserRole, error) {
	rows, err := s.queries.ListUserRoles(context.Background(), userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing user roles: %w", err)
	}

	result := make([]*model.UserRole, len(rows))
	for i, r := range rows {
		role, err := toRole(r.Role)
		if err != nil {
			return nil, err
		}
		result[i] = &model.UserRole{
			ID:         r.ID,
			UserID:     r.UserID,
			Role:       *role,
			AssignedBy: r.AssignedBy.String,
			AssignedAt: r.AssignedAt.UTC(),
			IsActive:   r.IsActive,
		}
	}
	return result, nil
}

// Encrypted data

func (s *SQLiteDatabase) PutEncryptedData(data *model.EncryptedData) error {
	err := s.queries.UpsertEncryptedData(context.Background(), queries.UpsertEncryptedDataParams{
		Identifier: data.Identifier,
		Data:       data.Data,
		CreatedAt:  data.CreatedAt.UTC(),
		UpdatedAt:  data.UpdatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("storing encrypted data: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetEncryptedData(identifier string) (*model.EncryptedData, error) {
	d, err := s.queries.GetEncryptedData(context.Background(), identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding encrypted data: %w", err)
	}
	return &model.EncryptedData{
		Identifier: d.Identifier,
		Data:       d.Data,
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate applies pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements sk.Database interface
var _ sk.Database = (*SQLiteDatabase)(nil)
