package sk

import (
	"time"

	"safekeep/internal/model"
)

// AuditFilter narrows audit log queries. Zero fields do not filter.
type AuditFilter struct {
	Username string // substring match on the acting identity's username
	Action   model.Action
	From     time.Time // inclusive
	To       time.Time // exclusive
	Success  *bool
	Limit    int
	Offset   int
}

// Database is the persistence layer for backup records, the audit log,
// identities, roles and encrypted data. Lookups return nil, nil when the
// record does not exist.
type Database interface {
	// Backup records

	// CreateBackupRecord inserts a finished backup record.
	CreateBackupRecord(rec *model.BackupRecord) error

	// FindBackupRecord returns the record with the given ID.
	FindBackupRecord(id string) (*model.BackupRecord, error)

	// ListBackupRecords returns the most recent records, newest first.
	ListBackupRecords(limit int) ([]*model.BackupRecord, error)

	// ListBackupRecordsSince returns records created at or after since, newest first.
	ListBackupRecordsSince(since time.Time) ([]*model.BackupRecord, error)

	// ListExpiredBackupRecords returns records whose retention date is before t.
	ListExpiredBackupRecords(t time.Time) ([]*model.BackupRecord, error)

	// DeleteBackupRecord removes a record by ID. Deleting a missing record is not an error.
	DeleteBackupRecord(id string) error

	// Audit log (append-only)

	// InsertAuditEntry appends an entry to the audit log.
	InsertAuditEntry(entry *model.AuditEntry) error

	// QueryAuditEntries returns matching entries, newest first, with usernames resolved.
	QueryAuditEntries(filter AuditFilter) ([]*model.AuditEntry, error)

	// CountAuditEntries counts matching entries, ignoring Limit and Offset.
	CountAuditEntries(filter AuditFilter) (int64, error)

	// Identities

	CreateIdentity(identity *model.Identity) error
	FindIdentityByID(id string) (*model.Identity, error)
	FindIdentityByUsername(username string) (*model.Identity, error)
	ListIdentities() ([]*model.Identity, error)
	CountIdentities() (int64, error)

	// Roles

	// UpsertRole creates the role or overwrites its description and permissions.
	// created reports whether a new row was inserted.
	UpsertRole(role *model.Role) (created bool, err error)
	FindRoleByName(name model.RoleName) (*model.Role, error)
	ListRoles() ([]*model.Role, error)

	// AssignRole activates the (user, role) assignment, creating it if needed.
	AssignRole(assignment *model.UserRole) (*model.UserRole, error)

	// DeactivateUserRole marks the (user, role) assignment inactive.
	// Returns false if no active assignment existed.
	DeactivateUserRole(userID, roleID string) (bool, error)

	// ListUserRoles returns the user's assignments with their roles loaded.
	ListUserRoles(userID string, activeOnly bool) ([]*model.UserRole, error)

	// Encrypted data

	PutEncryptedData(data *model.EncryptedData) error
	GetEncryptedData(identifier string) (*model.EncryptedData, error)

	Close() error
}
