package queries

import (
	"database/sql"
	"time"
)

type Identity struct {
	ID          string
	Username    string
	IsSuperuser bool
	IsActive    bool
	CreatedAt   time.Time
}

type BackupRecord struct {
	ID            string
	BackupType    string
	FilePath      string
	FileSize      int64
	Checksum      string
	IsEncrypted   bool
	RetentionDate time.Time
	CreatedBy     sql.NullString
	CreatedAt     time.Time
}

type AuditLog struct {
	ID           string
	UserID       sql.NullString
	Action       string
	ResourceType string
	ResourceID   string
	IpAddress    string
	UserAgent    string
	Details      string
	Success      bool
	Timestamp    time.Time
}

// AuditLogRow is an audit log entry joined with the acting identity.
type AuditLogRow struct {
	AuditLog
	Username sql.NullString
}

type Role struct {
	ID          string
	Name        string
	Description string
	Permissions string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type UserRole struct {
	ID         string
	UserID     string
	RoleID     string
	AssignedBy sql.NullString
	AssignedAt time.Time
	IsActive   bool
}

// UserRoleRow is an assignment joined with its role.
type UserRoleRow struct {
	UserRole
	Role Role
}

type EncryptedDatum struct {
	Identifier string
	Data       []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
