package model

import "time"

// Identity is the subject of permission checks and audit entries.
// A nil *Identity or an inactive one is treated as unauthenticated.
type Identity struct {
	ID          string // UUID
	Username    string
	IsSuperuser bool
	IsActive    bool
	CreatedAt   time.Time
}

// Authenticated reports whether the identity may be considered for authorization at all.
func (i *Identity) Authenticated() bool {
	return i != nil && i.ID != "" && i.IsActive
}

// DisplayName returns the username, or "Anonymous" for a nil identity.
func (i *Identity) DisplayName() string {
	if i == nil || i.Username == "" {
		return "Anonymous"
	}
	return i.Username
}

// BackupType identifies what a backup artifact contains.
type BackupType string

const (
	BackupFull     BackupType = "full"
	BackupDatabase BackupType = "database"
	BackupMedia    BackupType = "media"
	BackupLogs     BackupType = "logs"
)

// ParseBackupType validates a raw backup type string.
func ParseBackupType(s string) (BackupType, error) {
	switch t := BackupType(s); t {
	case BackupFull, BackupDatabase, BackupMedia, BackupLogs:
		return t, nil
	}
	return "", &UnknownValueError{Kind: "backup type", Value: s}
}

// RetentionPeriod returns how long artifacts of this type are kept.
// Database and media backups are kept 30 days; logs and full backups 90.
func (t BackupType) RetentionPeriod() time.Duration {
	switch t {
	case BackupLogs, BackupFull:
		return 90 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// BackupRecord is the ledger entry for one finished backup artifact.
type BackupRecord struct {
	ID            string // UUID
	BackupType    BackupType
	FilePath      string // absolute path of the .enc artifact; "full_backup_<ts>" for full backups
	FileSize      int64
	Checksum      string // SHA-256 hex of the artifact; empty for full backups
	IsEncrypted   bool
	RetentionDate time.Time
	CreatedBy     string // Identity ID, empty when run without an identity
	CreatedAt     time.Time
}

// Expired reports whether the record's retention date has passed at now.
func (r *BackupRecord) Expired(now time.Time) bool {
	return r.RetentionDate.Before(now)
}

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID           string // UUID
	UserID       string // empty for anonymous activity
	Username     string // resolved at read time; empty for anonymous activity
	Action       Action
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
	Details      map[string]any
	Success      bool
	Timestamp    time.Time
}

// UserRole assigns a Role to an Identity.
// Only active assignments confer permissions.
type UserRole struct {
	ID         string
	UserID     string
	Role       Role
	AssignedBy string // Identity ID of the assigner, may be empty
	AssignedAt time.Time
	IsActive   bool
}

// EncryptedData is an identifier-keyed encrypted blob.
type EncryptedData struct {
	Identifier string
	Data       []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UnknownValueError reports a value outside one of the closed vocabularies.
type UnknownValueError struct {
	Kind  string
	Value string
}

func (e *UnknownValueError) Error() string {
	return "unknown " + e.Kind + ": " + e.Value
}
