package sk

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"safekeep/internal/model"
)

const (
	// DefaultIPAddress is recorded when no request context is available.
	DefaultIPAddress = "127.0.0.1"

	// DefaultUserAgent is recorded when no request context is available.
	DefaultUserAgent = "Unknown"

	// DefaultAuditPageSize is the page size used by AuditLogger.Query.
	DefaultAuditPageSize = 50
)

// RequestContext describes where an audited action came from.
type RequestContext struct {
	RemoteAddr   string // host or host:port
	ForwardedFor string // raw X-Forwarded-For header
	UserAgent    string
}

// RequestContextFromHTTP captures the audit-relevant parts of an HTTP request.
func RequestContextFromHTTP(r *http.Request) *RequestContext {
	return &RequestContext{
		RemoteAddr:   r.RemoteAddr,
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		UserAgent:    r.UserAgent(),
	}
}

// ClientIP returns the first X-Forwarded-For address, else the remote host,
// else DefaultIPAddress.
func (rc *RequestContext) ClientIP() string {
	if rc == nil {
		return DefaultIPAddress
	}
	if rc.ForwardedFor != "" {
		first, _, _ := strings.Cut(rc.ForwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if rc.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(rc.RemoteAddr); err == nil {
			return host
		}
		return rc.RemoteAddr
	}
	return DefaultIPAddress
}

// Agent returns the user agent, or DefaultUserAgent.
func (rc *RequestContext) Agent() string {
	if rc == nil || rc.UserAgent == "" {
		return DefaultUserAgent
	}
	return rc.UserAgent
}

// ActivityOption customizes an audit entry written by LogActivity.
type ActivityOption func(*model.AuditEntry)

// WithResourceID sets the identifier of the affected resource.
func WithResourceID(id string) ActivityOption {
	return func(e *model.AuditEntry) { e.ResourceID = id }
}

// WithDetails merges details into the entry's JSON details object.
func WithDetails(details map[string]any) ActivityOption {
	return func(e *model.AuditEntry) {
		for k, v := range details {
			e.Details[k] = v
		}
	}
}

// WithSuccess records whether the action succeeded. Entries default to success.
func WithSuccess(success bool) ActivityOption {
	return func(e *model.AuditEntry) { e.Success = success }
}

// WithRequest records the client address and user agent from rc.
func WithRequest(rc *RequestContext) ActivityOption {
	return func(e *model.AuditEntry) {
		e.IPAddress = rc.ClientIP()
		e.UserAgent = rc.Agent()
	}
}

// AuditLogger is the single writer of the append-only audit log.
type AuditLogger struct {
	database Database
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewAuditLogger creates an AuditLogger.
func NewAuditLogger(database Database, logger Logger, clock Clock, idgen IDGenerator) *AuditLogger {
	return &AuditLogger{
		database: database,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// LogActivity appends an audit entry. It never fails the caller: a write
// error is logged and dropped so auditing cannot abort a business operation.
func (a *AuditLogger) LogActivity(user *model.Identity, action model.Action, resourceType string, opts ...ActivityOption) {
	entry := &model.AuditEntry{
		ID:           a.idgen.New(),
		Action:       action,
		ResourceType: resourceType,
		IPAddress:    DefaultIPAddress,
		UserAgent:    DefaultUserAgent,
		Details:      map[string]any{},
		Success:      true,
		Timestamp:    a.clock.Now(),
	}
	if user != nil && user.ID != "" {
		entry.UserID = user.ID
		entry.Username = user.Username
	}
	for _, opt := range opts {
		opt(entry)
	}

	if err := a.database.InsertAuditEntry(entry); err != nil {
		a.logger.Error("writing audit entry", "action", action, "resource_type", resourceType, "error", err)
		return
	}
	a.logger.Debug("audit entry written", "action", action, "user", user.DisplayName(), "success", entry.Success)
}

// AuditPage is one page of audit query results.
type AuditPage struct {
	Entries  []*model.AuditEntry
	Total    int64
	Page     int
	PageSize int
}

// Pages returns the number of pages needed to show every matching entry.
func (p *AuditPage) Pages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 1
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// Query returns one page of matching entries, newest first. Pages start at 1;
// the page size is filter.Limit or DefaultAuditPageSize.
func (a *AuditLogger) Query(filter AuditFilter, page int) (*AuditPage, error) {
	if page < 1 {
		page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultAuditPageSize
	}
	filter.Offset = (page - 1) * filter.Limit

	total, err := a.database.CountAuditEntries(filter)
	if err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}
	entries, err := a.database.QueryAuditEntries(filter)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}

	return &AuditPage{
		Entries:  entries,
		Total:    total,
		Page:     page,
		PageSize: filter.Limit,
	}, nil
}

// SecuritySummary holds the counters shown on the security dashboard.
type SecuritySummary struct {
	TotalIdentities   int64
	RecentLogins      int64 // login entries in the last 24 hours
	FailedAttempts    int64 // unsuccessful entries of any action in the last 24 hours
	RecentBackupCount int   // backup records created in the last 7 days
}

// Summary computes the security dashboard counters.
func (a *AuditLogger) Summary() (*SecuritySummary, error) {
	now := a.clock.Now()
	dayAgo := now.Add(-24 * time.Hour)

	identities, err := a.database.CountIdentities()
	if err != nil {
		return nil, fmt.Errorf("counting identities: %w", err)
	}

	logins, err := a.database.CountAuditEntries(AuditFilter{Action: model.ActionLogin, From: dayAgo})
	if err != nil {
		return nil, fmt.Errorf("counting logins: %w", err)
	}

	failed := false
	failures, err := a.database.CountAuditEntries(AuditFilter{Success: &failed, From: dayAgo})
	if err != nil {
		return nil, fmt.Errorf("counting failed attempts: %w", err)
	}

	backups, err := a.database.ListBackupRecordsSince(now.Add(-recentWindow))
	if err != nil {
		return nil, fmt.Errorf("listing recent backups: %w", err)
	}

	return &SecuritySummary{
		TotalIdentities:   identities,
		RecentLogins:      logins,
		FailedAttempts:    failures,
		RecentBackupCount: len(backups),
	}, nil
}
