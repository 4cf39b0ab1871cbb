package model

import (
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// Permission is one key of the fixed permission vocabulary.
type Permission uint8

const (
	PermViewDashboard Permission = iota
	PermManageUsers
	PermManageContent
	PermManageReports
	PermSendAlerts
	PermViewAnalytics
	PermManageRoles
	PermViewAuditLogs
	PermManageBackups
	PermManageSecurity
	PermExportData
	PermImportData
	PermModerateContent
	PermManageChallenges
	PermManageNotifications

	numPermissions
)

var permissionKeys = [numPermissions]string{
	PermViewDashboard:       "view_dashboard",
	PermManageUsers:         "manage_users",
	PermManageContent:       "manage_content",
	PermManageReports:       "manage_reports",
	PermSendAlerts:          "send_alerts",
	PermViewAnalytics:       "view_analytics",
	PermManageRoles:         "manage_roles",
	PermViewAuditLogs:       "view_audit_logs",
	PermManageBackups:       "manage_backups",
	PermManageSecurity:      "manage_security",
	PermExportData:          "export_data",
	PermImportData:          "import_data",
	PermModerateContent:     "moderate_content",
	PermManageChallenges:    "manage_challenges",
	PermManageNotifications: "manage_notifications",
}

var permissionNames = [numPermissions]string{
	PermViewDashboard:       "View Admin Dashboard",
	PermManageUsers:         "Manage Users",
	PermManageContent:       "Manage Content",
	PermManageReports:       "Manage Reports",
	PermSendAlerts:          "Send Emergency Alerts",
	PermViewAnalytics:       "View Analytics",
	PermManageRoles:         "Manage User Roles",
	PermViewAuditLogs:       "View Audit Logs",
	PermManageBackups:       "Manage System Backups",
	PermManageSecurity:      "Manage Security Settings",
	PermExportData:          "Export System Data",
	PermImportData:          "Import System Data",
	PermModerateContent:     "Moderate User Content",
	PermManageChallenges:    "Manage Challenges",
	PermManageNotifications: "Manage Notifications",
}

// AllPermissions returns every permission in vocabulary order.
func AllPermissions() []Permission {
	perms := make([]Permission, numPermissions)
	for i := range perms {
		perms[i] = Permission(i)
	}
	return perms
}

// ParsePermission maps a permission key such as "manage_backups" to its Permission.
func ParsePermission(key string) (Permission, error) {
	for i, k := range permissionKeys {
		if k == key {
			return Permission(i), nil
		}
	}
	return 0, &UnknownValueError{Kind: "permission", Value: key}
}

// Valid reports whether p is part of the vocabulary.
func (p Permission) Valid() bool { return p < numPermissions }

// String returns the permission key.
func (p Permission) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Permission(%d)", uint8(p))
	}
	return permissionKeys[p]
}

// DisplayName returns the human-readable permission label.
func (p Permission) DisplayName() string {
	if !p.Valid() {
		return p.String()
	}
	return permissionNames[p]
}

// PermissionSet is a bitset over the permission vocabulary.
// The zero value grants nothing.
type PermissionSet uint32

// NewPermissionSet returns a set granting exactly the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range perms {
		s = s.With(p)
	}
	return s
}

// FullPermissionSet grants every permission in the vocabulary.
func FullPermissionSet() PermissionSet {
	return PermissionSet(1<<numPermissions - 1)
}

// Has reports whether p is granted.
func (s PermissionSet) Has(p Permission) bool {
	return p.Valid() && s&(1<<p) != 0
}

// With returns a copy of s that also grants p.
func (s PermissionSet) With(p Permission) PermissionSet {
	if !p.Valid() {
		return s
	}
	return s | 1<<p
}

// Without returns a copy of s with p revoked.
func (s PermissionSet) Without(p Permission) PermissionSet {
	return s &^ (1 << p)
}

// Permissions lists the granted permissions in vocabulary order.
func (s PermissionSet) Permissions() []Permission {
	var perms []Permission
	for _, p := range AllPermissions() {
		if s.Has(p) {
			perms = append(perms, p)
		}
	}
	return perms
}

// MarshalJSON encodes the set as an object with one boolean per permission key.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	m := make(map[string]bool, numPermissions)
	for _, p := range AllPermissions() {
		m[p.String()] = s.Has(p)
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a key→bool object. Keys outside the vocabulary are rejected.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var m map[string]bool
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decoding permission set: %w", err)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var set PermissionSet
	for _, k := range keys {
		p, err := ParsePermission(k)
		if err != nil {
			return err
		}
		if m[k] {
			set = set.With(p)
		}
	}
	*s = set
	return nil
}
