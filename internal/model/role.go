package model

import "time"

// RoleName is one of the six built-in roles.
type RoleName string

const (
	RoleAdmin              RoleName = "admin"
	RoleModerator          RoleName = "moderator"
	RoleAnalyst            RoleName = "analyst"
	RoleHealthOfficer      RoleName = "health_officer"
	RoleEmergencyResponder RoleName = "emergency_responder"
	RoleUser               RoleName = "user"
)

var roleDisplayNames = map[RoleName]string{
	RoleAdmin:              "System Administrator",
	RoleModerator:          "Content Moderator",
	RoleAnalyst:            "Data Analyst",
	RoleHealthOfficer:      "Health Officer",
	RoleEmergencyResponder: "Emergency Responder",
	RoleUser:               "Regular User",
}

// defaultRolePermissions is the seed table. Anything not listed is denied.
var defaultRolePermissions = map[RoleName]PermissionSet{
	RoleAdmin: FullPermissionSet(),
	RoleModerator: NewPermissionSet(
		PermViewDashboard,
		PermManageContent,
		PermManageReports,
		PermViewAnalytics,
		PermModerateContent,
		PermManageChallenges,
	),
	RoleAnalyst: NewPermissionSet(
		PermViewDashboard,
		PermViewAnalytics,
		PermExportData,
	),
	RoleHealthOfficer: NewPermissionSet(
		PermViewDashboard,
		PermManageReports,
		PermSendAlerts,
		PermViewAnalytics,
	),
	RoleEmergencyResponder: NewPermissionSet(
		PermViewDashboard,
		PermSendAlerts,
		PermManageReports,
	),
	RoleUser: NewPermissionSet(),
}

// RoleNames returns the built-in roles in seeding order.
func RoleNames() []RoleName {
	return []RoleName{
		RoleAdmin,
		RoleModerator,
		RoleAnalyst,
		RoleHealthOfficer,
		RoleEmergencyResponder,
		RoleUser,
	}
}

// ParseRoleName validates a raw role name.
func ParseRoleName(s string) (RoleName, error) {
	r := RoleName(s)
	if _, ok := roleDisplayNames[r]; !ok {
		return "", &UnknownValueError{Kind: "role", Value: s}
	}
	return r, nil
}

// DisplayName returns the human-readable role label.
func (r RoleName) DisplayName() string {
	if name, ok := roleDisplayNames[r]; ok {
		return name
	}
	return string(r)
}

// DefaultPermissions returns the seeded permission set for a built-in role.
func (r RoleName) DefaultPermissions() PermissionSet {
	return defaultRolePermissions[r]
}

// Role is a named bundle of permissions.
type Role struct {
	ID          string
	Name        RoleName
	Description string
	Permissions PermissionSet
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
