package model

// Action names an audited activity. The set is open: ad hoc actions such as
// "permission_denied" are stored verbatim and displayed raw.
type Action string

const (
	ActionLogin            Action = "login"
	ActionLogout           Action = "logout"
	ActionCreate           Action = "create"
	ActionUpdate           Action = "update"
	ActionDelete           Action = "delete"
	ActionView             Action = "view"
	ActionExport           Action = "export"
	ActionImport           Action = "import"
	ActionAlertSend        Action = "alert_send"
	ActionRoleChange       Action = "role_change"
	ActionPermissionChange Action = "permission_change"
	ActionBackupCreate     Action = "backup_create"
	ActionBackupRestore    Action = "backup_restore"

	ActionPermissionDenied   Action = "permission_denied"
	ActionRoleDenied         Action = "role_denied"
	ActionBackupCleanup      Action = "backup_cleanup"
	ActionSuspiciousActivity Action = "suspicious_activity"
)

var actionDisplayNames = map[Action]string{
	ActionLogin:            "User Login",
	ActionLogout:           "User Logout",
	ActionCreate:           "Create Record",
	ActionUpdate:           "Update Record",
	ActionDelete:           "Delete Record",
	ActionView:             "View Record",
	ActionExport:           "Export Data",
	ActionImport:           "Import Data",
	ActionAlertSend:        "Emergency Alert Sent",
	ActionRoleChange:       "Role Assignment Change",
	ActionPermissionChange: "Permission Change",
	ActionBackupCreate:     "Backup Created",
	ActionBackupRestore:    "Backup Restored",
}

// DisplayName returns the label used in exports. Ad hoc actions are returned as-is.
func (a Action) DisplayName() string {
	if name, ok := actionDisplayNames[a]; ok {
		return name
	}
	return string(a)
}
