package shared

// Core platform permissions.
const (
	PermStaffView   = "staff.view"
	PermStaffManage = "staff.manage"

	PermPermissionsView   = "permissions.view"
	PermPermissionsManage = "permissions.manage"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermStaffView,
		PermStaffManage,
		PermPermissionsView,
		PermPermissionsManage,
	}
}
