package rbac

import "time"

// Names of the roles seeded at system initialisation.
const (
	RoleSuperAdmin        = "Super Admin"
	RoleHRManager         = "HR Manager"
	RoleDepartmentManager = "Department Manager"
	RoleEmployee          = "Employee"
)

// Role is a named, reusable bundle of permission grants.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions PermissionSet
	// System marks seeded roles, which cannot be deleted.
	System    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleInput carries the fields of a new role.
type RoleInput struct {
	Name        string
	Description string
	Permissions map[string]bool
}

// RolePatch carries a partial update; nil fields are left untouched. A
// provided permission map replaces the whole set.
type RolePatch struct {
	Name        *string
	Description *string
	Permissions *map[string]bool
}

// Assignment links a user to a role.
type Assignment struct {
	UserID     int64
	RoleID     int64
	AssignedBy int64
	AssignedAt time.Time
}

// UserRole is a held role together with its assignment metadata.
type UserRole struct {
	Role       Role
	AssignedBy int64
	AssignedAt time.Time
}

// SystemRole describes one seeded role.
type SystemRole struct {
	Name        string
	Description string
	Permissions PermissionSet
}

// SystemRoles returns the built-in role definitions.
func SystemRoles() []SystemRole {
	hr := make([]Permission, 0, len(vocabulary))
	for _, p := range vocabulary {
		if p != PermManageRoles {
			hr = append(hr, p)
		}
	}
	return []SystemRole{
		{
			Name:        RoleSuperAdmin,
			Description: "Full access to every capability",
			Permissions: Grant(vocabulary...),
		},
		{
			Name:        RoleHRManager,
			Description: "Manages employees, leave, payroll and HR cases",
			Permissions: Grant(hr...),
		},
		{
			Name:        RoleDepartmentManager,
			Description: "Views the department and approves leave",
			Permissions: Grant(
				PermViewEmployees,
				PermViewLeave,
				PermApproveLeave,
				PermViewHolidays,
				PermViewGrievances,
				PermViewResignations,
			),
		},
		{
			Name:        RoleEmployee,
			Description: "Self-service access",
			Permissions: Grant(PermViewLeave, PermViewHolidays, PermViewBiodata),
		},
	}
}
