package rbac

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// Permission is a single grantable capability. Only the constants below are
// valid; anything else is rejected with shared.ErrInvalidPermissionKey.
type Permission string

const (
	PermViewEmployees       Permission = "view_employees"
	PermManageEmployees     Permission = "manage_employees"
	PermViewLeave           Permission = "view_leave"
	PermApproveLeave        Permission = "approve_leave"
	PermViewBiodata         Permission = "view_biodata"
	PermManageBiodata       Permission = "manage_biodata"
	PermViewPayroll         Permission = "view_payroll"
	PermManagePayroll       Permission = "manage_payroll"
	PermViewHolidays        Permission = "view_holidays"
	PermManageHolidays      Permission = "manage_holidays"
	PermViewGrievances      Permission = "view_grievances"
	PermResolveGrievances   Permission = "resolve_grievances"
	PermViewResignations    Permission = "view_resignations"
	PermProcessResignations Permission = "process_resignations"
	PermViewRoles           Permission = "view_roles"
	PermManageRoles         Permission = "manage_roles"
	PermViewActivityLogs    Permission = "view_activity_logs"
)

var vocabulary = []Permission{
	PermViewEmployees,
	PermManageEmployees,
	PermViewLeave,
	PermApproveLeave,
	PermViewBiodata,
	PermManageBiodata,
	PermViewPayroll,
	PermManagePayroll,
	PermViewHolidays,
	PermManageHolidays,
	PermViewGrievances,
	PermResolveGrievances,
	PermViewResignations,
	PermProcessResignations,
	PermViewRoles,
	PermManageRoles,
	PermViewActivityLogs,
}

var known = func() map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(vocabulary))
	for _, p := range vocabulary {
		m[p] = struct{}{}
	}
	return m
}()

// AllPermissions returns the vocabulary in declaration order.
func AllPermissions() []Permission {
	out := make([]Permission, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// Valid reports whether p belongs to the vocabulary.
func (p Permission) Valid() bool {
	_, ok := known[p]
	return ok
}

// ParsePermission validates a raw key. Matching is exact; surrounding
// whitespace or a different case is rejected.
func ParsePermission(raw string) (Permission, error) {
	p := Permission(raw)
	if !p.Valid() {
		return "", fmt.Errorf("rbac: %w: %q", shared.ErrInvalidPermissionKey, raw)
	}
	return p, nil
}

// PermissionSet maps permission keys to grants. The zero value grants nothing.
// Values are immutable once built.
type PermissionSet struct {
	grants map[Permission]bool
}

// NewPermissionSet validates every key of raw and builds a set. The first
// unknown key fails the whole input.
func NewPermissionSet(raw map[string]bool) (PermissionSet, error) {
	grants := make(map[Permission]bool, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p, err := ParsePermission(k)
		if err != nil {
			return PermissionSet{}, err
		}
		grants[p] = raw[k]
	}
	return PermissionSet{grants: grants}, nil
}

// Grant builds a set granting exactly perms.
func Grant(perms ...Permission) PermissionSet {
	grants := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		if p.Valid() {
			grants[p] = true
		}
	}
	return PermissionSet{grants: grants}
}

// Grants reports whether p is granted.
func (s PermissionSet) Grants(p Permission) bool {
	return s.grants[p]
}

// Len reports the number of explicit entries, granted or not.
func (s PermissionSet) Len() int {
	return len(s.grants)
}

// Entries returns a copy of the explicit entries.
func (s PermissionSet) Entries() map[string]bool {
	out := make(map[string]bool, len(s.grants))
	for p, v := range s.grants {
		out[string(p)] = v
	}
	return out
}

// Granted returns the granted keys in vocabulary order.
func (s PermissionSet) Granted() []Permission {
	out := make([]Permission, 0, len(s.grants))
	for _, p := range vocabulary {
		if s.grants[p] {
			out = append(out, p)
		}
	}
	return out
}

// Union combines two sets with OR semantics: a key is granted when either
// side grants it. Keys present only as false on both sides stay false.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	grants := make(map[Permission]bool, len(s.grants)+len(other.grants))
	for p, v := range s.grants {
		grants[p] = v
	}
	for p, v := range other.grants {
		grants[p] = grants[p] || v
	}
	return PermissionSet{grants: grants}
}

// Equal reports whether both sets carry the same explicit entries.
func (s PermissionSet) Equal(other PermissionSet) bool {
	if len(s.grants) != len(other.grants) {
		return false
	}
	for p, v := range s.grants {
		ov, ok := other.grants[p]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as an object of key to grant.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Entries())
}

// UnmarshalJSON decodes and validates an object of key to grant.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var raw map[string]bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	set, err := NewPermissionSet(raw)
	if err != nil {
		return err
	}
	*s = set
	return nil
}
