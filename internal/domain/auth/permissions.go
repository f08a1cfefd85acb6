package auth

import "slices"

var rolePermissions = map[Role][]Capability{
	RoleVisitor: {CapView},
	RoleEditor:  {CapView, CapEdit},
	RoleAdmin:   {CapView, CapEdit, CapAdmin},
}

// PermissionsForRole returns the fixed capability set for role.
// Unknown roles get the visitor set. The returned slice is a copy.
func PermissionsForRole(role Role) []Capability {
	perms, ok := rolePermissions[role]
	if !ok {
		perms = rolePermissions[RoleVisitor]
	}
	return slices.Clone(perms)
}

// HasPermission reports whether sess grants capability c. A nil session grants nothing.
func HasPermission(sess *Session, c Capability) bool {
	return sess.Can(c)
}
