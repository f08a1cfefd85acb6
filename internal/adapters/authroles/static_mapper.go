package authroles

import (
	"strings"

	domainauth "github.com/target/quill/internal/domain/auth"
	"github.com/target/quill/internal/ports"
)

var _ ports.RoleMapper = StaticRoleMapper{}

// StaticRoleMapper maps identity provider groups to roles by exact, case-insensitive
// membership. Admin wins over editor; no match yields visitor.
type StaticRoleMapper struct {
	AdminGroup  string
	EditorGroup string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	if contains(groups, m.AdminGroup) {
		return domainauth.RoleAdmin
	}
	if contains(groups, m.EditorGroup) {
		return domainauth.RoleEditor
	}
	return domainauth.RoleVisitor
}

func contains(groups []string, want string) bool {
	want = strings.TrimSpace(want)
	if want == "" {
		return false
	}
	for _, g := range groups {
		if strings.EqualFold(strings.TrimSpace(g), want) {
			return true
		}
	}
	return false
}
