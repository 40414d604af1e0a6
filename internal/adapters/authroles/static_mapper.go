package authroles

import (
	"strings"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
)

// StaticMapper grants the admin role to members of any configured admin group.
// Everyone else who authenticated is a plain user.
type StaticMapper struct {
	AdminGroups []string
}

// NewStaticMapper builds a mapper from a comma-separated group list.
func NewStaticMapper(adminGroups string) StaticMapper {
	var groups []string
	for _, g := range strings.Split(adminGroups, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return StaticMapper{AdminGroups: groups}
}

func (m StaticMapper) Map(groups []string) domainauth.Role {
	for _, g := range groups {
		for _, admin := range m.AdminGroups {
			if strings.EqualFold(g, admin) {
				return domainauth.RoleAdmin
			}
		}
	}
	return domainauth.RoleUser
}
