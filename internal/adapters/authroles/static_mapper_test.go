package authroles

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
)

func TestStaticMapper_Map(t *testing.T) {
	m := NewStaticMapper(" ragbox-admins , platform ,")

	assert.Equal(t, []string{"ragbox-admins", "platform"}, m.AdminGroups)
	assert.Equal(t, domainauth.RoleAdmin, m.Map([]string{"devs", "RAGBOX-ADMINS"}))
	assert.Equal(t, domainauth.RoleAdmin, m.Map([]string{"platform"}))
	assert.Equal(t, domainauth.RoleUser, m.Map([]string{"devs"}))
	assert.Equal(t, domainauth.RoleUser, m.Map(nil))
	assert.Equal(t, domainauth.RoleUser, NewStaticMapper("").Map([]string{""}))
}
