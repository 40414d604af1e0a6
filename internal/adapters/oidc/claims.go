package oidc

import (
	"strings"

	"github.com/jmespath-community/go-jmespath"
)

// ClaimMapping names the claims that carry optional identity attributes.
// Each entry is either a literal top-level claim name or a JMESPath
// expression such as "realm_access.roles".
type ClaimMapping struct {
	Email  string
	Name   string
	Groups string
}

// DefaultClaimMapping returns the standard OIDC claim names.
func DefaultClaimMapping() ClaimMapping {
	return ClaimMapping{Email: "email", Name: "name", Groups: "groups"}
}

func (m ClaimMapping) withDefaults() ClaimMapping {
	d := DefaultClaimMapping()
	if strings.TrimSpace(m.Email) == "" {
		m.Email = d.Email
	}
	if strings.TrimSpace(m.Name) == "" {
		m.Name = d.Name
	}
	if strings.TrimSpace(m.Groups) == "" {
		m.Groups = d.Groups
	}
	return m
}

// claimPath resolves one mapping entry against a decoded claim set.
type claimPath struct {
	name       string
	expression bool
}

func newClaimPath(name string) claimPath {
	name = strings.TrimSpace(name)
	_, err := jmespath.Compile(name)
	return claimPath{name: name, expression: err == nil}
}

func (p claimPath) lookup(claims map[string]any) any {
	if v, ok := claims[p.name]; ok {
		return v
	}
	if !p.expression {
		return nil
	}
	v, err := jmespath.Search(p.name, claims)
	if err != nil {
		return nil
	}
	return v
}

func (p claimPath) stringValue(claims map[string]any) string {
	s, _ := p.lookup(claims).(string)
	return strings.TrimSpace(s)
}

// stringsValue accepts an array of strings or a single string.
func (p claimPath) stringsValue(claims map[string]any) []string {
	switch v := p.lookup(claims).(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return []string{v}
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return v
	}
	return nil
}

type compiledClaims struct {
	email  claimPath
	name   claimPath
	groups claimPath
}

func compileClaimMapping(m ClaimMapping) compiledClaims {
	m = m.withDefaults()
	return compiledClaims{
		email:  newClaimPath(m.Email),
		name:   newClaimPath(m.Name),
		groups: newClaimPath(m.Groups),
	}
}
