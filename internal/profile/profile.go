// Package profile produces the role-bearing profile of whoever is signed in.
package profile

import (
	"strings"

	"github.com/fauter/cochera-admin/internal/role"
)

const (
	DefaultFullName = "Usuario"
	DefaultRole     = role.Owner
)

type Source string

const (
	SourceProvisional   Source = "provisional"
	SourceAuthoritative Source = "authoritative"
	SourceShadow        Source = "shadow"
)

type Profile struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     role.Role `json:"role"`
	Source   Source    `json:"source"`
}

// Provisional builds the profile shown until the profiles row is read. It is
// the only place fallback values are chosen.
//
// The role comes from app_metadata first since only the backend writes it.
// A role in user_metadata is accepted unless it claims superadmin.
func Provisional(userID, email string, userMeta, appMeta map[string]any) Profile {
	p := Profile{
		ID:       userID,
		Email:    strings.TrimSpace(email),
		FullName: DefaultFullName,
		Role:     DefaultRole,
		Source:   SourceProvisional,
	}
	if name := metaString(userMeta, "full_name"); name != "" {
		p.FullName = name
	} else if name := metaString(userMeta, "name"); name != "" {
		p.FullName = name
	}
	if r, err := role.Parse(metaString(appMeta, "role")); err == nil {
		p.Role = r
		return p
	}
	if r, err := role.Parse(metaString(userMeta, "role")); err == nil && r != role.SuperAdmin {
		p.Role = r
	}
	return p
}

// FromShadow builds the profile of an employee session without a round trip.
func FromShadow(id, fullName string, r role.Role) Profile {
	name := strings.TrimSpace(fullName)
	if name == "" {
		name = DefaultFullName
	}
	return Profile{
		ID:       id,
		FullName: name,
		Role:     r,
		Source:   SourceShadow,
	}
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	v, ok := meta[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
