// Package role defines the closed set of dashboard roles, what each role may do
// and which navigation sections it may see.
package role

import (
	"errors"
	"strings"
)

type Role string

const (
	SuperAdmin     Role = "superadmin"
	Owner          Role = "owner"
	Manager        Role = "manager"
	Administrative Role = "administrative"
	Operator       Role = "operator"
	Auditor        Role = "auditor"
)

var ErrUnknownRole = errors.New("unknown_role")

// All lists every role in privilege-table order.
var All = []Role{SuperAdmin, Owner, Manager, Administrative, Operator, Auditor}

var aliases = map[string]Role{
	"superadmin":     SuperAdmin,
	"super_admin":    SuperAdmin,
	"owner":          Owner,
	"dueño":          Owner,
	"dueno":          Owner,
	"manager":        Manager,
	"gerente":        Manager,
	"administrative": Administrative,
	"administrativo": Administrative,
	"operator":       Operator,
	"operador":       Operator,
	"auditor":        Auditor,
}

// Parse maps a raw role string (as stored by the backend or returned by the
// employee login procedure) onto the closed Role set.
func Parse(raw string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	if r, ok := aliases[key]; ok {
		return r, nil
	}
	return "", ErrUnknownRole
}

func (r Role) Valid() bool {
	for _, known := range All {
		if known == r {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Delegated reports whether the role is held by employee accounts created by an
// owner, as opposed to accounts with their own credentials at the auth provider.
func (r Role) Delegated() bool {
	switch r {
	case Manager, Administrative, Operator, Auditor:
		return true
	default:
		return false
	}
}
