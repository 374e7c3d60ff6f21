package routing

import (
	"path"
	"strings"

	"github.com/fauter/cochera-admin/internal/role"
)

const (
	PathLogin  = "/login"
	PathSignUp = "/registro"
	PathAdmin  = "/admin"
	PathHub    = "/cocheras"
)

var reserved = map[string]bool{
	"login":    true,
	"registro": true,
	"admin":    true,
	"cocheras": true,
}

// Destination is where an identity lands. Empty means no destination can be
// computed and the client shows an empty state instead of redirecting.
type Destination struct {
	Path  string `json:"path,omitempty"`
	Empty bool   `json:"empty,omitempty"`
	Kind  string `json:"kind"`
}

// TenantPath builds "/{garage}/{section}".
func TenantPath(garageID string, section role.Section) string {
	return "/" + garageID + "/" + string(section)
}

// Canonical is the landing page of a freshly authenticated identity.
// Superadmins go to the admin surface, a shadow administrative goes straight
// to its garage and everyone else confirms the garage on the hub, even when a
// deep link pointed somewhere else.
func Canonical(p role.Principal) Destination {
	switch {
	case p.Role == role.SuperAdmin && !p.Shadow:
		return Destination{Path: PathAdmin, Kind: "admin"}
	case role.SingleTenant(p):
		id, ok := homeGarage(p, nil)
		if !ok {
			return Destination{Empty: true, Kind: "empty"}
		}
		return Destination{Path: TenantPath(id, role.SectionDashboard), Kind: "tenant"}
	}
	return Destination{Path: PathHub, Kind: "hub"}
}

// homeGarage is the first allow-list entry that passes usable, or the first
// entry when usable is nil.
func homeGarage(p role.Principal, usable func(string) bool) (string, bool) {
	for _, id := range p.Permissions.AllowedGarages {
		if usable == nil || usable(id) {
			return id, true
		}
	}
	return "", false
}

// Target is a parsed navigation path.
type Target struct {
	Path     string
	Root     bool
	Public   bool
	Admin    bool
	Hub      bool
	GarageID string
	Section  role.Section
}

// ParseTarget classifies a requested path. Tenant routes without a section
// default to the dashboard; unknown sections are kept so the gate can refuse
// them.
func ParseTarget(raw string) Target {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "/"
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	clean := path.Clean(raw)
	t := Target{Path: clean}

	segments := strings.Split(strings.Trim(clean, "/"), "/")
	first := segments[0]
	switch {
	case clean == "/":
		t.Root = true
	case first == "login" || first == "registro":
		t.Public = true
	case first == "admin":
		t.Admin = true
	case first == "cocheras":
		t.Hub = true
	case !reserved[first]:
		t.GarageID = first
		t.Section = role.SectionDashboard
		if len(segments) > 1 {
			t.Section = role.Section(strings.ToLower(segments[1]))
		}
	}
	return t
}
