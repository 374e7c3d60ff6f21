package role

import "strings"

// PermissionDocument is stored per employee account and embedded in the shadow
// session at login.
type PermissionDocument struct {
	AllowedGarages []string `json:"allowed_garages"`
	Sections       []string `json:"sections"`
}

// Normalize trims, dedupes and drops unknown section keys. It never returns nil
// slices so the JSON form is always {"allowed_garages":[],"sections":[]}.
func (d PermissionDocument) Normalize() PermissionDocument {
	out := PermissionDocument{
		AllowedGarages: make([]string, 0, len(d.AllowedGarages)),
		Sections:       make([]string, 0, len(d.Sections)),
	}
	seen := map[string]struct{}{}
	for _, g := range d.AllowedGarages {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if _, ok := seen["g:"+g]; ok {
			continue
		}
		seen["g:"+g] = struct{}{}
		out.AllowedGarages = append(out.AllowedGarages, g)
	}
	for _, raw := range d.Sections {
		s, ok := ParseSection(raw)
		if !ok {
			continue
		}
		if _, dup := seen["s:"+string(s)]; dup {
			continue
		}
		seen["s:"+string(s)] = struct{}{}
		out.Sections = append(out.Sections, string(s))
	}
	return out
}

// UnknownSections returns the entries that Normalize would drop.
func (d PermissionDocument) UnknownSections() []string {
	var unknown []string
	for _, raw := range d.Sections {
		if _, ok := ParseSection(raw); !ok {
			unknown = append(unknown, raw)
		}
	}
	return unknown
}

func (d PermissionDocument) AllowsGarage(garageID string) bool {
	garageID = strings.TrimSpace(garageID)
	for _, g := range d.AllowedGarages {
		if g == garageID {
			return true
		}
	}
	return false
}

func (d PermissionDocument) HasSection(s Section) bool {
	for _, raw := range d.Sections {
		if parsed, ok := ParseSection(raw); ok && parsed == s {
			return true
		}
	}
	return false
}
