package role

// Principal is the role-bearing view of whoever is signed in.
type Principal struct {
	ID      string
	Role    Role
	Shadow  bool
	OwnerID string
	// Permissions is only meaningful for shadow principals.
	Permissions PermissionDocument
}

// TenantOwnerID is the owner whose garages the principal works on.
func (p Principal) TenantOwnerID() string {
	if p.Shadow {
		return p.OwnerID
	}
	return p.ID
}

func (p Principal) Can(c Capability) bool {
	return Capabilities(p.Role).Has(c)
}

// CanSee decides whether a navigation section is visible.
//
// Standard owners and superadmins see everything. A shadow manager sees the
// global manager sections. A shadow administrative sees what its document
// lists, and always the dashboard so the menu is never empty.
func CanSee(p Principal, s Section) bool {
	if _, ok := ParseSection(string(s)); !ok {
		return false
	}
	switch p.Role {
	case SuperAdmin, Owner:
		return true
	case Manager:
		return containsSection(ManagerSections, s)
	case Administrative, Auditor:
		if s == SectionDashboard {
			return true
		}
		return p.Shadow && p.Permissions.HasSection(s)
	case Operator:
		return s == SectionDashboard
	}
	return false
}

// VisibleSections returns the sections p may see in catalog order.
func VisibleSections(p Principal) []Section {
	out := make([]Section, 0, len(Catalog))
	for _, s := range Catalog {
		if CanSee(p, s) {
			out = append(out, s)
		}
	}
	return out
}

// SingleTenant reports whether the principal is bound to exactly the garages
// of its document and lands directly on one of them.
func SingleTenant(p Principal) bool {
	return p.Shadow && p.Role == Administrative
}
