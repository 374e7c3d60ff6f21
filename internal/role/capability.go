package role

// Capability is a bit set of things a role may do regardless of tenant.
type Capability uint32

const (
	CapGlobalAdmin Capability = 1 << iota
	CapAllSections
	CapMultiTenant
	CapManageGarages
	CapManageStaff
	CapEditPricing
	CapEditStructure
	CapEditSurcharges
	CapReadOnly
)

// Capabilities returns the static capability set of a role. The switch has no
// default branch on purpose so a new Role constant shows up as a missing case.
func Capabilities(r Role) Capability {
	switch r {
	case SuperAdmin:
		return CapGlobalAdmin | CapAllSections | CapMultiTenant | CapManageGarages |
			CapManageStaff | CapEditPricing | CapEditStructure | CapEditSurcharges
	case Owner:
		return CapAllSections | CapMultiTenant | CapManageGarages | CapManageStaff |
			CapEditPricing | CapEditStructure | CapEditSurcharges
	case Manager:
		return CapMultiTenant | CapManageStaff | CapEditPricing | CapEditStructure | CapEditSurcharges
	case Administrative:
		return CapEditPricing | CapEditSurcharges
	case Operator:
		return CapReadOnly
	case Auditor:
		return CapReadOnly
	}
	return 0
}

func (c Capability) Has(want Capability) bool {
	return c&want == want
}
