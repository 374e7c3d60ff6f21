package role

import "strings"

type Section string

const (
	SectionDashboard  Section = "dashboard"
	SectionPrecios    Section = "precios"
	SectionEstructura Section = "estructura"
	SectionRecargos   Section = "recargos"
	SectionPersonal   Section = "personal"
	SectionReportes   Section = "reportes"
	SectionFinanzas   Section = "finanzas"
	SectionAjustes    Section = "ajustes"
)

// Catalog is the navigation order.
var Catalog = []Section{
	SectionDashboard,
	SectionPrecios,
	SectionEstructura,
	SectionRecargos,
	SectionPersonal,
	SectionReportes,
	SectionFinanzas,
	SectionAjustes,
}

// ManagerSections are the global sections a shadow manager sees without a
// per-account document.
var ManagerSections = []Section{
	SectionDashboard,
	SectionPrecios,
	SectionEstructura,
	SectionRecargos,
	SectionPersonal,
	SectionReportes,
}

func ParseSection(raw string) (Section, bool) {
	s := Section(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Catalog {
		if known == s {
			return s, true
		}
	}
	return "", false
}

func containsSection(list []Section, s Section) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
