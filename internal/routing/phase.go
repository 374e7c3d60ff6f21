// Package routing decides where a dashboard navigation lands: the one-time
// canonical redirect after sign-in, the tenant scope guard and the section
// gate.
package routing

import (
	"fmt"

	"github.com/fauter/cochera-admin/internal/session"
)

type Phase int

const (
	PhaseUnresolved Phase = iota
	PhaseUnauthenticated
	PhaseAuthenticatedUnrouted
	PhaseAuthenticatedRouted
)

func (p Phase) String() string {
	switch p {
	case PhaseUnresolved:
		return "unresolved"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticatedUnrouted:
		return "authenticated_unrouted"
	case PhaseAuthenticatedRouted:
		return "authenticated_routed"
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseUnresolved; candidate <= PhaseAuthenticatedRouted; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("routing: unknown phase %q", text)
}

// PhaseOf maps a session snapshot onto the routing state machine.
func PhaseOf(st session.State) Phase {
	switch {
	case st.Loading:
		return PhaseUnresolved
	case !st.Identity.Authenticated():
		return PhaseUnauthenticated
	case st.Routed:
		return PhaseAuthenticatedRouted
	}
	return PhaseAuthenticatedUnrouted
}
