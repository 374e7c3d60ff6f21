package routing

import (
	"context"

	"github.com/fauter/cochera-admin/internal/observability/metrics"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/internal/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// SessionState is the part of a session store routing needs.
type SessionState interface {
	Snapshot() session.State
	MarkRouted() bool
}

type Action string

const (
	ActionPending  Action = "pending"
	ActionStay     Action = "stay"
	ActionRedirect Action = "redirect"
	ActionEmpty    Action = "empty"
)

// Decision is the answer to one navigation.
type Decision struct {
	Phase     Phase          `json:"phase"`
	Action    Action         `json:"action"`
	Location  string         `json:"location,omitempty"`
	Canonical bool           `json:"canonical,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Sections  []role.Section `json:"sections,omitempty"`
}

type DispatcherParams struct {
	fx.In

	Log     *zap.Logger
	Scope   *ScopeGuard
	Metrics *metrics.Metrics `optional:"true"`
}

type Dispatcher struct {
	log     *zap.Logger
	scope   *ScopeGuard
	metrics *metrics.Metrics
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		log:     p.Log.Named("routing.dispatcher"),
		scope:   p.Scope,
		metrics: p.Metrics,
	}
}

// Decide is evaluated on every navigation. The first evaluation that sees a
// settled identity and profile issues the canonical redirect; later ones only
// apply the admin, scope and section checks to the requested path.
func (d *Dispatcher) Decide(ctx context.Context, st SessionState, requested string) Decision {
	snap := st.Snapshot()
	phase := PhaseOf(snap)
	target := ParseTarget(requested)

	switch phase {
	case PhaseUnresolved:
		return Decision{Phase: phase, Action: ActionPending}
	case PhaseUnauthenticated:
		if target.Public {
			return Decision{Phase: phase, Action: ActionStay}
		}
		return Decision{Phase: phase, Action: ActionRedirect, Location: PathLogin, Reason: "unauthenticated"}
	}

	p, ok := snap.Principal()
	if !ok || (phase == PhaseAuthenticatedUnrouted && !snap.ProfileSettled) {
		// The role is not known for sure yet.
		return Decision{Phase: phase, Action: ActionPending}
	}

	if phase == PhaseAuthenticatedUnrouted && st.MarkRouted() {
		return d.canonical(ctx, p, target)
	}
	return d.navigate(ctx, p, target)
}

func (d *Dispatcher) canonical(ctx context.Context, p role.Principal, target Target) Decision {
	dest := Canonical(p)
	d.metrics.RecordCanonicalRedirect(ctx, dest.Kind)
	out := Decision{
		Phase:     PhaseAuthenticatedRouted,
		Canonical: true,
		Sections:  role.VisibleSections(p),
	}
	if dest.Empty {
		d.log.Error("shadow administrative has no allowed garage",
			zap.String("employee_id", p.ID),
			zap.String("owner_id", p.OwnerID),
		)
		out.Action = ActionEmpty
		out.Reason = "no_allowed_garage"
		return out
	}
	if target.Path == dest.Path {
		out.Action = ActionStay
		return out
	}
	out.Action = ActionRedirect
	out.Location = dest.Path
	return out
}

func (d *Dispatcher) navigate(ctx context.Context, p role.Principal, target Target) Decision {
	out := Decision{Phase: PhaseAuthenticatedRouted, Sections: role.VisibleSections(p)}
	switch {
	case target.Public:
		dest := Canonical(p)
		if dest.Empty {
			out.Action = ActionEmpty
			out.Reason = "no_allowed_garage"
			return out
		}
		out.Action = ActionRedirect
		out.Location = dest.Path
		out.Reason = "already_authenticated"
		return out
	case target.Root:
		return d.fallback(p, out, "root")
	case target.Admin:
		if !p.Can(role.CapGlobalAdmin) || p.Shadow {
			d.metrics.RecordScopeDenial(ctx, "admin_surface")
			return d.fallback(p, out, "admin_surface")
		}
		out.Action = ActionStay
		return out
	case target.Hub:
		if role.SingleTenant(p) {
			return d.fallback(p, out, "single_tenant")
		}
		out.Action = ActionStay
		return out
	}

	scope := d.scope.Check(ctx, p, target.GarageID)
	if !scope.Allowed {
		out.Reason = scope.Reason
		if scope.Empty {
			out.Action = ActionEmpty
			return out
		}
		out.Action = ActionRedirect
		out.Location = scope.Redirect
		return out
	}
	if !role.CanSee(p, target.Section) {
		d.metrics.RecordScopeDenial(ctx, "section")
		out.Action = ActionRedirect
		out.Location = TenantPath(target.GarageID, role.SectionDashboard)
		out.Reason = "section"
		return out
	}
	out.Action = ActionStay
	return out
}

// fallback sends p to its canonical landing page.
func (d *Dispatcher) fallback(p role.Principal, out Decision, reason string) Decision {
	dest := Canonical(p)
	out.Reason = reason
	if dest.Empty {
		out.Action = ActionEmpty
		return out
	}
	out.Action = ActionRedirect
	out.Location = dest.Path
	return out
}
