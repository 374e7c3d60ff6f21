package routing

import (
	"context"
	"strings"

	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	"github.com/fauter/cochera-admin/internal/observability/metrics"
	"github.com/fauter/cochera-admin/internal/role"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// GarageLister returns the garages a principal may work on.
type GarageLister interface {
	ListAccessible(ctx context.Context, p role.Principal) ([]garagedomain.Garage, error)
}

type ScopeParams struct {
	fx.In

	Log     *zap.Logger
	Garages GarageLister
	Metrics *metrics.Metrics `optional:"true"`
}

// ScopeGuard runs before anything scoped to a garage is read.
type ScopeGuard struct {
	log     *zap.Logger
	garages GarageLister
	metrics *metrics.Metrics
}

func NewScopeGuard(p ScopeParams) *ScopeGuard {
	return &ScopeGuard{
		log:     p.Log.Named("routing.scope"),
		garages: p.Garages,
		metrics: p.Metrics,
	}
}

// ScopeResult is the outcome of a scope check. When access is refused
// Redirect names the fallback, or Empty is set when there is none.
type ScopeResult struct {
	Allowed  bool
	Redirect string
	Empty    bool
	Reason   string
}

// Accessible lists the ids p may enter. A failed lookup yields an empty set.
func (g *ScopeGuard) Accessible(ctx context.Context, p role.Principal) []string {
	items, err := g.garages.ListAccessible(ctx, p)
	if err != nil {
		g.log.Warn("accessible garages lookup failed, denying",
			zap.String("principal_id", p.ID),
			zap.Error(err),
		)
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (g *ScopeGuard) Check(ctx context.Context, p role.Principal, garageID string) ScopeResult {
	garageID = strings.TrimSpace(garageID)
	ids := g.Accessible(ctx, p)
	for _, id := range ids {
		if id == garageID {
			return ScopeResult{Allowed: true}
		}
	}

	reason := "foreign_garage"
	if len(ids) == 0 {
		reason = "no_accessible_garages"
	}
	g.metrics.RecordScopeDenial(ctx, reason)
	g.log.Info("garage outside of scope",
		zap.String("principal_id", p.ID),
		zap.String("role", string(p.Role)),
		zap.String("garage_id", garageID),
		zap.String("reason", reason),
	)

	if role.SingleTenant(p) {
		accessible := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			accessible[id] = struct{}{}
		}
		home, ok := homeGarage(p, func(id string) bool {
			_, found := accessible[id]
			return found
		})
		if !ok {
			return ScopeResult{Empty: true, Reason: reason}
		}
		return ScopeResult{Redirect: TenantPath(home, role.SectionDashboard), Reason: reason}
	}
	return ScopeResult{Redirect: PathHub, Reason: reason}
}
