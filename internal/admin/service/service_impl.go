package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fauter/cochera-admin/internal/admin/domain"
	auditdomain "github.com/fauter/cochera-admin/internal/audit/domain"
	"github.com/fauter/cochera-admin/internal/authorization"
	"github.com/fauter/cochera-admin/internal/config"
	"github.com/fauter/cochera-admin/internal/errtext"
	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	"github.com/fauter/cochera-admin/internal/orgcontext"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/pkg/db"
	"github.com/fauter/cochera-admin/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultProbes are run by Diagnostics in order.
var DefaultProbes = []domain.Probe{
	{Name: "database", Query: "SELECT 1"},
	{Name: "claims", Query: "SELECT current_setting('request.jwt.claims', true)", PostgresOnly: true},
	{Name: "profiles", Query: "SELECT count(*) FROM profiles"},
	{Name: "garages", Query: "SELECT count(*) FROM garages"},
	{Name: "employee_accounts", Query: "SELECT count(*) FROM employee_accounts"},
	{Name: "prices", Query: "SELECT count(*) FROM prices"},
	{Name: "surcharge_rules", Query: "SELECT count(*) FROM surcharge_rules"},
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     *config.DashboardConfigHolder
	Authz      authorization.Service
	Garages    garagedomain.Service
	Audit      auditdomain.Service
	Procedures domain.Procedures
	Sessions   domain.LiveSessions `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      *config.DashboardConfigHolder
	authz    authorization.Service
	garages  garagedomain.Service
	audit    auditdomain.Service
	procs    domain.Procedures
	sessions domain.LiveSessions
	probes   []domain.Probe
	now      func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("admin.service"),
		cfg:      p.Config,
		authz:    p.Authz,
		garages:  p.Garages,
		audit:    p.Audit,
		procs:    p.Procedures,
		sessions: p.Sessions,
		probes:   DefaultProbes,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) OfferFactoryReset(ctx context.Context, identities ...string) bool {
	p, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok || p.Shadow || p.Role != role.SuperAdmin {
		return false
	}
	return s.matchesMaster(identities...)
}

func (s *Service) matchesMaster(identities ...string) bool {
	master := strings.TrimSpace(s.cfg.Get().MasterIdentifier)
	if master == "" {
		return false
	}
	for _, id := range identities {
		if strings.EqualFold(strings.TrimSpace(id), master) {
			return true
		}
	}
	return false
}

// FactoryReset wipes every tenant. The master identifier match only avoids a
// pointless round trip; casbin and the backend procedure decide.
func (s *Service) FactoryReset(ctx context.Context, req domain.FactoryResetRequest) error {
	p, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok {
		return domain.ErrForbidden
	}
	if !s.OfferFactoryReset(ctx, req.Identities...) {
		s.record(ctx, "admin.factory_reset.refused", map[string]any{"reason": "not_master"})
		return domain.ErrNotMaster
	}
	if !s.matchesMaster(req.Confirmation) {
		return domain.ErrNotConfirmed
	}
	if err := s.authz.Authorize(ctx, p, authorization.ObjectSystem, authorization.ActionFactoryReset); err != nil {
		if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
			return domain.ErrForbidden
		}
		return err
	}

	err := rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		return s.procs.FactoryReset(ctx, tx)
	})
	if err != nil {
		s.log.Error("factory reset failed", zap.String("actor_id", p.ID), zap.Error(err))
		s.record(ctx, "admin.factory_reset", map[string]any{"result": "error"})
		return err
	}
	s.log.Warn("factory reset executed", zap.String("actor_id", p.ID))
	s.record(ctx, "admin.factory_reset", map[string]any{"result": "ok"})
	return nil
}

// Diagnostics runs each probe in its own transaction and reports backend
// errors verbatim.
func (s *Service) Diagnostics(ctx context.Context) (*domain.Report, error) {
	if err := s.authorize(ctx, authorization.ObjectDiagnostics, authorization.ActionDiagnosticsView); err != nil {
		return nil, err
	}
	report := &domain.Report{
		CheckedAt: s.now(),
		Dialect:   s.db.Dialector.Name(),
		Probes:    make([]domain.ProbeResult, 0, len(s.probes)),
	}
	if s.sessions != nil {
		report.LiveSessions = s.sessions.Len()
	}
	postgres := db.IsPostgres(s.db)
	for _, probe := range s.probes {
		if probe.PostgresOnly && !postgres {
			continue
		}
		started := time.Now()
		err := rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
			return s.procs.RunProbe(ctx, tx, probe)
		})
		result := domain.ProbeResult{
			Name:      probe.Name,
			OK:        err == nil,
			LatencyMS: time.Since(started).Milliseconds(),
		}
		if err != nil {
			raw := errtext.Raw(err)
			result.Error = &raw
			s.log.Warn("diagnostic probe failed", zap.String("probe", probe.Name), zap.Error(err))
		}
		report.Probes = append(report.Probes, result)
	}
	return report, nil
}

func (s *Service) ListAllGarages(ctx context.Context) ([]garagedomain.Garage, error) {
	if err := s.authorize(ctx, authorization.ObjectGarage, authorization.ActionGaragesListAll); err != nil {
		return nil, err
	}
	return s.garages.ListAll(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, req auditdomain.ListRequest) ([]auditdomain.AuditLog, error) {
	if err := s.authorize(ctx, authorization.ObjectAuditLog, authorization.ActionAuditLogView); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, req)
}

func (s *Service) authorize(ctx context.Context, object, action string) error {
	p, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok {
		return domain.ErrForbidden
	}
	if err := s.authz.Authorize(ctx, p, object, action); err != nil {
		if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
			return domain.ErrForbidden
		}
		return err
	}
	return nil
}

func (s *Service) record(ctx context.Context, action string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AuditLog(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "system",
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("failed to audit admin action", zap.String("action", action), zap.Error(err))
	}
}
