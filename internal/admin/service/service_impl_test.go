package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/fauter/cochera-admin/internal/admin/domain"
	"github.com/fauter/cochera-admin/internal/admin/service"
	auditdomain "github.com/fauter/cochera-admin/internal/audit/domain"
	auditrepo "github.com/fauter/cochera-admin/internal/audit/repository"
	auditsvc "github.com/fauter/cochera-admin/internal/audit/service"
	"github.com/fauter/cochera-admin/internal/authorization"
	"github.com/fauter/cochera-admin/internal/config"
	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	garagerepo "github.com/fauter/cochera-admin/internal/garage/repository"
	garagesvc "github.com/fauter/cochera-admin/internal/garage/service"
	"github.com/fauter/cochera-admin/internal/orgcontext"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/pkg/db"
	"github.com/fauter/cochera-admin/pkg/rls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const master = "root@cochera.app"

type fakeProcedures struct {
	mu     sync.Mutex
	resets int
	failOn map[string]error
	resErr error
}

func (f *fakeProcedures) FactoryReset(context.Context, *gorm.DB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resErr
}

func (f *fakeProcedures) RunProbe(_ context.Context, _ *gorm.DB, probe domain.Probe) error {
	return f.failOn[probe.Name]
}

type liveSessions int

func (n liveSessions) Len() int { return int(n) }

type fixture struct {
	svc   domain.Service
	procs *fakeProcedures
	audit auditdomain.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&garagedomain.Garage{}, &auditdomain.AuditLog{}))

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	audit := auditsvc.NewService(auditsvc.Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: auditrepo.Provide()})

	cfg := config.DefaultDashboardConfig()
	cfg.MasterIdentifier = master
	procs := &fakeProcedures{failOn: map[string]error{}}
	svc := service.New(service.Params{
		DB:         conn,
		Log:        zap.NewNop(),
		Config:     config.NewStaticDashboardConfig(cfg),
		Authz:      authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audit}),
		Garages:    garagesvc.New(garagesvc.Params{DB: conn, Log: zap.NewNop(), Repo: garagerepo.Provide()}),
		Audit:      audit,
		Procedures: procs,
		Sessions:   liveSessions(3),
	})
	return &fixture{svc: svc, procs: procs, audit: audit}
}

func asPrincipal(p role.Principal) context.Context {
	ctx := orgcontext.WithPrincipal(context.Background(), p)
	return rls.WithContext(ctx, rls.Claims{Subject: p.ID, Role: "authenticated"})
}

func superadmin() context.Context {
	return asPrincipal(role.Principal{ID: "root", Role: role.SuperAdmin})
}

func TestFactoryResetForMaster(t *testing.T) {
	f := setup(t)
	ctx := superadmin()

	require.True(t, f.svc.OfferFactoryReset(ctx, "root", " ROOT@cochera.app"))
	err := f.svc.FactoryReset(ctx, domain.FactoryResetRequest{
		Identities:   []string{"root", master},
		Confirmation: master,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.procs.resets)

	logs, err := f.svc.ListAuditLogs(ctx, auditdomain.ListRequest{Action: "admin.factory_reset"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "ok", logs[0].Metadata["result"])
}

func TestFactoryResetDeniedForNonMaster(t *testing.T) {
	cases := []struct {
		name string
		ctx  context.Context
		ids  []string
		want error
	}{
		{"superadmin with other email", superadmin(), []string{"root", "other@cochera.app"}, domain.ErrNotMaster},
		{"owner using master email", asPrincipal(role.Principal{ID: "o1", Role: role.Owner}), []string{master}, domain.ErrNotMaster},
		{"shadow manager", asPrincipal(role.Principal{ID: "e1", Role: role.Manager, Shadow: true, OwnerID: "o1"}), []string{master}, domain.ErrNotMaster},
		{"no principal", context.Background(), []string{master}, domain.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			err := f.svc.FactoryReset(tc.ctx, domain.FactoryResetRequest{Identities: tc.ids, Confirmation: master})
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, f.procs.resets)
		})
	}
}

func TestFactoryResetNeedsConfirmation(t *testing.T) {
	f := setup(t)
	err := f.svc.FactoryReset(superadmin(), domain.FactoryResetRequest{Identities: []string{master}, Confirmation: "yes"})
	assert.ErrorIs(t, err, domain.ErrNotConfirmed)
	assert.Zero(t, f.procs.resets)
}

func TestFactoryResetSurfacesBackendRefusal(t *testing.T) {
	f := setup(t)
	f.procs.resErr = domain.ErrResetNotAllowed

	err := f.svc.FactoryReset(superadmin(), domain.FactoryResetRequest{Identities: []string{master}, Confirmation: master})
	assert.ErrorIs(t, err, domain.ErrResetNotAllowed)
}

func TestNoMasterConfiguredNeverOffers(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	svc := service.New(service.Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Config: config.NewStaticDashboardConfig(config.DefaultDashboardConfig()),
	})
	assert.False(t, svc.OfferFactoryReset(superadmin(), "", "root"))
}

func TestDiagnosticsReportsRawErrors(t *testing.T) {
	f := setup(t)
	f.procs.failOn["garages"] = errors.New(`relation "garages" does not exist`)

	report, err := f.svc.Diagnostics(superadmin())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", report.Dialect)
	assert.Equal(t, 3, report.LiveSessions)

	byName := map[string]domain.ProbeResult{}
	for _, p := range report.Probes {
		byName[p.Name] = p
	}
	assert.NotContains(t, byName, "claims")
	assert.True(t, byName["database"].OK)
	require.NotNil(t, byName["garages"].Error)
	assert.Equal(t, `relation "garages" does not exist`, byName["garages"].Error.Message)
}

func TestAdminSurfaceIsSuperadminOnly(t *testing.T) {
	f := setup(t)
	owner := asPrincipal(role.Principal{ID: "o1", Role: role.Owner})

	_, err := f.svc.Diagnostics(owner)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.ListAllGarages(owner)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.ListAuditLogs(owner, auditdomain.ListRequest{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	garages, err := f.svc.ListAllGarages(superadmin())
	require.NoError(t, err)
	assert.Empty(t, garages)
}
