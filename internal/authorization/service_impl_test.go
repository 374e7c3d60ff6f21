package authorization

import (
	"context"
	"sync"
	"testing"

	auditdomain "github.com/fauter/cochera-admin/internal/audit/domain"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []auditdomain.Entry
}

func (r *recordingAudit) AuditLog(_ context.Context, e auditdomain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingAudit) List(context.Context, auditdomain.ListRequest) ([]auditdomain.AuditLog, error) {
	return nil, nil
}

func newTestService(t *testing.T) (Service, *recordingAudit) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	audit := &recordingAudit{}
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audit}), audit
}

func TestSuperAdminMayFactoryReset(t *testing.T) {
	svc, audit := newTestService(t)
	p := role.Principal{ID: "root", Role: role.SuperAdmin}

	require.NoError(t, svc.Authorize(context.Background(), p, ObjectSystem, ActionFactoryReset))
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "authorization.granted", audit.entries[0].Action)
	assert.Equal(t, auditdomain.ActorTypeUser, audit.entries[0].ActorType)
}

func TestOtherRolesAreDenied(t *testing.T) {
	for _, r := range []role.Role{role.Owner, role.Manager, role.Administrative, role.Operator, role.Auditor} {
		t.Run(r.String(), func(t *testing.T) {
			svc, audit := newTestService(t)
			err := svc.Authorize(context.Background(), role.Principal{ID: "u1", Role: r}, ObjectSystem, ActionFactoryReset)
			assert.ErrorIs(t, err, ErrForbidden)
			require.Len(t, audit.entries, 1)
			assert.Equal(t, "authorization.denied", audit.entries[0].Action)
		})
	}
}

func TestRoleChangeTakesEffect(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, role.Principal{ID: "u1", Role: role.SuperAdmin}, ObjectGarage, ActionGaragesListAll))
	err := svc.Authorize(ctx, role.Principal{ID: "u1", Role: role.Owner}, ObjectGarage, ActionGaragesListAll)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestShadowSubjectsAreSeparate(t *testing.T) {
	svc, audit := newTestService(t)
	p := role.Principal{ID: "root", Role: role.Manager, Shadow: true, OwnerID: "o1"}

	err := svc.Authorize(context.Background(), p, ObjectDiagnostics, ActionDiagnosticsView)
	assert.ErrorIs(t, err, ErrForbidden)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, auditdomain.ActorTypeEmployee, audit.entries[0].ActorType)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	admin := role.Principal{ID: "root", Role: role.SuperAdmin}

	assert.ErrorIs(t, svc.Authorize(ctx, admin, "", ActionFactoryReset), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, admin, ObjectSystem, " "), ErrInvalidAction)
	assert.ErrorIs(t, svc.Authorize(ctx, role.Principal{Role: role.SuperAdmin}, ObjectSystem, ActionFactoryReset), ErrInvalidActor)
}

func TestSeedIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	_, err = NewEnforcer(conn)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, 4)
}
