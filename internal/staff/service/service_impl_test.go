package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fauter/cochera-admin/internal/config"
	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	garagerepo "github.com/fauter/cochera-admin/internal/garage/repository"
	garagesvc "github.com/fauter/cochera-admin/internal/garage/service"
	"github.com/fauter/cochera-admin/internal/orgcontext"
	"github.com/fauter/cochera-admin/internal/ratelimit"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/internal/session"
	"github.com/fauter/cochera-admin/internal/staff/domain"
	"github.com/fauter/cochera-admin/internal/staff/repository"
	"github.com/fauter/cochera-admin/internal/staff/service"
	"github.com/fauter/cochera-admin/pkg/db"
	"github.com/fauter/cochera-admin/pkg/rls"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ownerA = "5a1f0c0e-9d7b-4b8e-a1c4-00000000000a"
	ownerB = "5a1f0c0e-9d7b-4b8e-a1c4-00000000000b"
)

// fakeProcedures stands in for the database functions: it writes the row the
// real function would write and keeps secrets in memory.
type fakeProcedures struct {
	mu      sync.Mutex
	secrets map[string]string
	logins  int
}

func (f *fakeProcedures) CreateEmployeeAccount(ctx context.Context, tx *gorm.DB, args domain.CreateAccountArgs) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.secrets[args.Username]; taken {
		return "", domain.ErrUsernameTaken
	}
	now := time.Now().UTC()
	e := domain.Employee{
		ID:          uuid.NewString(),
		OwnerID:     args.OwnerID,
		Username:    args.Username,
		FullName:    args.FullName,
		Role:        args.Role,
		GarageID:    args.GarageID,
		Permissions: datatypes.NewJSONType(args.Permissions),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&e).Error; err != nil {
		return "", err
	}
	f.secrets[args.Username] = args.Secret
	return e.ID, nil
}

func (f *fakeProcedures) LoginEmployee(ctx context.Context, tx *gorm.DB, username, secret string) (*session.ShadowRecord, error) {
	f.mu.Lock()
	f.logins++
	stored, ok := f.secrets[username]
	f.mu.Unlock()
	if !ok || stored != secret {
		return nil, domain.ErrInvalidCredentials
	}
	var e domain.Employee
	if err := tx.WithContext(ctx).Where("username = ?", username).First(&e).Error; err != nil {
		return nil, err
	}
	doc := e.Permissions.Data()
	return &session.ShadowRecord{
		ID:          e.ID,
		FullName:    e.FullName,
		Role:        string(e.Role),
		OwnerID:     e.OwnerID,
		GarageID:    e.GarageID,
		Permissions: &doc,
	}, nil
}

type pushed struct {
	employeeID string
	doc        role.PermissionDocument
}

type fakeSessions struct {
	mu     sync.Mutex
	pushes []pushed
	ended  []string
}

func (f *fakeSessions) PushPermissions(_ context.Context, employeeID string, doc role.PermissionDocument) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, pushed{employeeID, doc})
	return 1
}

func (f *fakeSessions) EndShadowSessions(_ context.Context, employeeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, employeeID)
	return 1
}

type fixture struct {
	svc      domain.Service
	garages  garagedomain.Service
	procs    *fakeProcedures
	sessions *fakeSessions
}

func setup(t *testing.T, limiter *ratelimit.EmployeeLoginLimiter) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&garagedomain.Garage{}, &domain.Employee{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	garages := garagesvc.New(garagesvc.Params{DB: conn, Log: zap.NewNop(), Repo: garagerepo.Provide()})
	f := &fixture{
		garages:  garages,
		procs:    &fakeProcedures{secrets: map[string]string{}},
		sessions: &fakeSessions{},
	}
	f.svc = service.New(service.Params{
		DB:         conn,
		Log:        zap.NewNop(),
		Repo:       repository.Provide(),
		Procedures: f.procs,
		Garages:    garages,
		Sessions:   f.sessions,
		Limiter:    limiter,
	})
	return f
}

func as(p role.Principal) context.Context {
	ctx := orgcontext.WithPrincipal(context.Background(), p)
	return rls.WithContext(ctx, rls.Claims{Subject: p.ID, Role: "authenticated"})
}

func ownerCtx(id string) context.Context {
	return as(role.Principal{ID: id, Role: role.Owner})
}

func newGarage(t *testing.T, f *fixture, owner, name string) string {
	t.Helper()
	g, err := f.garages.Create(ownerCtx(owner), garagedomain.CreateRequest{Name: name})
	require.NoError(t, err)
	return g.ID
}

func TestCreateEmployee(t *testing.T) {
	f := setup(t, nil)
	g1 := newGarage(t, f, ownerA, "Centro")

	e, err := f.svc.Create(ownerCtx(ownerA), domain.CreateRequest{
		Username: " Ana.Perez ",
		Secret:   "123456",
		FullName: "Ana Pérez",
		Role:     "administrativo",
		Permissions: &role.PermissionDocument{
			AllowedGarages: []string{g1, g1},
			Sections:       []string{"precios", " Precios "},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ana.perez", e.Username)
	assert.Equal(t, role.Administrative, e.Role)
	assert.Equal(t, ownerA, e.OwnerID)
	assert.Equal(t, role.PermissionDocument{AllowedGarages: []string{g1}, Sections: []string{"precios"}}, e.Permissions.Data())

	list, err := f.svc.List(ownerCtx(ownerA), "")
	require.NoError(t, err)
	require.Len(t, list, 1)

	other, err := f.svc.List(ownerCtx(ownerB), "")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCreateEmployeeValidation(t *testing.T) {
	f := setup(t, nil)
	mine := newGarage(t, f, ownerA, "Centro")
	foreign := newGarage(t, f, ownerB, "Ajena")
	ctx := ownerCtx(ownerA)

	base := func() domain.CreateRequest {
		return domain.CreateRequest{Username: "juan", Secret: "secreto", FullName: "Juan", Role: "operator"}
	}
	cases := []struct {
		name   string
		mutate func(*domain.CreateRequest)
		want   error
	}{
		{"short username", func(r *domain.CreateRequest) { r.Username = "ju" }, domain.ErrInvalidUsername},
		{"email as username", func(r *domain.CreateRequest) { r.Username = "juan@x.com" }, domain.ErrInvalidUsername},
		{"short secret", func(r *domain.CreateRequest) { r.Secret = "123" }, domain.ErrInvalidSecret},
		{"blank name", func(r *domain.CreateRequest) { r.FullName = " " }, domain.ErrInvalidName},
		{"owner role", func(r *domain.CreateRequest) { r.Role = "owner" }, domain.ErrInvalidRole},
		{"superadmin role", func(r *domain.CreateRequest) { r.Role = "superadmin" }, domain.ErrInvalidRole},
		{"unknown role", func(r *domain.CreateRequest) { r.Role = "cajero" }, domain.ErrInvalidRole},
		{"unknown section", func(r *domain.CreateRequest) {
			r.Permissions = &role.PermissionDocument{Sections: []string{"precios", "contabilidad"}}
		}, domain.ErrUnknownSection},
		{"foreign allowed garage", func(r *domain.CreateRequest) {
			r.Permissions = &role.PermissionDocument{AllowedGarages: []string{mine, foreign}}
		}, domain.ErrForeignGarage},
		{"foreign garage binding", func(r *domain.CreateRequest) { r.GarageID = &foreign }, domain.ErrForeignGarage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base()
			tc.mutate(&req)
			_, err := f.svc.Create(ctx, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.Create(ctx, base())
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, base())
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)
}

func TestStaffManagementRequiresCapability(t *testing.T) {
	f := setup(t, nil)
	admin := as(role.Principal{ID: "e9", Role: role.Administrative, Shadow: true, OwnerID: ownerA})

	_, err := f.svc.List(admin, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.Create(admin, domain.CreateRequest{Username: "juan", Secret: "secreto", FullName: "Juan", Role: "operator"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.List(ownerCtx(ownerA), ownerB)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestShadowManagerManagesOwnersStaff(t *testing.T) {
	f := setup(t, nil)
	g1 := newGarage(t, f, ownerA, "Centro")
	manager := as(role.Principal{
		ID: "m1", Role: role.Manager, Shadow: true, OwnerID: ownerA,
		Permissions: role.PermissionDocument{AllowedGarages: []string{g1}},
	})

	e, err := f.svc.Create(manager, domain.CreateRequest{
		Username: "caja1", Secret: "secreto", FullName: "Caja", Role: "operator", GarageID: &g1,
	})
	require.NoError(t, err)
	assert.Equal(t, ownerA, e.OwnerID)
	assert.Equal(t, []string{g1}, e.Document().AllowedGarages, "garage binding doubles as allow-list")
}

func TestShadowManagerStaysInsideItsAllowList(t *testing.T) {
	f := setup(t, nil)
	g1 := newGarage(t, f, ownerA, "Centro")
	g2 := newGarage(t, f, ownerA, "Norte")
	owner := ownerCtx(ownerA)

	self, err := f.svc.Create(owner, domain.CreateRequest{
		Username: "gerente", Secret: "secreto", FullName: "Gerente", Role: "manager",
		Permissions: &role.PermissionDocument{AllowedGarages: []string{g1}},
	})
	require.NoError(t, err)
	outside, err := f.svc.Create(owner, domain.CreateRequest{
		Username: "norte1", Secret: "secreto", FullName: "Norte", Role: "operator", GarageID: &g2,
	})
	require.NoError(t, err)
	manager := as(role.Principal{
		ID: self.ID, Role: role.Manager, Shadow: true, OwnerID: ownerA,
		Permissions: role.PermissionDocument{AllowedGarages: []string{g1}},
	})

	widened := role.PermissionDocument{AllowedGarages: []string{g1, g2}}
	_, err = f.svc.Update(manager, self.ID, domain.UpdateRequest{Permissions: &widened})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	narrowed := role.PermissionDocument{AllowedGarages: []string{g1}, Sections: []string{"precios"}}
	_, err = f.svc.Update(manager, self.ID, domain.UpdateRequest{Permissions: &narrowed})
	assert.ErrorIs(t, err, domain.ErrForbidden, "own access is not self-editable")
	name := "Gerente General"
	renamed, err := f.svc.Update(manager, self.ID, domain.UpdateRequest{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, renamed.FullName)

	_, err = f.svc.Create(manager, domain.CreateRequest{
		Username: "norte2", Secret: "secreto", FullName: "Norte", Role: "operator", GarageID: &g2,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.Create(manager, domain.CreateRequest{
		Username: "gerente2", Secret: "secreto", FullName: "Otro", Role: "manager", GarageID: &g1,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Update(manager, outside.ID, domain.UpdateRequest{FullName: &name})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, f.svc.Delete(manager, outside.ID), domain.ErrForbidden)

	cashier, err := f.svc.Create(manager, domain.CreateRequest{
		Username: "caja1", Secret: "secreto", FullName: "Caja", Role: "operator", GarageID: &g1,
	})
	require.NoError(t, err)
	promote := "manager"
	_, err = f.svc.Update(manager, cashier.ID, domain.UpdateRequest{Role: &promote})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Empty(t, f.sessions.ended)
	require.Len(t, f.sessions.pushes, 1)
	assert.Equal(t, []string{g1}, f.sessions.pushes[0].doc.AllowedGarages)
}

func TestUpdatePushesDocumentToLiveSessions(t *testing.T) {
	f := setup(t, nil)
	g1 := newGarage(t, f, ownerA, "Centro")
	g2 := newGarage(t, f, ownerA, "Norte")
	ctx := ownerCtx(ownerA)

	e, err := f.svc.Create(ctx, domain.CreateRequest{
		Username: "ana", Secret: "secreto", FullName: "Ana", Role: "administrative",
		Permissions: &role.PermissionDocument{AllowedGarages: []string{g1}, Sections: []string{"precios"}},
	})
	require.NoError(t, err)

	doc := role.PermissionDocument{AllowedGarages: []string{g1, g2}, Sections: []string{"precios", "recargos"}}
	updated, err := f.svc.Update(ctx, e.ID, domain.UpdateRequest{Permissions: &doc})
	require.NoError(t, err)
	assert.Equal(t, doc, updated.Permissions.Data())

	require.Len(t, f.sessions.pushes, 1)
	assert.Equal(t, e.ID, f.sessions.pushes[0].employeeID)
	assert.Equal(t, doc, f.sessions.pushes[0].doc)
	assert.Empty(t, f.sessions.ended)

	stored, err := f.svc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, stored.Permissions.Data())
}

func TestRoleChangeEndsLiveSessions(t *testing.T) {
	f := setup(t, nil)
	ctx := ownerCtx(ownerA)
	e, err := f.svc.Create(ctx, domain.CreateRequest{Username: "ana", Secret: "secreto", FullName: "Ana", Role: "operator"})
	require.NoError(t, err)

	manager := "manager"
	updated, err := f.svc.Update(ctx, e.ID, domain.UpdateRequest{Role: &manager})
	require.NoError(t, err)
	assert.Equal(t, role.Manager, updated.Role)
	assert.Equal(t, []string{e.ID}, f.sessions.ended)
	assert.Empty(t, f.sessions.pushes)

	owner := "owner"
	_, err = f.svc.Update(ctx, e.ID, domain.UpdateRequest{Role: &owner})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestUpdateAndDeleteStayWithinTenant(t *testing.T) {
	f := setup(t, nil)
	e, err := f.svc.Create(ownerCtx(ownerA), domain.CreateRequest{Username: "ana", Secret: "secreto", FullName: "Ana", Role: "operator"})
	require.NoError(t, err)

	name := "Intrusa"
	_, err = f.svc.Update(ownerCtx(ownerB), e.ID, domain.UpdateRequest{FullName: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ownerCtx(ownerB), e.ID), domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ownerCtx(ownerA), "not-a-uuid"), domain.ErrNotFound)

	require.NoError(t, f.svc.Delete(ownerCtx(ownerA), e.ID))
	assert.Equal(t, []string{e.ID}, f.sessions.ended)
	_, err = f.svc.Get(ownerCtx(ownerA), e.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoginReturnsShadowRecord(t *testing.T) {
	f := setup(t, nil)
	g1 := newGarage(t, f, ownerA, "Centro")
	_, err := f.svc.Create(ownerCtx(ownerA), domain.CreateRequest{
		Username: "ana", Secret: "secreto", FullName: "Ana", Role: "administrative",
		Permissions: &role.PermissionDocument{AllowedGarages: []string{g1}, Sections: []string{"precios"}},
	})
	require.NoError(t, err)

	rec, err := f.svc.Login(context.Background(), " ANA ", "secreto")
	require.NoError(t, err)
	assert.Equal(t, "Ana", rec.FullName)
	assert.Equal(t, ownerA, rec.OwnerID)
	require.NotNil(t, rec.Permissions)
	assert.Equal(t, []string{g1}, rec.Permissions.AllowedGarages)

	_, err = f.svc.Login(context.Background(), "ana", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.Login(context.Background(), "", "secreto")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLoginIsRateLimitedPerUsername(t *testing.T) {
	dash := config.DefaultDashboardConfig()
	dash.EmployeeLogin = config.LoginRateConfig{RatePerSecond: 0.001, Burst: 2}
	limiter := ratelimit.NewEmployeeLoginLimiter(ratelimit.NewLocalBucket(time.Minute), config.NewStaticDashboardConfig(dash), nil, zap.NewNop())
	f := setup(t, limiter)

	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(context.Background(), "ana", "wrong")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}
	_, err := f.svc.Login(context.Background(), "Ana", "wrong")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 2, f.procs.logins, "throttled attempts never reach the database")

	_, err = f.svc.Login(context.Background(), "pedro", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}
