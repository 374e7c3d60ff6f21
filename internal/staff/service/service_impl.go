package service

import (
	"context"
	"errors"
	"strings"
	"time"

	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	"github.com/fauter/cochera-admin/internal/orgcontext"
	"github.com/fauter/cochera-admin/internal/ratelimit"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/internal/session"
	"github.com/fauter/cochera-admin/internal/staff/domain"
	"github.com/fauter/cochera-admin/pkg/rls"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	minSecretLength   = 6
	maxUsernameLength = 40
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	Procedures domain.Procedures
	Garages    garagedomain.Service
	Sessions   domain.SessionNotifier
	Limiter    *ratelimit.EmployeeLoginLimiter `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	procedures domain.Procedures
	garages    garagedomain.Service
	sessions   domain.SessionNotifier
	limiter    *ratelimit.EmployeeLoginLimiter
	now        func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("staff.service"),
		repo:       p.Repo,
		procedures: p.Procedures,
		garages:    p.Garages,
		sessions:   p.Sessions,
		limiter:    p.Limiter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) List(ctx context.Context, ownerID string) ([]domain.Employee, error) {
	p, err := s.manager(ctx)
	if err != nil {
		return nil, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		ownerID = p.TenantOwnerID()
	}
	if ownerID != p.TenantOwnerID() && !p.Can(role.CapGlobalAdmin) {
		return nil, domain.ErrForbidden
	}

	var out []domain.Employee
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		items, err := s.repo.ListByOwner(ctx, tx, ownerID)
		out = items
		return err
	})
	if out == nil {
		out = []domain.Employee{}
	}
	return out, err
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Employee, error) {
	p, err := s.manager(ctx)
	if err != nil {
		return nil, err
	}
	var out *domain.Employee
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		out, err = s.find(ctx, tx, p, id)
		return err
	})
	return out, err
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Employee, error) {
	p, err := s.manager(ctx)
	if err != nil {
		return nil, err
	}
	ownerID := p.TenantOwnerID()

	username, err := normalizeUsername(req.Username)
	if err != nil {
		return nil, err
	}
	if len(req.Secret) < minSecretLength {
		return nil, domain.ErrInvalidSecret
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return nil, domain.ErrInvalidName
	}
	r, err := delegatedRole(req.Role)
	if err != nil {
		return nil, err
	}
	garageID := cleanGarage(req.GarageID)
	var doc role.PermissionDocument
	if req.Permissions != nil {
		doc = *req.Permissions
	}
	doc, err = s.validateAccess(ctx, ownerID, garageID, doc)
	if err != nil {
		return nil, err
	}
	if err := delegable(p, r); err != nil {
		return nil, err
	}
	if err := withinScope(p, garageID, doc); err != nil {
		return nil, err
	}

	var out *domain.Employee
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		id, err := s.procedures.CreateEmployeeAccount(ctx, tx, domain.CreateAccountArgs{
			OwnerID:     ownerID,
			Username:    username,
			Secret:      req.Secret,
			FullName:    fullName,
			Role:        r,
			GarageID:    garageID,
			Permissions: doc,
		})
		if err != nil {
			return err
		}
		e, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return domain.ErrNotFound
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("employee account created",
		zap.String("employee_id", out.ID),
		zap.String("owner_id", ownerID),
		zap.String("role", string(r)),
	)
	return out, nil
}

// Update edits an account and brings its live sessions in line: a role
// change ends them, any other access change pushes the new document.
func (s *Service) Update(ctx context.Context, id string, req domain.UpdateRequest) (*domain.Employee, error) {
	p, err := s.manager(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out         *domain.Employee
		roleChanged bool
	)
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		e, err := s.find(ctx, tx, p, id)
		if err != nil {
			return err
		}
		if err := withinScope(p, e.GarageID, e.Document()); err != nil {
			return err
		}
		if p.Shadow && e.ID == p.ID && (req.Role != nil || req.GarageID != nil || req.Permissions != nil) {
			return domain.ErrForbidden
		}
		if req.FullName != nil {
			name := strings.TrimSpace(*req.FullName)
			if name == "" {
				return domain.ErrInvalidName
			}
			e.FullName = name
		}
		if req.Role != nil {
			r, err := delegatedRole(*req.Role)
			if err != nil {
				return err
			}
			roleChanged = r != e.Role
			if roleChanged {
				if err := delegable(p, r); err != nil {
					return err
				}
			}
			e.Role = r
		}
		if req.GarageID != nil {
			e.GarageID = cleanGarage(req.GarageID)
		}
		doc := e.Permissions.Data()
		if req.Permissions != nil {
			doc = *req.Permissions
		}
		doc, err = s.validateAccess(ctx, e.OwnerID, e.GarageID, doc)
		if err != nil {
			return err
		}
		if err := withinScope(p, e.GarageID, doc); err != nil {
			return err
		}
		e.Permissions = datatypes.NewJSONType(doc)
		e.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, tx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	if roleChanged {
		n := s.sessions.EndShadowSessions(ctx, out.ID)
		s.log.Info("employee role changed, live sessions ended",
			zap.String("employee_id", out.ID),
			zap.Int("sessions", n),
		)
	} else {
		s.sessions.PushPermissions(ctx, out.ID, out.Document())
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.manager(ctx)
	if err != nil {
		return err
	}
	var employeeID string
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		e, err := s.find(ctx, tx, p, id)
		if err != nil {
			return err
		}
		if err := withinScope(p, e.GarageID, e.Document()); err != nil {
			return err
		}
		employeeID = e.ID
		n, err := s.repo.Delete(ctx, tx, e.OwnerID, e.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	n := s.sessions.EndShadowSessions(ctx, employeeID)
	s.log.Info("employee account deleted",
		zap.String("employee_id", employeeID),
		zap.Int("sessions_ended", n),
	)
	return nil
}

// Login exchanges a username and secret for a shadow session record. It runs
// before any identity exists, so the database sees the anonymous role.
func (s *Service) Login(ctx context.Context, username, secret string) (*session.ShadowRecord, error) {
	username, err := normalizeUsername(username)
	if err != nil || secret == "" {
		return nil, domain.ErrInvalidCredentials
	}
	if s.limiter != nil {
		if _, err := s.limiter.Allow(ctx, username); err != nil {
			if errors.Is(err, ratelimit.ErrTooManyAttempts) {
				return nil, domain.ErrRateLimited
			}
			return nil, err
		}
	}

	var rec *session.ShadowRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithClaims(tx, rls.Claims{Role: "anon"}); err != nil {
			return err
		}
		rec, err = s.procedures.LoginEmployee(ctx, tx, username, secret)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.log.Info("employee login rejected", zap.String("username", username))
		}
		return nil, err
	}
	if _, err := session.ShadowFromRecord(*rec); err != nil {
		s.log.Warn("login_employee returned an unusable record",
			zap.String("username", username),
			zap.Error(err),
		)
		return nil, err
	}
	return rec, nil
}

// validateAccess checks that every garage the document names belongs to the
// owner and that every section key is known.
func (s *Service) validateAccess(ctx context.Context, ownerID string, garageID *string, doc role.PermissionDocument) (role.PermissionDocument, error) {
	if unknown := doc.UnknownSections(); len(unknown) > 0 {
		return role.PermissionDocument{}, domain.ErrUnknownSection
	}
	doc = doc.Normalize()
	ids := append([]string{}, doc.AllowedGarages...)
	if garageID != nil {
		ids = append(ids, *garageID)
	}
	owned, err := s.garages.Owns(ctx, ownerID, ids)
	if err != nil {
		return role.PermissionDocument{}, err
	}
	if !owned {
		return role.PermissionDocument{}, domain.ErrForeignGarage
	}
	return doc, nil
}

// withinScope keeps a shadow manager inside its own allow-list: it cannot bind
// or grant a garage it cannot enter itself.
func withinScope(p role.Principal, garageID *string, doc role.PermissionDocument) error {
	if !p.Shadow {
		return nil
	}
	allowed := make(map[string]struct{}, len(p.Permissions.AllowedGarages))
	for _, id := range p.Permissions.AllowedGarages {
		allowed[id] = struct{}{}
	}
	ids := doc.AllowedGarages
	if garageID != nil {
		ids = append(append([]string{}, ids...), *garageID)
	}
	for _, id := range ids {
		if _, ok := allowed[id]; !ok {
			return domain.ErrForbidden
		}
	}
	return nil
}

// delegable reports whether p may hand out r. Only standard accounts appoint
// managers.
func delegable(p role.Principal, r role.Role) error {
	if p.Shadow && r == role.Manager {
		return domain.ErrForbidden
	}
	return nil
}

func (s *Service) find(ctx context.Context, tx *gorm.DB, p role.Principal, id string) (*domain.Employee, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrNotFound
	}
	e, err := s.repo.FindByID(ctx, tx, parsed.String())
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, domain.ErrNotFound
	}
	if e.OwnerID != p.TenantOwnerID() && !p.Can(role.CapGlobalAdmin) {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (s *Service) manager(ctx context.Context) (role.Principal, error) {
	p, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok || !p.Can(role.CapManageStaff) {
		return role.Principal{}, domain.ErrForbidden
	}
	return p, nil
}

func delegatedRole(raw string) (role.Role, error) {
	r, err := role.Parse(raw)
	if err != nil || !r.Delegated() {
		return "", domain.ErrInvalidRole
	}
	return r, nil
}

func cleanGarage(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizeUsername(raw string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(raw))
	if len(u) < 3 || len(u) > maxUsernameLength {
		return "", domain.ErrInvalidUsername
	}
	for _, r := range u {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return "", domain.ErrInvalidUsername
		}
	}
	return u, nil
}
