package service

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/fauter/cochera-admin/internal/garage/domain"
	"github.com/fauter/cochera-admin/internal/orgcontext"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/pkg/rls"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
	now  func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("garage.service"),
		repo: p.Repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Garage, error) {
	p, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok || p.Shadow || !p.Can(role.CapManageGarages) {
		return nil, domain.ErrForbidden
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	taxID, err := normalizeTaxID(req.TaxID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	g := &domain.Garage{
		ID:        uuid.NewString(),
		OwnerID:   p.TenantOwnerID(),
		Name:      name,
		Slug:      slug.MakeLang(name, "es"),
		Address:   trimmedPtr(req.Address),
		TaxID:     taxID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		return s.repo.Create(ctx, tx, g)
	}); err != nil {
		return nil, err
	}
	s.log.Info("garage created", zap.String("garage_id", g.ID), zap.String("owner_id", g.OwnerID))
	return g, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateRequest) (*domain.Garage, error) {
	var out *domain.Garage
	err := rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		g, err := s.findManaged(ctx, tx, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			g.Name = name
			g.Slug = slug.MakeLang(name, "es")
		}
		if req.Address != nil {
			g.Address = trimmedPtr(req.Address)
		}
		if req.TaxID != nil {
			taxID, err := normalizeTaxID(req.TaxID)
			if err != nil {
				return err
			}
			g.TaxID = taxID
		}
		g.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, tx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		g, err := s.findManaged(ctx, tx, id)
		if err != nil {
			return err
		}
		n, err := s.repo.Delete(ctx, tx, g.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		s.log.Info("garage deleted", zap.String("garage_id", g.ID))
		return nil
	})
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Garage, error) {
	id, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var out *domain.Garage
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		g, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if g == nil {
			return domain.ErrNotFound
		}
		out = g
		return nil
	})
	return out, err
}

func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]domain.Garage, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidOwner
	}
	var out []domain.Garage
	err := rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		items, err := s.repo.ListByOwner(ctx, tx, ownerID)
		out = items
		return err
	})
	return nonNil(out), err
}

func (s *Service) ListByIDs(ctx context.Context, ids []string) ([]domain.Garage, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if parsed, err := parseID(id); err == nil {
			clean = append(clean, parsed)
		}
	}
	var out []domain.Garage
	err := rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		items, err := s.repo.ListByIDs(ctx, tx, clean)
		out = items
		return err
	})
	return nonNil(out), err
}

func (s *Service) ListAll(ctx context.Context) ([]domain.Garage, error) {
	p, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok || !p.Can(role.CapGlobalAdmin) {
		return nil, domain.ErrForbidden
	}
	var out []domain.Garage
	err := rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		items, err := s.repo.ListAll(ctx, tx)
		out = items
		return err
	})
	return nonNil(out), err
}

func (s *Service) ListAccessible(ctx context.Context, p role.Principal) ([]domain.Garage, error) {
	switch {
	case p.Role == role.SuperAdmin && !p.Shadow:
		return s.ListAll(ctx)
	case p.Shadow:
		items, err := s.ListByIDs(ctx, p.Permissions.AllowedGarages)
		if err != nil {
			return nil, err
		}
		out := items[:0]
		for _, g := range items {
			if g.OwnerID == p.OwnerID {
				out = append(out, g)
			}
		}
		return out, nil
	default:
		return s.ListByOwner(ctx, p.ID)
	}
}

func (s *Service) Owns(ctx context.Context, ownerID string, ids []string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	items, err := s.ListByIDs(ctx, ids)
	if err != nil {
		return false, err
	}
	owned := make(map[string]bool, len(items))
	for _, g := range items {
		if g.OwnerID == ownerID {
			owned[g.ID] = true
		}
	}
	for _, id := range ids {
		if !owned[strings.TrimSpace(id)] {
			return false, nil
		}
	}
	return true, nil
}

// findManaged loads a garage the acting principal may edit.
func (s *Service) findManaged(ctx context.Context, tx *gorm.DB, id string) (*domain.Garage, error) {
	p, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok || !p.Can(role.CapManageGarages) {
		return nil, domain.ErrForbidden
	}
	id, err := parseID(id)
	if err != nil {
		return nil, err
	}
	g, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, domain.ErrNotFound
	}
	if !p.Can(role.CapGlobalAdmin) && g.OwnerID != p.TenantOwnerID() {
		return nil, domain.ErrNotFound
	}
	return g, nil
}

func parseID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", domain.ErrInvalidID
	}
	return id.String(), nil
}

// normalizeTaxID accepts a CUIT with or without dashes.
func normalizeTaxID(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, nil
	}
	digits := strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' || r == '.' {
			return -1
		}
		return r
	}, value)
	if len(digits) != 11 {
		return nil, domain.ErrInvalidTaxID
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return nil, domain.ErrInvalidTaxID
		}
	}
	return &digits, nil
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func nonNil(items []domain.Garage) []domain.Garage {
	if items == nil {
		return []domain.Garage{}
	}
	return items
}
