package repository

import (
	"context"

	"github.com/fauter/cochera-admin/internal/garage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, g *domain.Garage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO garages (id, owner_id, name, slug, address, tax_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID,
		g.OwnerID,
		g.Name,
		g.Slug,
		g.Address,
		g.TaxID,
		g.CreatedAt,
		g.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, g *domain.Garage) error {
	return db.WithContext(ctx).Exec(
		`UPDATE garages SET name = ?, slug = ?, address = ?, tax_id = ?, updated_at = ?
		 WHERE id = ?`,
		g.Name,
		g.Slug,
		g.Address,
		g.TaxID,
		g.UpdatedAt,
		g.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM garages WHERE id = ?`, id)
	return res.RowsAffected, res.Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Garage, error) {
	var g domain.Garage
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id, name, slug, address, tax_id, created_at, updated_at
		 FROM garages WHERE id = ?`,
		id,
	).Scan(&g).Error
	if err != nil {
		return nil, err
	}
	if g.ID == "" {
		return nil, nil
	}
	return &g, nil
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Garage, error) {
	var items []domain.Garage
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id, name, slug, address, tax_id, created_at, updated_at
		 FROM garages WHERE owner_id = ? ORDER BY name ASC, created_at ASC`,
		ownerID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Garage, error) {
	if len(ids) == 0 {
		return []domain.Garage{}, nil
	}
	var items []domain.Garage
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("name ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB) ([]domain.Garage, error) {
	var items []domain.Garage
	err := db.WithContext(ctx).Order("name ASC").Find(&items).Error
	return items, err
}
