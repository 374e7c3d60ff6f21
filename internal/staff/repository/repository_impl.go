package repository

import (
	"context"
	"errors"

	"github.com/fauter/cochera-admin/internal/staff/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Employee, error) {
	var e domain.Employee
	err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Employee, error) {
	var items []domain.Employee
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("full_name ASC, username ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, e *domain.Employee) error {
	return db.WithContext(ctx).
		Model(&domain.Employee{}).
		Where("id = ? AND owner_id = ?", e.ID, e.OwnerID).
		Updates(map[string]any{
			"full_name":   e.FullName,
			"role":        e.Role,
			"garage_id":   e.GarageID,
			"permissions": e.Permissions,
			"updated_at":  e.UpdatedAt,
		}).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, ownerID, id string) (int64, error) {
	res := db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&domain.Employee{})
	return res.RowsAffected, res.Error
}
