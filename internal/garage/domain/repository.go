package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, g *Garage) error
	Update(ctx context.Context, db *gorm.DB, g *Garage) error
	Delete(ctx context.Context, db *gorm.DB, id string) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Garage, error)
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID string) ([]Garage, error)
	ListByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]Garage, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]Garage, error)
}
