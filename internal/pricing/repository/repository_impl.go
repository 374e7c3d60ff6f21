package repository

import (
	"context"
	"errors"

	"github.com/fauter/cochera-admin/internal/pricing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.PriceRepository {
	return &repo{}
}

// Upsert writes the cell keyed by its natural key. Writing the same cell twice
// leaves one row carrying the latest amount.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, price *domain.Price) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "garage_id"},
			{Name: "tariff_id"},
			{Name: "vehicle_type_id"},
			{Name: "price_list"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"amount_cents", "updated_at"}),
	}).Create(price).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, key domain.CellKey) (*domain.Price, error) {
	var p domain.Price
	err := db.WithContext(ctx).
		Where("garage_id = ? AND tariff_id = ? AND vehicle_type_id = ? AND price_list = ?",
			key.GarageID, key.TariffID, key.VehicleTypeID, key.PriceList).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, garageID, priceList string) ([]domain.Price, error) {
	var items []domain.Price
	err := db.WithContext(ctx).
		Where("garage_id = ? AND price_list = ?", garageID, priceList).
		Find(&items).Error
	return items, err
}

func (r *repo) DeleteByTariff(ctx context.Context, db *gorm.DB, garageID string, tariffID int64) error {
	return db.WithContext(ctx).
		Where("garage_id = ? AND tariff_id = ?", garageID, tariffID).
		Delete(&domain.Price{}).Error
}

func (r *repo) DeleteByVehicleType(ctx context.Context, db *gorm.DB, garageID string, vehicleTypeID int64) error {
	return db.WithContext(ctx).
		Where("garage_id = ? AND vehicle_type_id = ?", garageID, vehicleTypeID).
		Delete(&domain.Price{}).Error
}
