package domain

import (
	"context"

	"gorm.io/gorm"
)

// PriceRepository handles the price cells. Vehicle types and tariffs use the
// generic store.
type PriceRepository interface {
	Upsert(ctx context.Context, db *gorm.DB, price *Price) error
	Find(ctx context.Context, db *gorm.DB, key CellKey) (*Price, error)
	List(ctx context.Context, db *gorm.DB, garageID, priceList string) ([]Price, error)
	DeleteByTariff(ctx context.Context, db *gorm.DB, garageID string, tariffID int64) error
	DeleteByVehicleType(ctx context.Context, db *gorm.DB, garageID string, vehicleTypeID int64) error
}
