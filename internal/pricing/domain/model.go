package domain

import "time"

type VehicleType struct {
	ID        int64     `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	GarageID  string    `json:"garage_id" gorm:"type:varchar(36);not null;uniqueIndex:ux_vehicle_types_garage_code,priority:1"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Code      string    `json:"code" gorm:"type:varchar(80);not null;uniqueIndex:ux_vehicle_types_garage_code,priority:2"`
	Position  int       `json:"position" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (VehicleType) TableName() string { return "vehicle_types" }

type TariffKind string

const (
	TariffHourly       TariffKind = "hourly"
	TariffStay         TariffKind = "stay"
	TariffSubscription TariffKind = "subscription"
)

func (k TariffKind) Valid() bool {
	switch k {
	case TariffHourly, TariffStay, TariffSubscription:
		return true
	}
	return false
}

// Tariff is a time bucket: Days, Hours and Minutes add up to its length and
// ToleranceMinutes is the grace before the next bucket is charged.
type Tariff struct {
	ID               int64      `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	GarageID         string     `json:"garage_id" gorm:"type:varchar(36);not null;index:idx_tariffs_garage"`
	Name             string     `json:"name" gorm:"type:text;not null"`
	Kind             TariffKind `json:"kind" gorm:"type:varchar(20);not null"`
	Days             int        `json:"days" gorm:"not null;default:0"`
	Hours            int        `json:"hours" gorm:"not null;default:0"`
	Minutes          int        `json:"minutes" gorm:"not null;default:0"`
	ToleranceMinutes int        `json:"tolerance_minutes" gorm:"not null;default:0"`
	Position         int        `json:"position" gorm:"not null;default:0"`
	CreatedAt        time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"not null"`
}

func (Tariff) TableName() string { return "tariffs" }

// Duration is the bucket length.
func (t Tariff) Duration() time.Duration {
	return time.Duration(t.Days)*24*time.Hour +
		time.Duration(t.Hours)*time.Hour +
		time.Duration(t.Minutes)*time.Minute
}

// Price is one matrix cell. The natural key is
// (garage_id, tariff_id, vehicle_type_id, price_list).
type Price struct {
	ID            int64     `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	GarageID      string    `json:"garage_id" gorm:"type:varchar(36);not null;uniqueIndex:ux_prices_cell,priority:1"`
	TariffID      int64     `json:"tariff_id,string" gorm:"not null;uniqueIndex:ux_prices_cell,priority:2"`
	VehicleTypeID int64     `json:"vehicle_type_id,string" gorm:"not null;uniqueIndex:ux_prices_cell,priority:3"`
	PriceList     string    `json:"price_list" gorm:"type:varchar(40);not null;uniqueIndex:ux_prices_cell,priority:4"`
	AmountCents   int64     `json:"amount_cents" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"not null"`
}

func (Price) TableName() string { return "prices" }

// CellKey identifies a matrix cell across price writes.
type CellKey struct {
	GarageID      string
	TariffID      int64
	VehicleTypeID int64
	PriceList     string
}

func (k CellKey) String() string {
	return "cochera:price-cell:" + k.GarageID + ":" + itoa(k.TariffID) + ":" + itoa(k.VehicleTypeID) + ":" + k.PriceList
}
