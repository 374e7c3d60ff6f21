package domain

import (
	"context"
	"errors"
	"io"
)

// DefaultPriceList is used when a request names no list.
const DefaultPriceList = "general"

type Service interface {
	ListVehicleTypes(ctx context.Context, garageID string) ([]VehicleType, error)
	CreateVehicleType(ctx context.Context, garageID string, req VehicleTypeRequest) (*VehicleType, error)
	UpdateVehicleType(ctx context.Context, garageID string, id int64, req VehicleTypeRequest) (*VehicleType, error)
	DeleteVehicleType(ctx context.Context, garageID string, id int64) error

	ListTariffs(ctx context.Context, garageID string) ([]Tariff, error)
	CreateTariff(ctx context.Context, garageID string, req TariffRequest) (*Tariff, error)
	UpdateTariff(ctx context.Context, garageID string, id int64, req TariffRequest) (*Tariff, error)
	DeleteTariff(ctx context.Context, garageID string, id int64) error

	Matrix(ctx context.Context, garageID, priceList string) (*Matrix, error)
	UpsertPrice(ctx context.Context, req UpsertPriceRequest) (*Price, error)
	ExportPDF(ctx context.Context, garageID, priceList string) (io.Reader, error)
}

type VehicleTypeRequest struct {
	Name     string `json:"name"`
	Position *int   `json:"position"`
}

type TariffRequest struct {
	Name             string     `json:"name"`
	Kind             TariffKind `json:"kind"`
	Days             int        `json:"days"`
	Hours            int        `json:"hours"`
	Minutes          int        `json:"minutes"`
	ToleranceMinutes int        `json:"tolerance_minutes"`
	Position         *int       `json:"position"`
}

// UpsertPriceRequest writes one cell. Amount is user input in es-AR or plain
// notation.
type UpsertPriceRequest struct {
	GarageID      string `json:"-"`
	TariffID      int64  `json:"tariff_id,string"`
	VehicleTypeID int64  `json:"vehicle_type_id,string"`
	PriceList     string `json:"price_list"`
	Amount        string `json:"amount"`
}

// Matrix is the pricing grid: one row per vehicle type, one column per tariff.
type Matrix struct {
	GarageID  string      `json:"garage_id"`
	PriceList string      `json:"price_list"`
	Tariffs   []Tariff    `json:"tariffs"`
	Rows      []MatrixRow `json:"rows"`
}

type MatrixRow struct {
	VehicleType VehicleType  `json:"vehicle_type"`
	Cells       []MatrixCell `json:"cells"`
}

// MatrixCell has a nil amount when no price is stored.
type MatrixCell struct {
	TariffID    int64   `json:"tariff_id,string"`
	AmountCents *int64  `json:"amount_cents"`
	Display     *string `json:"display"`
}

var (
	ErrInvalidGarage    = errors.New("invalid_garage")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidKind      = errors.New("invalid_kind")
	ErrInvalidDuration  = errors.New("invalid_duration")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidPriceList = errors.New("invalid_price_list")
	ErrInvalidID        = errors.New("invalid_id")
	ErrNotFound         = errors.New("not_found")
	ErrDuplicateCode    = errors.New("duplicate_code")
	ErrForbidden        = errors.New("forbidden")
	// ErrCellBusy means another write to the same cell is still in flight.
	ErrCellBusy = errors.New("cell_busy")
)
