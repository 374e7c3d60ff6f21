package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	"github.com/fauter/cochera-admin/internal/observability/metrics"
	"github.com/fauter/cochera-admin/internal/orgcontext"
	"github.com/fauter/cochera-admin/internal/pricing/domain"
	"github.com/fauter/cochera-admin/internal/providers/pdf"
	"github.com/fauter/cochera-admin/internal/ratelimit"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/pkg/db"
	"github.com/fauter/cochera-admin/pkg/repository"
	"github.com/fauter/cochera-admin/pkg/rls"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cellLockTTL bounds how long a crashed writer can hold a cell.
const cellLockTTL = 10 * time.Second

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Prices  domain.PriceRepository
	Locker  ratelimit.CellLocker
	Garages garagedomain.Service
	PDF     pdf.Provider
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	prices       domain.PriceRepository
	vehicleTypes repository.Repository[domain.VehicleType]
	tariffs      repository.Repository[domain.Tariff]
	locker       ratelimit.CellLocker
	garages      garagedomain.Service
	pdf          pdf.Provider
	metrics      *metrics.Metrics
	now          func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("pricing.service"),
		genID:        p.GenID,
		prices:       p.Prices,
		vehicleTypes: repository.ProvideStore[domain.VehicleType](p.DB),
		tariffs:      repository.ProvideStore[domain.Tariff](p.DB),
		locker:       p.Locker,
		garages:      p.Garages,
		pdf:          p.PDF,
		metrics:      p.Metrics,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListVehicleTypes(ctx context.Context, garageID string) ([]domain.VehicleType, error) {
	garageID, err := garage(garageID)
	if err != nil {
		return nil, err
	}
	var out []domain.VehicleType
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		out, err = s.listVehicleTypes(ctx, tx, garageID)
		return err
	})
	return out, err
}

func (s *Service) CreateVehicleType(ctx context.Context, garageID string, req domain.VehicleTypeRequest) (*domain.VehicleType, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	garageID, err := garage(garageID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.now()
	vt := &domain.VehicleType{
		ID:        s.genID.Generate().Int64(),
		GarageID:  garageID,
		Name:      name,
		Code:      slug.MakeLang(name, "es"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if req.Position != nil {
			vt.Position = *req.Position
		} else {
			count, err := s.vehicleTypes.WithTrx(tx).Count(ctx, &domain.VehicleType{GarageID: garageID})
			if err != nil {
				return err
			}
			vt.Position = int(count)
		}
		return s.vehicleTypes.WithTrx(tx).Create(ctx, vt)
	})
	if db.IsDuplicateKeyErr(err) {
		return nil, domain.ErrDuplicateCode
	}
	if err != nil {
		return nil, err
	}
	return vt, nil
}

func (s *Service) UpdateVehicleType(ctx context.Context, garageID string, id int64, req domain.VehicleTypeRequest) (*domain.VehicleType, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	garageID, err := garage(garageID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	var out *domain.VehicleType
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		store := s.vehicleTypes.WithTrx(tx)
		vt, err := store.FindOne(ctx, &domain.VehicleType{ID: id, GarageID: garageID})
		if err != nil {
			return err
		}
		if vt == nil || id == 0 {
			return domain.ErrNotFound
		}
		vt.Name = name
		vt.Code = slug.MakeLang(name, "es")
		if req.Position != nil {
			vt.Position = *req.Position
		}
		vt.UpdatedAt = s.now()
		if _, err := store.Update(ctx, vt.ID, map[string]any{
			"name":       vt.Name,
			"code":       vt.Code,
			"position":   vt.Position,
			"updated_at": vt.UpdatedAt,
		}); err != nil {
			return err
		}
		out = vt
		return nil
	})
	if db.IsDuplicateKeyErr(err) {
		return nil, domain.ErrDuplicateCode
	}
	return out, err
}

// DeleteVehicleType removes the vehicle type and its row of prices.
func (s *Service) DeleteVehicleType(ctx context.Context, garageID string, id int64) error {
	if err := authorize(ctx); err != nil {
		return err
	}
	garageID, err := garage(garageID)
	if err != nil {
		return err
	}
	if id == 0 {
		return domain.ErrInvalidID
	}
	return rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.prices.DeleteByVehicleType(ctx, tx, garageID, id); err != nil {
			return err
		}
		n, err := s.vehicleTypes.WithTrx(tx).Delete(ctx, &domain.VehicleType{ID: id, GarageID: garageID})
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (s *Service) ListTariffs(ctx context.Context, garageID string) ([]domain.Tariff, error) {
	garageID, err := garage(garageID)
	if err != nil {
		return nil, err
	}
	var out []domain.Tariff
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		out, err = s.listTariffs(ctx, tx, garageID)
		return err
	})
	return out, err
}

func (s *Service) CreateTariff(ctx context.Context, garageID string, req domain.TariffRequest) (*domain.Tariff, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	garageID, err := garage(garageID)
	if err != nil {
		return nil, err
	}
	if err := validateTariff(req); err != nil {
		return nil, err
	}

	now := s.now()
	t := &domain.Tariff{
		ID:               s.genID.Generate().Int64(),
		GarageID:         garageID,
		Name:             strings.TrimSpace(req.Name),
		Kind:             req.Kind,
		Days:             req.Days,
		Hours:            req.Hours,
		Minutes:          req.Minutes,
		ToleranceMinutes: req.ToleranceMinutes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if req.Position != nil {
			t.Position = *req.Position
		} else {
			count, err := s.tariffs.WithTrx(tx).Count(ctx, &domain.Tariff{GarageID: garageID})
			if err != nil {
				return err
			}
			t.Position = int(count)
		}
		return s.tariffs.WithTrx(tx).Create(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) UpdateTariff(ctx context.Context, garageID string, id int64, req domain.TariffRequest) (*domain.Tariff, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	garageID, err := garage(garageID)
	if err != nil {
		return nil, err
	}
	if err := validateTariff(req); err != nil {
		return nil, err
	}

	var out *domain.Tariff
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		store := s.tariffs.WithTrx(tx)
		t, err := store.FindOne(ctx, &domain.Tariff{ID: id, GarageID: garageID})
		if err != nil {
			return err
		}
		if t == nil || id == 0 {
			return domain.ErrNotFound
		}
		t.Name = strings.TrimSpace(req.Name)
		t.Kind = req.Kind
		t.Days, t.Hours, t.Minutes = req.Days, req.Hours, req.Minutes
		t.ToleranceMinutes = req.ToleranceMinutes
		if req.Position != nil {
			t.Position = *req.Position
		}
		t.UpdatedAt = s.now()
		if _, err := store.Update(ctx, t.ID, map[string]any{
			"name":              t.Name,
			"kind":              t.Kind,
			"days":              t.Days,
			"hours":             t.Hours,
			"minutes":           t.Minutes,
			"tolerance_minutes": t.ToleranceMinutes,
			"position":          t.Position,
			"updated_at":        t.UpdatedAt,
		}); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// DeleteTariff removes the tariff and its column of prices.
func (s *Service) DeleteTariff(ctx context.Context, garageID string, id int64) error {
	if err := authorize(ctx); err != nil {
		return err
	}
	garageID, err := garage(garageID)
	if err != nil {
		return err
	}
	if id == 0 {
		return domain.ErrInvalidID
	}
	return rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.prices.DeleteByTariff(ctx, tx, garageID, id); err != nil {
			return err
		}
		n, err := s.tariffs.WithTrx(tx).Delete(ctx, &domain.Tariff{ID: id, GarageID: garageID})
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (s *Service) Matrix(ctx context.Context, garageID, priceList string) (*domain.Matrix, error) {
	garageID, err := garage(garageID)
	if err != nil {
		return nil, err
	}
	priceList, err = normalizePriceList(priceList)
	if err != nil {
		return nil, err
	}

	var (
		vehicleTypes []domain.VehicleType
		tariffs      []domain.Tariff
		prices       []domain.Price
	)
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		if vehicleTypes, err = s.listVehicleTypes(ctx, tx, garageID); err != nil {
			return err
		}
		if tariffs, err = s.listTariffs(ctx, tx, garageID); err != nil {
			return err
		}
		prices, err = s.prices.List(ctx, tx, garageID, priceList)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buildMatrix(garageID, priceList, vehicleTypes, tariffs, prices), nil
}

// UpsertPrice writes one cell. Concurrent writes to the same cell are refused
// with ErrCellBusy while other cells stay writable.
func (s *Service) UpsertPrice(ctx context.Context, req domain.UpsertPriceRequest) (*domain.Price, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	garageID, err := garage(req.GarageID)
	if err != nil {
		return nil, err
	}
	priceList, err := normalizePriceList(req.PriceList)
	if err != nil {
		return nil, err
	}
	if req.TariffID == 0 || req.VehicleTypeID == 0 {
		return nil, domain.ErrInvalidID
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		s.metrics.RecordPriceWrite(ctx, "invalid")
		return nil, err
	}

	key := domain.CellKey{
		GarageID:      garageID,
		TariffID:      req.TariffID,
		VehicleTypeID: req.VehicleTypeID,
		PriceList:     priceList,
	}
	token, ok, err := s.locker.TryLock(ctx, key.String(), cellLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.metrics.RecordPriceWrite(ctx, "busy")
		return nil, domain.ErrCellBusy
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key.String(), token); err != nil {
			s.log.Warn("release price cell lock", zap.Error(err))
		}
	}()

	var out *domain.Price
	err = rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := rls.WithGarage(tx, garageID); err != nil {
			return err
		}
		t, err := s.tariffs.WithTrx(tx).FindOne(ctx, &domain.Tariff{ID: key.TariffID, GarageID: garageID})
		if err != nil {
			return err
		}
		vt, err := s.vehicleTypes.WithTrx(tx).FindOne(ctx, &domain.VehicleType{ID: key.VehicleTypeID, GarageID: garageID})
		if err != nil {
			return err
		}
		if t == nil || vt == nil {
			return domain.ErrNotFound
		}

		now := s.now()
		if err := s.prices.Upsert(ctx, tx, &domain.Price{
			ID:            s.genID.Generate().Int64(),
			GarageID:      garageID,
			TariffID:      key.TariffID,
			VehicleTypeID: key.VehicleTypeID,
			PriceList:     priceList,
			AmountCents:   amount,
			CreatedAt:     now,
			UpdatedAt:     now,
		}); err != nil {
			return err
		}
		out, err = s.prices.Find(ctx, tx, key)
		return err
	})
	if err != nil {
		s.metrics.RecordPriceWrite(ctx, "error")
		return nil, err
	}
	s.metrics.RecordPriceWrite(ctx, "ok")
	return out, nil
}

func (s *Service) ExportPDF(ctx context.Context, garageID, priceList string) (io.Reader, error) {
	g, err := s.garages.Get(ctx, garageID)
	if err != nil {
		if errors.Is(err, garagedomain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	matrix, err := s.Matrix(ctx, g.ID, priceList)
	if err != nil {
		return nil, err
	}

	sheet := pdf.PriceSheet{
		GarageName:  g.Name,
		PriceList:   matrix.PriceList,
		GeneratedAt: s.now().Format("02/01/2006"),
	}
	for _, t := range matrix.Tariffs {
		sheet.Columns = append(sheet.Columns, t.Name)
	}
	for _, row := range matrix.Rows {
		line := pdf.PriceSheetRow{Label: row.VehicleType.Name}
		for _, cell := range row.Cells {
			value := ""
			if cell.Display != nil {
				value = *cell.Display
			}
			line.Values = append(line.Values, value)
		}
		sheet.Rows = append(sheet.Rows, line)
	}
	return s.pdf.GeneratePriceSheet(ctx, sheet)
}

func (s *Service) listVehicleTypes(ctx context.Context, tx *gorm.DB, garageID string) ([]domain.VehicleType, error) {
	items, err := s.vehicleTypes.WithTrx(tx).Find(ctx, &domain.VehicleType{GarageID: garageID}, repository.OrderBy("position ASC, name ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.VehicleType, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) listTariffs(ctx context.Context, tx *gorm.DB, garageID string) ([]domain.Tariff, error) {
	items, err := s.tariffs.WithTrx(tx).Find(ctx, &domain.Tariff{GarageID: garageID}, repository.OrderBy("position ASC, name ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Tariff, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func buildMatrix(garageID, priceList string, vehicleTypes []domain.VehicleType, tariffs []domain.Tariff, prices []domain.Price) *domain.Matrix {
	type cell struct{ tariff, vehicle int64 }
	amounts := make(map[cell]int64, len(prices))
	for _, p := range prices {
		amounts[cell{p.TariffID, p.VehicleTypeID}] = p.AmountCents
	}

	m := &domain.Matrix{
		GarageID:  garageID,
		PriceList: priceList,
		Tariffs:   tariffs,
		Rows:      make([]domain.MatrixRow, 0, len(vehicleTypes)),
	}
	for _, vt := range vehicleTypes {
		row := domain.MatrixRow{VehicleType: vt, Cells: make([]domain.MatrixCell, 0, len(tariffs))}
		for _, t := range tariffs {
			c := domain.MatrixCell{TariffID: t.ID}
			if amount, ok := amounts[cell{t.ID, vt.ID}]; ok {
				display := domain.FormatAmount(amount)
				c.AmountCents = &amount
				c.Display = &display
			}
			row.Cells = append(row.Cells, c)
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

func validateTariff(req domain.TariffRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return domain.ErrInvalidName
	}
	if !req.Kind.Valid() {
		return domain.ErrInvalidKind
	}
	if req.Days < 0 || req.Hours < 0 || req.Minutes < 0 || req.ToleranceMinutes < 0 {
		return domain.ErrInvalidDuration
	}
	if req.Days == 0 && req.Hours == 0 && req.Minutes == 0 {
		return domain.ErrInvalidDuration
	}
	return nil
}

func normalizePriceList(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.DefaultPriceList, nil
	}
	list := slug.Make(raw)
	if list == "" || len(list) > 40 {
		return "", domain.ErrInvalidPriceList
	}
	return list, nil
}

func garage(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.ErrInvalidGarage
	}
	return id, nil
}

func authorize(ctx context.Context) error {
	p, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok || !p.Can(role.CapEditPricing) {
		return domain.ErrForbidden
	}
	return nil
}
