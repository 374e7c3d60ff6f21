package service_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	garagerepo "github.com/fauter/cochera-admin/internal/garage/repository"
	garagesvc "github.com/fauter/cochera-admin/internal/garage/service"
	"github.com/fauter/cochera-admin/internal/orgcontext"
	"github.com/fauter/cochera-admin/internal/pricing/domain"
	"github.com/fauter/cochera-admin/internal/pricing/repository"
	"github.com/fauter/cochera-admin/internal/pricing/service"
	"github.com/fauter/cochera-admin/internal/providers/pdf"
	"github.com/fauter/cochera-admin/internal/ratelimit"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/pkg/db"
	"github.com/fauter/cochera-admin/pkg/rls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const ownerID = "7d9c4c1e-2f4b-4f7e-8c2a-000000000001"

type fixture struct {
	svc     domain.Service
	conn    *gorm.DB
	locker  *ratelimit.LocalLocker
	garages garagedomain.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&garagedomain.Garage{}, &domain.VehicleType{}, &domain.Tariff{}, &domain.Price{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	garages := garagesvc.New(garagesvc.Params{DB: conn, Log: zap.NewNop(), Repo: garagerepo.Provide()})
	locker := ratelimit.NewLocalLocker()
	svc := service.New(service.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Prices:  repository.Provide(),
		Locker:  locker,
		Garages: garages,
		PDF:     pdf.New(),
	})
	return &fixture{svc: svc, conn: conn, locker: locker, garages: garages}
}

func as(p role.Principal) context.Context {
	ctx := orgcontext.WithPrincipal(context.Background(), p)
	return rls.WithContext(ctx, rls.Claims{Subject: p.ID, Role: "authenticated"})
}

func owner() context.Context {
	return as(role.Principal{ID: ownerID, Role: role.Owner})
}

// seedGrid creates a garage with two vehicle types and two tariffs.
func seedGrid(t *testing.T, f *fixture) (string, []domain.VehicleType, []domain.Tariff) {
	t.Helper()
	ctx := owner()
	g, err := f.garages.Create(ctx, garagedomain.CreateRequest{Name: "Cochera Centro"})
	require.NoError(t, err)

	var vts []domain.VehicleType
	for _, name := range []string{"Auto", "Moto"} {
		vt, err := f.svc.CreateVehicleType(ctx, g.ID, domain.VehicleTypeRequest{Name: name})
		require.NoError(t, err)
		vts = append(vts, *vt)
	}
	var tariffs []domain.Tariff
	for _, req := range []domain.TariffRequest{
		{Name: "Hora", Kind: domain.TariffHourly, Hours: 1, ToleranceMinutes: 10},
		{Name: "Estadía", Kind: domain.TariffStay, Hours: 12},
	} {
		tr, err := f.svc.CreateTariff(ctx, g.ID, req)
		require.NoError(t, err)
		tariffs = append(tariffs, *tr)
	}
	return g.ID, vts, tariffs
}

func TestVehicleTypePositionsAndDuplicates(t *testing.T) {
	f := setup(t)
	garageID, vts, _ := seedGrid(t, f)

	assert.Equal(t, 0, vts[0].Position)
	assert.Equal(t, 1, vts[1].Position)
	assert.Equal(t, "auto", vts[0].Code)

	_, err := f.svc.CreateVehicleType(owner(), garageID, domain.VehicleTypeRequest{Name: "AUTO"})
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)

	_, err = f.svc.CreateVehicleType(owner(), garageID, domain.VehicleTypeRequest{Name: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestTariffValidation(t *testing.T) {
	f := setup(t)
	garageID, _, _ := seedGrid(t, f)
	ctx := owner()

	cases := []struct {
		name string
		req  domain.TariffRequest
		want error
	}{
		{"blank name", domain.TariffRequest{Kind: domain.TariffHourly, Hours: 1}, domain.ErrInvalidName},
		{"unknown kind", domain.TariffRequest{Name: "X", Kind: "weekly", Hours: 1}, domain.ErrInvalidKind},
		{"zero length", domain.TariffRequest{Name: "X", Kind: domain.TariffHourly}, domain.ErrInvalidDuration},
		{"negative", domain.TariffRequest{Name: "X", Kind: domain.TariffHourly, Hours: 1, ToleranceMinutes: -5}, domain.ErrInvalidDuration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateTariff(ctx, garageID, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	tariffs, err := f.svc.ListTariffs(ctx, garageID)
	require.NoError(t, err)
	require.Len(t, tariffs, 2)
	assert.Equal(t, time.Hour, tariffs[0].Duration())
}

func TestUpsertPriceIsIdempotent(t *testing.T) {
	f := setup(t)
	garageID, vts, tariffs := seedGrid(t, f)
	ctx := owner()
	req := domain.UpsertPriceRequest{
		GarageID:      garageID,
		TariffID:      tariffs[0].ID,
		VehicleTypeID: vts[0].ID,
		Amount:        "1.500",
	}

	first, err := f.svc.UpsertPrice(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(150000), first.AmountCents)
	assert.Equal(t, domain.DefaultPriceList, first.PriceList)

	req.Amount = "1800,50"
	second, err := f.svc.UpsertPrice(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same cell keeps its row")
	assert.Equal(t, int64(180050), second.AmountCents)

	_, err = f.svc.UpsertPrice(ctx, req)
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.conn.Model(&domain.Price{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsertPriceSeparatesPriceLists(t *testing.T) {
	f := setup(t)
	garageID, vts, tariffs := seedGrid(t, f)
	ctx := owner()

	for _, list := range []string{"", "Socios"} {
		_, err := f.svc.UpsertPrice(ctx, domain.UpsertPriceRequest{
			GarageID: garageID, TariffID: tariffs[0].ID, VehicleTypeID: vts[0].ID, PriceList: list, Amount: "100",
		})
		require.NoError(t, err)
	}

	m, err := f.svc.Matrix(ctx, garageID, "socios")
	require.NoError(t, err)
	assert.Equal(t, "socios", m.PriceList)
	require.NotNil(t, m.Rows[0].Cells[0].AmountCents)
	assert.Nil(t, m.Rows[0].Cells[1].AmountCents)
	assert.Nil(t, m.Rows[1].Cells[0].AmountCents)
}

func TestUpsertPriceRejectsBadInput(t *testing.T) {
	f := setup(t)
	garageID, vts, tariffs := seedGrid(t, f)
	ctx := owner()

	_, err := f.svc.UpsertPrice(ctx, domain.UpsertPriceRequest{
		GarageID: garageID, TariffID: tariffs[0].ID, VehicleTypeID: vts[0].ID, Amount: "abc",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.UpsertPrice(ctx, domain.UpsertPriceRequest{
		GarageID: garageID, TariffID: 42, VehicleTypeID: vts[0].ID, Amount: "10",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	viewer := as(role.Principal{ID: "a1", Role: role.Auditor})
	_, err = f.svc.UpsertPrice(viewer, domain.UpsertPriceRequest{
		GarageID: garageID, TariffID: tariffs[0].ID, VehicleTypeID: vts[0].ID, Amount: "10",
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUpsertPriceRefusesBusyCell(t *testing.T) {
	f := setup(t)
	garageID, vts, tariffs := seedGrid(t, f)
	ctx := owner()

	busy := domain.CellKey{GarageID: garageID, TariffID: tariffs[0].ID, VehicleTypeID: vts[0].ID, PriceList: domain.DefaultPriceList}
	token, ok, err := f.locker.TryLock(context.Background(), busy.String(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.UpsertPrice(ctx, domain.UpsertPriceRequest{
		GarageID: garageID, TariffID: tariffs[0].ID, VehicleTypeID: vts[0].ID, Amount: "10",
	})
	assert.ErrorIs(t, err, domain.ErrCellBusy)

	_, err = f.svc.UpsertPrice(ctx, domain.UpsertPriceRequest{
		GarageID: garageID, TariffID: tariffs[1].ID, VehicleTypeID: vts[0].ID, Amount: "10",
	})
	assert.NoError(t, err, "other cells stay writable")

	require.NoError(t, f.locker.Release(context.Background(), busy.String(), token))
	_, err = f.svc.UpsertPrice(ctx, domain.UpsertPriceRequest{
		GarageID: garageID, TariffID: tariffs[0].ID, VehicleTypeID: vts[0].ID, Amount: "10",
	})
	assert.NoError(t, err)
}

func TestConcurrentWritesLeaveOneRow(t *testing.T) {
	f := setup(t)
	garageID, vts, tariffs := seedGrid(t, f)
	ctx := owner()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UpsertPrice(ctx, domain.UpsertPriceRequest{
				GarageID: garageID, TariffID: tariffs[0].ID, VehicleTypeID: vts[1].ID, Amount: "250",
			})
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrCellBusy)
			}
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, f.conn.Model(&domain.Price{}).Where("vehicle_type_id = ?", vts[1].ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDeleteTariffRemovesItsColumn(t *testing.T) {
	f := setup(t)
	garageID, vts, tariffs := seedGrid(t, f)
	ctx := owner()

	for _, tr := range tariffs {
		_, err := f.svc.UpsertPrice(ctx, domain.UpsertPriceRequest{
			GarageID: garageID, TariffID: tr.ID, VehicleTypeID: vts[0].ID, Amount: "100",
		})
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.DeleteTariff(ctx, garageID, tariffs[0].ID))
	assert.ErrorIs(t, f.svc.DeleteTariff(ctx, garageID, tariffs[0].ID), domain.ErrNotFound)

	m, err := f.svc.Matrix(ctx, garageID, "")
	require.NoError(t, err)
	require.Len(t, m.Tariffs, 1)
	require.Len(t, m.Rows[0].Cells, 1)
	assert.Equal(t, "$ 100,00", *m.Rows[0].Cells[0].Display)

	var count int64
	require.NoError(t, f.conn.Model(&domain.Price{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, f.svc.DeleteVehicleType(ctx, garageID, vts[0].ID))
	require.NoError(t, f.conn.Model(&domain.Price{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestUpdateVehicleType(t *testing.T) {
	f := setup(t)
	garageID, vts, _ := seedGrid(t, f)
	pos := 5

	vt, err := f.svc.UpdateVehicleType(owner(), garageID, vts[1].ID, domain.VehicleTypeRequest{Name: "Camioneta", Position: &pos})
	require.NoError(t, err)
	assert.Equal(t, "camioneta", vt.Code)

	items, err := f.svc.ListVehicleTypes(owner(), garageID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Camioneta", items[1].Name)
	assert.Equal(t, 5, items[1].Position)

	_, err = f.svc.UpdateVehicleType(owner(), garageID, vts[1].ID, domain.VehicleTypeRequest{Name: "Auto"})
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)
}

func TestExportPDF(t *testing.T) {
	f := setup(t)
	garageID, vts, tariffs := seedGrid(t, f)
	ctx := owner()

	_, err := f.svc.UpsertPrice(ctx, domain.UpsertPriceRequest{
		GarageID: garageID, TariffID: tariffs[0].ID, VehicleTypeID: vts[0].ID, Amount: "1500",
	})
	require.NoError(t, err)

	r, err := f.svc.ExportPDF(ctx, garageID, "")
	require.NoError(t, err)
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(raw[:4]))

	_, err = f.svc.ExportPDF(ctx, "7d9c4c1e-2f4b-4f7e-8c2a-0000000000ff", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
