package surcharge

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fauter/cochera-admin/internal/config"
	"github.com/fauter/cochera-admin/internal/orgcontext"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/pkg/db"
	"github.com/fauter/cochera-admin/pkg/rls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&ruleRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return NewService(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Config: config.NewStaticDashboardConfig(config.DefaultDashboardConfig()),
	})
}

func actingAs(r role.Role) context.Context {
	ctx := orgcontext.WithPrincipal(context.Background(), role.Principal{ID: "owner-1", Role: r})
	return rls.WithContext(ctx, rls.Claims{Subject: "owner-1", Role: "authenticated"})
}

func TestJuneOverrideJulyDefault(t *testing.T) {
	svc := newTestService(t)
	ctx := actingAs(role.Owner)

	_, err := svc.SaveDefault(ctx, "g1", Rule{Steps: []Step{{Day: 10, Percentage: 5}, {Day: 20, Percentage: 10}}})
	require.NoError(t, err)
	_, err = svc.SaveOverride(ctx, "g1", time.June, Rule{Steps: []Step{{Day: 5, Percentage: 8}}})
	require.NoError(t, err)

	june, err := svc.EffectiveFor(ctx, "g1", time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []Step{{Day: 5, Percentage: 8}}, june.Steps)

	july, err := svc.EffectiveFor(ctx, "g1", time.Date(2026, time.July, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []Step{{Day: 10, Percentage: 5}, {Day: 20, Percentage: 10}}, july.Steps)
}

func TestSaveKeepsOneRowPerMonth(t *testing.T) {
	svc := newTestService(t)
	ctx := actingAs(role.Owner)

	_, err := svc.SaveOverride(ctx, "g1", time.March, Rule{Steps: []Step{{Day: 5, Percentage: 8}}})
	require.NoError(t, err)
	_, err = svc.SaveOverride(ctx, "g1", time.March, Rule{Steps: []Step{{Day: 7, Percentage: 9}}})
	require.NoError(t, err)

	var count int64
	require.NoError(t, svc.db.Model(&ruleRow{}).Where("garage_id = ? AND month = ?", "g1", 3).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	cfg, err := svc.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []Step{{Day: 7, Percentage: 9}}, cfg.Overrides[time.March].Steps)

	require.NoError(t, svc.DeleteOverride(ctx, "g1", time.March))
	cfg, err = svc.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, cfg.Overrides)
}

func TestSaveFlagsButStoresOutOfOrderSteps(t *testing.T) {
	svc := newTestService(t)
	ctx := actingAs(role.Owner)

	res, err := svc.SaveDefault(ctx, "g1", Rule{GraceDay: 10, Steps: []Step{{Day: 8, Percentage: 5}}})
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)

	cfg, err := svc.Get(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, cfg.DefaultStored)
	assert.Equal(t, 10, cfg.Default.GraceDay)
}

func TestDefaultComesFromConfigWhenNothingStored(t *testing.T) {
	svc := newTestService(t)
	cfg, err := svc.Get(actingAs(role.Owner), "g9")
	require.NoError(t, err)
	assert.False(t, cfg.DefaultStored)
	assert.Equal(t, 5, cfg.Default.GraceDay)
	assert.Len(t, cfg.Default.Steps, 2)
}

func TestSaveRejectsMalformedAndUnauthorized(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.SaveDefault(actingAs(role.Owner), "g1", Rule{Steps: []Step{{Day: 3, Percentage: 150}}})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = svc.SaveOverride(actingAs(role.Owner), "g1", time.Month(13), Rule{})
	assert.ErrorIs(t, err, ErrInvalidMonth)

	_, err = svc.SaveDefault(actingAs(role.Operator), "g1", Rule{})
	assert.ErrorIs(t, err, ErrForbidden)
}
