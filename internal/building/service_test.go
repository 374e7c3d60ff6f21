package building

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
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
	if err := conn.AutoMigrate(&Level{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return NewService(Params{DB: conn, Log: zap.NewNop(), GenID: node})
}

func ownerCtx() context.Context {
	ctx := orgcontext.WithPrincipal(context.Background(), role.Principal{ID: "owner-1", Role: role.Owner})
	return rls.WithContext(ctx, rls.Claims{Subject: "owner-1", Role: "authenticated"})
}

func TestApplyStructurePreservesExistingLevels(t *testing.T) {
	svc := newTestService(t)
	ctx := ownerCtx()

	view, err := svc.ApplyStructure(ctx, "g1", Structure{FloorCount: 2})
	require.NoError(t, err)
	require.Len(t, view.Levels, 2)
	first, second := view.Levels[0], view.Levels[1]

	_, err = svc.UpdateCapacity(ctx, "g1", first.ID, 10)
	require.NoError(t, err)
	_, err = svc.UpdateCapacity(ctx, "g1", second.ID, 12)
	require.NoError(t, err)

	view, err = svc.ApplyStructure(ctx, "g1", Structure{FloorCount: 3})
	require.NoError(t, err)
	require.Len(t, view.Levels, 3)
	assert.Equal(t, first.ID, view.Levels[0].ID)
	assert.Equal(t, 10, view.Levels[0].Capacity)
	assert.Equal(t, second.ID, view.Levels[1].ID)
	assert.Equal(t, 12, view.Levels[1].Capacity)
	assert.Equal(t, 0, view.Levels[2].Capacity)
	assert.Equal(t, "Piso 3", view.Levels[2].Name)
	assert.Equal(t, 22, view.TotalCapacity)
	assert.Equal(t, Structure{FloorCount: 3}, view.Structure)
}

func TestApplyStructureShrinks(t *testing.T) {
	svc := newTestService(t)
	ctx := ownerCtx()

	_, err := svc.ApplyStructure(ctx, "g1", Structure{BasementCount: 1, HasGroundFloor: true, FloorCount: 2})
	require.NoError(t, err)
	view, err := svc.ApplyStructure(ctx, "g1", Structure{HasGroundFloor: true})
	require.NoError(t, err)
	require.Len(t, view.Levels, 1)
	assert.Equal(t, "Planta Baja", view.Levels[0].Name)

	other, err := svc.Get(ctx, "g2")
	require.NoError(t, err)
	assert.Empty(t, other.Levels, "levels are scoped by garage")
}

func TestUpdateCapacityValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := ownerCtx()

	view, err := svc.ApplyStructure(ctx, "g1", Structure{FloorCount: 1})
	require.NoError(t, err)

	_, err = svc.UpdateCapacity(ctx, "g1", view.Levels[0].ID, -1)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
	_, err = svc.UpdateCapacity(ctx, "g2", view.Levels[0].ID, 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStructureEditsNeedCapability(t *testing.T) {
	svc := newTestService(t)
	p := role.Principal{ID: "e1", Role: role.Administrative, Shadow: true, OwnerID: "owner-1"}
	ctx := rls.WithContext(orgcontext.WithPrincipal(context.Background(), p), rls.Claims{Subject: "e1", Role: "anon"})

	_, err := svc.ApplyStructure(ctx, "g1", Structure{FloorCount: 1})
	assert.ErrorIs(t, err, ErrForbidden)
}
