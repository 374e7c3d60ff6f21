package repository

import (
	"context"
	"testing"

	"github.com/fauter/cochera-admin/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID       int64 `gorm:"primaryKey;autoIncrement:false"`
	GarageID string
	Name     string
	Position int
}

func TestStore(t *testing.T) {
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	require.NoError(t, conn.AutoMigrate(&widget{}))
	repo := ProvideStore[widget](conn)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &widget{ID: 1, GarageID: "g1", Name: "b", Position: 2}))
	require.NoError(t, repo.Create(ctx, &widget{ID: 2, GarageID: "g1", Name: "a", Position: 1}))
	require.NoError(t, repo.Create(ctx, &widget{ID: 3, GarageID: "g2", Name: "c", Position: 1}))

	items, err := repo.Find(ctx, &widget{GarageID: "g1"}, OrderBy("position ASC"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Name)

	missing, err := repo.FindOne(ctx, &widget{GarageID: "g9"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := repo.Update(ctx, int64(1), map[string]any{"name": "z"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.Delete(ctx, &widget{})
	assert.Error(t, err, "an empty filter must not delete everything")

	n, err = repo.Delete(ctx, &widget{GarageID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := repo.Count(ctx, &widget{GarageID: "g2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
