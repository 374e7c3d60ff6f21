package pdf

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePriceSheet(t *testing.T) {
	r, err := New().GeneratePriceSheet(context.Background(), PriceSheet{
		GarageName:  "Cochera Centro",
		PriceList:   "general",
		GeneratedAt: "17/10/2026",
		Columns:     []string{"Hora", "Estadía", "Mensual"},
		Rows: []PriceSheetRow{
			{Label: "Auto", Values: []string{"$ 1.500,00", "$ 9.000,00", "$ 80.000,00"}},
			{Label: "Moto", Values: []string{"$ 700,00"}},
		},
	})
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body[:4]))
}

func TestGeneratePriceSheetRejectsWideGrids(t *testing.T) {
	cols := make([]string, maxSheetColumns)
	_, err := New().GeneratePriceSheet(context.Background(), PriceSheet{Columns: cols})
	assert.ErrorIs(t, err, ErrTooManyColumns)
}

func TestColumnWidths(t *testing.T) {
	label, cell := columnWidths(3)
	assert.Equal(t, 3, cell)
	assert.Equal(t, 3, label)

	label, cell = columnWidths(10)
	assert.Equal(t, 1, cell)
	assert.Equal(t, 2, label)
}
