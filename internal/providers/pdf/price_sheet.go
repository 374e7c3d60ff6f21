package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// maxSheetColumns is the grid width of a maroto row.
const maxSheetColumns = 12

// PriceSheet is the printable pricing grid of one garage.
type PriceSheet struct {
	GarageName  string
	PriceList   string
	GeneratedAt string
	Columns     []string
	Rows        []PriceSheetRow
}

type PriceSheetRow struct {
	Label  string
	Values []string
}

var ErrTooManyColumns = errors.New("too_many_columns")

func (p *PDFProvider) GeneratePriceSheet(ctx context.Context, sheet PriceSheet) (io.Reader, error) {
	// One grid column for the row label, at least one per tariff.
	if len(sheet.Columns)+1 > maxSheetColumns {
		return nil, ErrTooManyColumns
	}

	cfg := config.NewBuilder().
		WithOrientation(orientation.Horizontal).
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(16,
		text.NewCol(8, sheet.GarageName, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Lista: "+sheet.PriceList, props.Text{
			Size:  11,
			Align: align.Right,
			Top:   3,
		}),
	)
	m.AddRow(8,
		text.NewCol(12, "Generado: "+sheet.GeneratedAt, props.Text{Size: 8, Align: align.Right}),
	)

	labelWidth, cellWidth := columnWidths(len(sheet.Columns))
	header := []core.Col{text.NewCol(labelWidth, "Vehículo", props.Text{Style: fontstyle.Bold, Size: 9})}
	for _, c := range sheet.Columns {
		header = append(header, text.NewCol(cellWidth, c, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}))
	}
	m.AddRow(10, header...)

	for _, row := range sheet.Rows {
		cols := []core.Col{text.NewCol(labelWidth, row.Label, props.Text{Size: 9})}
		for i := range sheet.Columns {
			value := "-"
			if i < len(row.Values) && row.Values[i] != "" {
				value = row.Values[i]
			}
			cols = append(cols, text.NewCol(cellWidth, value, props.Text{Size: 9, Align: align.Right}))
		}
		m.AddRow(8, cols...)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}

// columnWidths splits the 12-unit grid between the label and the tariffs.
func columnWidths(columns int) (label, cell int) {
	if columns == 0 {
		return maxSheetColumns, 0
	}
	cell = (maxSheetColumns - 2) / columns
	if cell < 1 {
		cell = 1
	}
	label = maxSheetColumns - cell*columns
	return label, cell
}
