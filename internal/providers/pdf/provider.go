package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

var Module = fx.Module("pdf.provider",
	fx.Provide(New),
)

// Provider renders printable documents.
type Provider interface {
	GeneratePriceSheet(ctx context.Context, sheet PriceSheet) (io.Reader, error)
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}
