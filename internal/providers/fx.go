package providers

import (
	"github.com/fauter/cochera-admin/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	pdf.Module,
)
