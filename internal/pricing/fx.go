package pricing

import (
	"github.com/fauter/cochera-admin/internal/pricing/repository"
	"github.com/fauter/cochera-admin/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
