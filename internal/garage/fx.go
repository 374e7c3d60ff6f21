package garage

import (
	"github.com/fauter/cochera-admin/internal/garage/repository"
	"github.com/fauter/cochera-admin/internal/garage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("garage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
