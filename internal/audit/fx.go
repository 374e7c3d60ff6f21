package audit

import (
	"github.com/fauter/cochera-admin/internal/audit/repository"
	"github.com/fauter/cochera-admin/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
