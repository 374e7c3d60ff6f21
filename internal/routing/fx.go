package routing

import (
	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("routing",
	fx.Provide(func(s garagedomain.Service) GarageLister { return s }),
	fx.Provide(NewScopeGuard),
	fx.Provide(NewDispatcher),
)
