package surcharge

import "go.uber.org/fx"

var Module = fx.Module("surcharge.service",
	fx.Provide(NewService),
)
