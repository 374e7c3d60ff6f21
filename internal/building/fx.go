package building

import "go.uber.org/fx"

var Module = fx.Module("building.service",
	fx.Provide(NewService),
)
