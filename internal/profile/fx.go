package profile

import "go.uber.org/fx"

var Module = fx.Module("profile.resolver",
	fx.Provide(NewResolver),
)
