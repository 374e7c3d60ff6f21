package authprovider

import (
	"github.com/fauter/cochera-admin/internal/session"
	"go.uber.org/fx"
)

var Module = fx.Module("authprovider",
	fx.Provide(NewClient),
	fx.Provide(func(c *Client) session.BackendFactory { return c.BackendFactory() }),
)
