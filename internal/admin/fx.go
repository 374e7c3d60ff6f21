package admin

import (
	"github.com/fauter/cochera-admin/internal/admin/domain"
	"github.com/fauter/cochera-admin/internal/admin/repository"
	"github.com/fauter/cochera-admin/internal/admin/service"
	"github.com/fauter/cochera-admin/internal/session"
	"go.uber.org/fx"
)

var Module = fx.Module("admin.service",
	fx.Provide(repository.ProvideProcedures),
	fx.Provide(func(r *session.Registry) domain.LiveSessions { return r }),
	fx.Provide(service.New),
)
