package staff

import (
	"github.com/fauter/cochera-admin/internal/session"
	"github.com/fauter/cochera-admin/internal/staff/domain"
	"github.com/fauter/cochera-admin/internal/staff/repository"
	"github.com/fauter/cochera-admin/internal/staff/service"
	"go.uber.org/fx"
)

var Module = fx.Module("staff.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideProcedures),
	fx.Provide(func(r *session.Registry) domain.SessionNotifier { return r }),
	fx.Provide(service.New),
)
