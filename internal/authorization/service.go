package authorization

import (
	"context"
	"errors"

	"github.com/fauter/cochera-admin/internal/role"
)

const (
	ObjectSystem      = "system"
	ObjectGarage      = "garage"
	ObjectDiagnostics = "diagnostics"
	ObjectAuditLog    = "audit_log"
)

const (
	ActionFactoryReset    = "system.factory_reset"
	ActionDiagnosticsView = "diagnostics.view"
	ActionGaragesListAll  = "garage.list_all"
	ActionAuditLogView    = "audit_log.view"
)

// GlobalDomain scopes administrative grants that are not tied to a garage.
const GlobalDomain = "global"

type Service interface {
	Authorize(ctx context.Context, p role.Principal, object string, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
