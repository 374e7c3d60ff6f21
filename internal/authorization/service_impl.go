package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/fauter/cochera-admin/internal/audit/domain"
	"github.com/fauter/cochera-admin/internal/role"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

// Authorize enforces a global administrative action. The role grouping of the
// subject is rewritten on every call so a role change takes effect at once.
func (s *ServiceImpl) Authorize(ctx context.Context, p role.Principal, object string, action string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, err := resolveActor(p)
	if err != nil {
		s.auditDenied(ctx, actorType, p.ID, object, action)
		return err
	}

	if err := s.ensureGrouping(subject, roleName, GlobalDomain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, GlobalDomain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, actorType, p.ID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, p.ID, object, action)
	}
	return nil
}

func resolveActor(p role.Principal) (string, string, auditdomain.ActorType, error) {
	id := strings.TrimSpace(p.ID)
	if p.Shadow {
		if id == "" || !p.Role.Valid() {
			return "", "", auditdomain.ActorTypeEmployee, ErrInvalidActor
		}
		return "employee:" + id, roleSubject(p.Role), auditdomain.ActorTypeEmployee, nil
	}
	if id == "" || !p.Role.Valid() {
		return "", "", auditdomain.ActorTypeUser, ErrInvalidActor
	}
	return "user:" + id, roleSubject(p.Role), auditdomain.ActorTypeUser, nil
}

func roleSubject(r role.Role) string {
	return fmt.Sprintf("role:%s", strings.ToLower(r.String()))
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType auditdomain.ActorType, actorID string, object string, action string) {
	s.audit(ctx, "authorization.denied", actorType, actorID, object, action)
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType auditdomain.ActorType, actorID string, object string, action string) {
	s.audit(ctx, "authorization.granted", actorType, actorID, object, action)
}

func (s *ServiceImpl) audit(ctx context.Context, event string, actorType auditdomain.ActorType, actorID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     event,
		TargetType: "authorization",
		TargetID:   object,
		Metadata: map[string]any{
			"object": object,
			"action": action,
		},
	})
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionFactoryReset, ActionDiagnosticsView:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:superadmin", ObjectSystem, ActionFactoryReset},
		{"role:superadmin", ObjectDiagnostics, ActionDiagnosticsView},
		{"role:superadmin", ObjectGarage, ActionGaragesListAll},
		{"role:superadmin", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
