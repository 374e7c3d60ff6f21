package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/fauter/cochera-admin/internal/audit/domain"
	"github.com/fauter/cochera-admin/internal/audit/masking"
	obsctx "github.com/fauter/cochera-admin/internal/observability/context"
	"github.com/fauter/cochera-admin/internal/orgcontext"
	"github.com/fauter/cochera-admin/internal/role"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// AuditLog stores an entry outside of any caller transaction so a rolled back
// action still leaves its trace. String metadata is masked.
func (s *Service) AuditLog(ctx context.Context, e auditdomain.Entry) error {
	action := strings.TrimSpace(e.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(e.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}
	actorType, actorID := resolveActor(ctx, e.ActorType, e.ActorID)

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(actorType),
		ActorID:    normalizePointer(actorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   normalizePointer(e.TargetID),
		GarageID:   normalizePointer(obsctx.GarageIDFromContext(ctx)),
		RequestID:  normalizePointer(obsctx.RequestIDFromContext(ctx)),
		Metadata:   datatypes.JSONMap(masking.MaskJSON(e.Metadata)),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Insert(context.WithoutCancel(ctx), s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

// List returns the newest entries first. Only global administrators read the
// trail.
func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) ([]auditdomain.AuditLog, error) {
	p, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok || p.Shadow || !p.Can(role.CapGlobalAdmin) {
		return nil, auditdomain.ErrForbidden
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action: req.Action,
		Before: req.Before,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []auditdomain.AuditLog{}
	}
	return items, nil
}

func resolveActor(ctx context.Context, actorType auditdomain.ActorType, actorID string) (auditdomain.ActorType, string) {
	if actorType != "" {
		return actorType, actorID
	}
	switch kind, id := obsctx.ActorFromContext(ctx); kind {
	case "standard":
		return auditdomain.ActorTypeUser, id
	case "shadow":
		return auditdomain.ActorTypeEmployee, id
	}
	return auditdomain.ActorTypeSystem, ""
}

func normalizePointer(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
