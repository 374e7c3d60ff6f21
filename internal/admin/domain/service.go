package domain

import (
	"context"
	"errors"
	"time"

	auditdomain "github.com/fauter/cochera-admin/internal/audit/domain"
	"github.com/fauter/cochera-admin/internal/errtext"
	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	"gorm.io/gorm"
)

type Service interface {
	// OfferFactoryReset reports whether the reset action should be shown to the
	// signed-in user. It never grants anything.
	OfferFactoryReset(ctx context.Context, identities ...string) bool
	FactoryReset(ctx context.Context, req FactoryResetRequest) error
	Diagnostics(ctx context.Context) (*Report, error)
	ListAllGarages(ctx context.Context) ([]garagedomain.Garage, error)
	ListAuditLogs(ctx context.Context, req auditdomain.ListRequest) ([]auditdomain.AuditLog, error)
}

type FactoryResetRequest struct {
	// Identities are the id and email of the signed-in user.
	Identities []string `json:"-"`
	// Confirmation must repeat the master identifier.
	Confirmation string `json:"confirmation"`
}

type Report struct {
	CheckedAt    time.Time     `json:"checked_at"`
	Dialect      string        `json:"dialect"`
	LiveSessions int           `json:"live_sessions"`
	Probes       []ProbeResult `json:"probes"`
}

type ProbeResult struct {
	Name      string            `json:"name"`
	OK        bool              `json:"ok"`
	LatencyMS int64             `json:"latency_ms"`
	Error     *errtext.RawError `json:"error,omitempty"`
}

// Probe is a read-only query whose failure is reported verbatim.
type Probe struct {
	Name         string
	Query        string
	PostgresOnly bool
}

type Procedures interface {
	FactoryReset(ctx context.Context, tx *gorm.DB) error
	RunProbe(ctx context.Context, tx *gorm.DB, probe Probe) error
}

// LiveSessions counts the session stores held in memory.
type LiveSessions interface {
	Len() int
}

var (
	ErrForbidden       = errors.New("forbidden")
	ErrNotMaster       = errors.New("not_master")
	ErrNotConfirmed    = errors.New("not_confirmed")
	ErrResetNotAllowed = errors.New("reset_not_allowed")
)
