// Package scheduler runs the periodic maintenance of the dashboard: stale
// provider tokens are swept and the live session count is exported.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fauter/cochera-admin/internal/clock"
	obsmetrics "github.com/fauter/cochera-admin/internal/observability/metrics"
	"github.com/fauter/cochera-admin/internal/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobTokenSweep   = "token_sweep"
	JobLiveSessions = "live_sessions"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// LiveSessions counts the session stores held in memory.
type LiveSessions interface {
	Len() int
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Sessions LiveSessions `optional:"true"`
	Config   Config       `optional:"true"`
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	sessions LiveSessions
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		sessions: p.Sessions,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx, run)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx, run)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	schedMetrics.AddProcessed(name, run.processedCount)
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
		)
		return nil
	}
	return err
}

// RunOnce runs every job once. A failing job does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return errors.Join(
		s.runJob(ctx, JobTokenSweep, s.cfg.JobTimeout, s.sweepTokens),
		s.runJob(ctx, JobLiveSessions, s.cfg.JobTimeout, s.reportLiveSessions),
	)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.cfg.RunInterval):
		}
	}
}

// sweepTokens removes provider tokens of clients that have not been seen for
// the retention period.
func (s *Scheduler) sweepTokens(ctx context.Context, run *jobRun) error {
	cutoff := s.clock.Now().Add(-s.cfg.TokenRetention)
	n, err := session.SweepTokens(ctx, s.db, cutoff)
	if err != nil {
		return fmt.Errorf("sweep tokens: %w", err)
	}
	run.AddProcessed(n)
	return nil
}

func (s *Scheduler) reportLiveSessions(ctx context.Context, run *jobRun) error {
	if s.sessions == nil {
		return nil
	}
	n := s.sessions.Len()
	obsmetrics.Scheduler().SetLiveSessions(n)
	run.AddProcessed(int64(n))
	return nil
}
