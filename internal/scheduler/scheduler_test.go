package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fauter/cochera-admin/internal/clock"
	obsmetrics "github.com/fauter/cochera-admin/internal/observability/metrics"
	"github.com/fauter/cochera-admin/internal/session"
	"github.com/fauter/cochera-admin/pkg/db"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedSessions int

func (f fixedSessions) Len() int { return int(f) }

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "cochera-admin",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}
	err = s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context, _ *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "cochera-admin",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "cochera_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "cochera-admin",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "cochera_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunJobReturnsOtherErrors(t *testing.T) {
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	defer restore()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}

	boom := errors.New("boom")
	err = s.runJob(context.Background(), "failing_job", time.Second, func(context.Context, *jobRun) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunOnceSweepsStaleTokens(t *testing.T) {
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	defer restore()

	conn, err := db.NewTest()
	require.NoError(t, err)
	sealer, err := session.NewSealer("secret")
	require.NoError(t, err)
	tokens := session.NewDBTokenStore(conn, sealer, zap.NewNop())
	require.NoError(t, tokens.AutoMigrate())

	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []string{"stale", "fresh"} {
		require.NoError(t, tokens.Save(ctx, id, session.TokenRecord{
			UserID:       "u-" + id,
			AccessToken:  "at",
			RefreshToken: "rt",
			ExpiresAt:    now.Add(time.Hour),
		}))
	}
	require.NoError(t, conn.Exec(
		`UPDATE dashboard_tokens SET updated_at = ? WHERE client_id = ?`,
		now.Add(-60*24*time.Hour), "stale",
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := New(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(now),
		GenID:    node,
		Sessions: fixedSessions(2),
	})
	require.NoError(t, err)
	require.NoError(t, s.RunOnce(ctx))

	rec, err := tokens.Load(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, rec)
	rec, err = tokens.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetSchedulerMetricsForTest()
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
