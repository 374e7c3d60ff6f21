package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/fauter/cochera-admin/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestDescribeSQL(t *testing.T) {
	tests := []struct {
		sql   string
		verb  string
		table string
	}{
		{`SELECT * FROM "garages" WHERE owner_id = $1`, "SELECT", "garages"},
		{`INSERT INTO "prices" ("id","garage_id") VALUES ($1,$2)`, "INSERT", "prices"},
		{`UPDATE "building_levels" SET "capacity"=$1`, "UPDATE", "building_levels"},
		{`DELETE FROM dashboard_tokens WHERE updated_at < $1`, "DELETE", "dashboard_tokens"},
		{`SELECT set_config('request.jwt.claims', $1, true)`, "SELECT", ""},
		{`SET LOCAL role authenticated`, "SET", ""},
		{`WITH x AS (SELECT 1) SELECT * FROM x`, "SELECT", ""},
		{``, "UNKNOWN", ""},
	}
	for _, tt := range tests {
		verb, table := describeSQL(tt.sql)
		assert.Equal(t, tt.verb, verb, tt.sql)
		if tt.table != "" {
			assert.Equal(t, tt.table, table, tt.sql)
		}
	}
}

func TestQueryLoggerSkipsMissingRows(t *testing.T) {
	logs := observeGlobal(t)
	l := NewQueryLogger(QueryLogConfig{Level: gormlogger.Warn})

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `SELECT * FROM "profiles"`, 0
	}, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `SELECT * FROM "profiles"`, 0
	}, errors.New("boom"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "profiles", entry.ContextMap()["table"])
}

func TestQueryLoggerFlagsSlowStatementsWithRequestFields(t *testing.T) {
	logs := observeGlobal(t)
	l := NewQueryLogger(QueryLogConfig{Level: gormlogger.Warn, SlowThreshold: time.Millisecond})

	ctx := obscontext.WithGarageID(obscontext.WithRequestID(context.Background(), "req-9"), "g1")
	l.Trace(ctx, time.Now().Add(-time.Second), func() (string, int64) {
		return `UPDATE "prices" SET "amount_cents"=$1`, 1
	}, nil)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, true, fields["slow"])
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "g1", fields["garage_id"])
	assert.Equal(t, "UPDATE", fields["operation"])
}

func TestQueryLoggerSilent(t *testing.T) {
	logs := observeGlobal(t)
	l := NewQueryLogger(QueryLogConfig{Level: ParseQueryLevel("off")})
	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, errors.New("boom"))
	l.Error(context.Background(), "boom")
	assert.Zero(t, logs.Len())
}

func TestWithContextLeavesOutAbsentFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("plain")
	ctx := obscontext.WithActor(context.Background(), "shadow", "emp-1")
	WithContext(ctx, base).Info("acting")

	require.Equal(t, 2, logs.Len())
	assert.Empty(t, logs.All()[0].Context)
	fields := logs.All()[1].ContextMap()
	assert.Equal(t, "shadow", fields["actor_kind"])
	assert.Equal(t, "emp-1", fields["actor_id"])
	assert.NotContains(t, fields, "garage_id")
}
