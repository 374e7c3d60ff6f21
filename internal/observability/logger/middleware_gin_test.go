package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	obscontext "github.com/fauter/cochera-admin/internal/observability/context"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGinMiddlewareLogsResolvedIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observeGlobal(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "not_found", "garage_not_found" },
	}))
	r.GET("/api/garages/:garage_id", func(c *gin.Context) {
		ctx := obscontext.WithGarageID(c.Request.Context(), c.Param("garage_id"))
		c.Request = c.Request.WithContext(obscontext.WithActor(ctx, "standard", "owner-1"))
		_ = c.Error(errors.New("garage_not_found"))
		c.Status(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/garages/g7", nil)
	req.Header.Set("X-Request-Id", "req-abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-Id"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "req-abc", fields["request_id"])
	assert.Equal(t, "g7", fields["garage_id"])
	assert.Equal(t, "owner-1", fields["actor_id"])
	assert.Equal(t, "/api/garages/:garage_id", fields["route"])
	assert.Equal(t, "garage_not_found", fields["error_code"])
}

func TestGinMiddlewareReplacesUnusableRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observeGlobal(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/api/session", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, incoming := range []string{"", "has space", strings.Repeat("a", 65)} {
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Header.Set("X-Request-Id", incoming)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		got := rec.Header().Get("X-Request-Id")
		assert.NotEqual(t, incoming, got)
		assert.Len(t, got, 36)
	}
}

func TestGinMiddlewareQuietsPolledRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observeGlobal(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/api/session", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
}
