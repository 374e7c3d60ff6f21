package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fauter/cochera-admin/internal/config"
	"github.com/fauter/cochera-admin/internal/observability/metrics"
	"go.uber.org/zap"
)

const keyEmployeeLogin = "cochera:login:employee:%s"

var ErrTooManyAttempts = errors.New("rate_limited")

// EmployeeLoginLimiter throttles shadow logins per username.
type EmployeeLoginLimiter struct {
	limiter Limiter
	cfg     *config.DashboardConfigHolder
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewEmployeeLoginLimiter(limiter Limiter, cfg *config.DashboardConfigHolder, m *metrics.Metrics, log *zap.Logger) *EmployeeLoginLimiter {
	return &EmployeeLoginLimiter{
		limiter: limiter,
		cfg:     cfg,
		metrics: m,
		log:     log.Named("ratelimit.employee_login"),
	}
}

// Allow returns ErrTooManyAttempts with the wait time when username is over
// its budget. A limiter outage lets the attempt through; the login RPC still
// checks the secret.
func (l *EmployeeLoginLimiter) Allow(ctx context.Context, username string) (time.Duration, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return 0, nil
	}
	rule := l.cfg.Get().EmployeeLogin
	res, err := l.limiter.Allow(ctx, fmt.Sprintf(keyEmployeeLogin, username), rule.RatePerSecond, rule.Burst)
	if err != nil {
		l.log.Warn("employee login limiter unavailable", zap.Error(err))
		return 0, nil
	}
	if !res.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, "employee_login", "username")
		return res.RetryAfter, ErrTooManyAttempts
	}
	l.metrics.RecordRateLimitAllowed(ctx, "employee_login")
	return 0, nil
}
