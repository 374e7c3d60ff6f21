package profile

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// IsTransient reports whether err looks like infrastructure that may recover
// on its own: network failures and the Postgres codes emitted while a database
// is starting or out of resources. Authorization and not-found never qualify.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if code, ok := sqlState(err); ok {
		return transientSQLState(code)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"connection refused", "connection reset", "failed to fetch", "bad connection", "broken pipe"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func sqlState(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	return "", false
}

func transientSQLState(code string) bool {
	switch {
	case code == "57P03":
		return true
	case strings.HasPrefix(code, "08"):
		return true
	case strings.HasPrefix(code, "53"):
		return true
	}
	return false
}
