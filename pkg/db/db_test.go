package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fauter/cochera-admin/internal/config"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDialectPicksDriver(t *testing.T) {
	tests := []struct {
		cfg  config.Config
		name string
	}{
		{config.Config{DBType: "postgres", DBHost: "db", DBPort: "5432"}, "postgres"},
		{config.Config{DBType: "postgres", DBURL: "postgres://u:p@db:6543/postgres"}, "postgres"},
		{config.Config{DBType: "mysql"}, "mysql"},
		{config.Config{DBType: "sqlite", DBName: "/tmp/cochera.db"}, "sqlite"},
	}
	for _, tt := range tests {
		d, err := Dialect(tt.cfg)
		require.NoError(t, err)
		assert.Equal(t, tt.name, d.Name())
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestPostgresDSNNamesTheApplication(t *testing.T) {
	dsn := postgresDSN(config.Config{
		AppName: "cochera-admin", DBHost: "db", DBUser: "u", DBPassword: "p",
		DBName: "postgres", DBPort: "5432", DBSSLMode: "require",
	})
	assert.Contains(t, dsn, "application_name=cochera-admin")
	assert.Contains(t, dsn, "sslmode=require")
	assert.Contains(t, dsn, "TimeZone=UTC")
}

func TestSQLStateFromEitherDriver(t *testing.T) {
	assert.Equal(t, "23505", SQLState(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})))
	assert.Equal(t, "42501", SQLState(&pq.Error{Code: "42501"}))
	assert.Empty(t, SQLState(errors.New("plain")))
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: garages.slug")))
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23503"}))

	assert.True(t, IsPermissionDenied(&pq.Error{Code: "42501"}))
	assert.False(t, IsPermissionDenied(errors.New("permission denied")))
	assert.True(t, IsNotFound(fmt.Errorf("load: %w", gorm.ErrRecordNotFound)))
}
