package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fauter/cochera-admin/internal/session"
	"github.com/fauter/cochera-admin/internal/staff/domain"
	"github.com/fauter/cochera-admin/pkg/db"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type procedures struct{}

// ProvideProcedures returns the postgres bindings of the employee account
// functions.
func ProvideProcedures() domain.Procedures {
	return &procedures{}
}

func (p *procedures) CreateEmployeeAccount(ctx context.Context, conn *gorm.DB, args domain.CreateAccountArgs) (string, error) {
	perms, err := json.Marshal(args.Permissions.Normalize())
	if err != nil {
		return "", err
	}
	var id sql.NullString
	err = conn.WithContext(ctx).Raw(
		"SELECT create_employee_account(?, ?, ?, ?, ?, ?, CAST(? AS jsonb))",
		args.OwnerID, args.Username, args.Secret, args.FullName, string(args.Role), args.GarageID, string(perms),
	).Row().Scan(&id)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return "", domain.ErrUsernameTaken
		}
		if db.IsPermissionDenied(err) {
			return "", domain.ErrForbidden
		}
		return "", fmt.Errorf("create_employee_account: %w", err)
	}
	if !id.Valid || id.String == "" {
		return "", errors.New("create_employee_account returned no id")
	}
	return id.String, nil
}

// LoginEmployee checks the secret in the database and returns the shadow
// session record. A null result or an invalid-password error both mean bad
// credentials.
func (p *procedures) LoginEmployee(ctx context.Context, conn *gorm.DB, username, secret string) (*session.ShadowRecord, error) {
	var raw sql.NullString
	err := conn.WithContext(ctx).Raw(
		"SELECT login_employee(?, ?)::text", username, secret,
	).Row().Scan(&raw)
	if err != nil {
		switch code := db.SQLState(err); {
		case code == "28P01" || code == "28000":
			return nil, domain.ErrInvalidCredentials
		case code == "P0001" && strings.Contains(strings.ToLower(pgMessage(err)), "credential"):
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login_employee: %w", err)
	}
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil, domain.ErrInvalidCredentials
	}
	var rec session.ShadowRecord
	if err := json.Unmarshal([]byte(raw.String), &rec); err != nil {
		return nil, fmt.Errorf("decode login_employee result: %w", err)
	}
	return &rec, nil
}

func pgMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}
	return err.Error()
}
