package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/internal/staff/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func mockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	return conn, mock
}

const loginSQL = "SELECT login_employee($1, $2)::text"

func TestLoginEmployeeDecodesRecord(t *testing.T) {
	conn, mock := mockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(loginSQL)).
		WithArgs("ana", "secreto").
		WillReturnRows(sqlmock.NewRows([]string{"login_employee"}).AddRow(
			`{"id":"e1","full_name":"Ana","role":"administrative","owner_id":"o1","permissions":{"allowed_garages":["g1"],"sections":["precios"]}}`,
		))

	rec, err := ProvideProcedures().LoginEmployee(context.Background(), conn, "ana", "secreto")
	if err != nil {
		t.Fatalf("LoginEmployee: %v", err)
	}
	if rec.ID != "e1" || rec.Role != "administrative" || rec.OwnerID != "o1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Permissions == nil || rec.Permissions.AllowedGarages[0] != "g1" {
		t.Fatalf("permissions not decoded: %+v", rec.Permissions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoginEmployeeBadCredentials(t *testing.T) {
	cases := map[string]func(sqlmock.Sqlmock){
		"null result": func(m sqlmock.Sqlmock) {
			m.ExpectQuery(regexp.QuoteMeta(loginSQL)).WillReturnRows(sqlmock.NewRows([]string{"login_employee"}).AddRow(nil))
		},
		"invalid password": func(m sqlmock.Sqlmock) {
			m.ExpectQuery(regexp.QuoteMeta(loginSQL)).WillReturnError(&pgconn.PgError{Code: "28P01", Message: "invalid password"})
		},
		"raised exception": func(m sqlmock.Sqlmock) {
			m.ExpectQuery(regexp.QuoteMeta(loginSQL)).WillReturnError(&pgconn.PgError{Code: "P0001", Message: "Invalid credentials"})
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			conn, mock := mockDB(t)
			setup(mock)
			_, err := ProvideProcedures().LoginEmployee(context.Background(), conn, "ana", "x")
			if !errors.Is(err, domain.ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestLoginEmployeeOutageIsNotBadCredentials(t *testing.T) {
	conn, mock := mockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(loginSQL)).WillReturnError(&pgconn.PgError{Code: "57P03", Message: "the database system is starting up"})

	_, err := ProvideProcedures().LoginEmployee(context.Background(), conn, "ana", "x")
	if err == nil || errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected a wrapped backend error, got %v", err)
	}
}

func TestCreateEmployeeAccount(t *testing.T) {
	conn, mock := mockDB(t)
	garage := "g1"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT create_employee_account($1, $2, $3, $4, $5, $6, CAST($7 AS jsonb))")).
		WithArgs("o1", "ana", "secreto", "Ana", "administrative", &garage, `{"allowed_garages":["g1"],"sections":["precios"]}`).
		WillReturnRows(sqlmock.NewRows([]string{"create_employee_account"}).AddRow("e1"))

	id, err := ProvideProcedures().CreateEmployeeAccount(context.Background(), conn, domain.CreateAccountArgs{
		OwnerID:     "o1",
		Username:    "ana",
		Secret:      "secreto",
		FullName:    "Ana",
		Role:        role.Administrative,
		GarageID:    &garage,
		Permissions: role.PermissionDocument{AllowedGarages: []string{"g1"}, Sections: []string{"precios"}},
	})
	if err != nil {
		t.Fatalf("CreateEmployeeAccount: %v", err)
	}
	if id != "e1" {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestCreateEmployeeAccountDuplicate(t *testing.T) {
	conn, mock := mockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT create_employee_account(")).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := ProvideProcedures().CreateEmployeeAccount(context.Background(), conn, domain.CreateAccountArgs{Username: "ana", Role: role.Operator})
	if !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}
