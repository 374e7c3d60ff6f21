package domain

import (
	"context"

	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/internal/session"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Employee, error)
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID string) ([]Employee, error)
	Update(ctx context.Context, db *gorm.DB, e *Employee) error
	Delete(ctx context.Context, db *gorm.DB, ownerID, id string) (int64, error)
}

// CreateAccountArgs are the inputs of create_employee_account.
type CreateAccountArgs struct {
	OwnerID     string
	Username    string
	Secret      string
	FullName    string
	Role        role.Role
	GarageID    *string
	Permissions role.PermissionDocument
}

// Procedures wraps the database functions that own employee secrets.
type Procedures interface {
	CreateEmployeeAccount(ctx context.Context, db *gorm.DB, args CreateAccountArgs) (string, error)
	LoginEmployee(ctx context.Context, db *gorm.DB, username, secret string) (*session.ShadowRecord, error)
}

// SessionNotifier reaches the live dashboard sessions of an employee.
type SessionNotifier interface {
	PushPermissions(ctx context.Context, employeeID string, doc role.PermissionDocument) int
	EndShadowSessions(ctx context.Context, employeeID string) int
}
