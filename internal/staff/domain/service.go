package domain

import (
	"context"
	"errors"

	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/internal/session"
)

type Service interface {
	List(ctx context.Context, ownerID string) ([]Employee, error)
	Get(ctx context.Context, id string) (*Employee, error)
	Create(ctx context.Context, req CreateRequest) (*Employee, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Employee, error)
	Delete(ctx context.Context, id string) error
	Login(ctx context.Context, username, secret string) (*session.ShadowRecord, error)
}

type CreateRequest struct {
	Username    string                   `json:"username"`
	Secret      string                   `json:"secret"`
	FullName    string                   `json:"full_name"`
	Role        string                   `json:"role"`
	GarageID    *string                  `json:"garage_id"`
	Permissions *role.PermissionDocument `json:"permissions"`
}

// UpdateRequest changes only the fields that are set. An empty GarageID
// removes the garage binding.
type UpdateRequest struct {
	FullName    *string                  `json:"full_name"`
	Role        *string                  `json:"role"`
	GarageID    *string                  `json:"garage_id"`
	Permissions *role.PermissionDocument `json:"permissions"`
}

var (
	ErrInvalidUsername    = errors.New("invalid_username")
	ErrInvalidSecret      = errors.New("invalid_secret")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrUnknownSection     = errors.New("unknown_section")
	ErrForeignGarage      = errors.New("foreign_garage")
	ErrUsernameTaken      = errors.New("username_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrRateLimited        = errors.New("rate_limited")
	ErrNotFound           = errors.New("not_found")
	ErrForbidden          = errors.New("forbidden")
)
