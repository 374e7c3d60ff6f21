package domain

import (
	"context"
	"errors"

	"github.com/fauter/cochera-admin/internal/role"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Garage, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Garage, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Garage, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Garage, error)
	ListByIDs(ctx context.Context, ids []string) ([]Garage, error)
	ListAll(ctx context.Context) ([]Garage, error)
	// ListAccessible returns the garages p may operate: everything for a
	// superadmin, owned garages for an owner, the allow-list for shadow roles.
	ListAccessible(ctx context.Context, p role.Principal) ([]Garage, error)
	Owns(ctx context.Context, ownerID string, ids []string) (bool, error)
}

type CreateRequest struct {
	Name    string  `json:"name"`
	Address *string `json:"address"`
	TaxID   *string `json:"tax_id"`
}

type UpdateRequest struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	TaxID   *string `json:"tax_id"`
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidTaxID = errors.New("invalid_tax_id")
	ErrInvalidID    = errors.New("invalid_id")
	ErrInvalidOwner = errors.New("invalid_owner")
	ErrNotFound     = errors.New("not_found")
	ErrForbidden    = errors.New("forbidden")
)
