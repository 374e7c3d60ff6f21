package rls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrNoClaims = errors.New("unauthenticated")

// Claims is the subset of JWT claims the row-level security policies read through
// current_setting('request.jwt.claims').
type Claims struct {
	Subject  string         `json:"sub"`
	Role     string         `json:"role"`
	Email    string         `json:"email,omitempty"`
	AppMeta  map[string]any `json:"app_metadata,omitempty"`
	UserMeta map[string]any `json:"user_metadata,omitempty"`
}

// WithClaims scopes the current transaction to the acting identity. Outside
// postgres it is a no-op.
func WithClaims(tx *gorm.DB, claims Claims) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("encode rls claims: %w", err)
	}
	if err := tx.Exec("SELECT set_config('request.jwt.claims', ?, true)", string(payload)).Error; err != nil {
		return err
	}
	return tx.Exec("SELECT set_config('request.jwt.claim.sub', ?, true)", claims.Subject).Error
}

// WithGarage pins the garage being operated on for policies that check it.
func WithGarage(tx *gorm.DB, garageID string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT set_config('app.current_garage_id', ?, true)", garageID).Error
}

type claimsKey struct{}

// WithContext attaches the acting identity's claims to ctx.
func WithContext(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func FromContext(ctx context.Context) (Claims, bool) {
	if ctx == nil {
		return Claims{}, false
	}
	claims, ok := ctx.Value(claimsKey{}).(Claims)
	return claims, ok && claims.Subject != ""
}

// Transaction runs fn in a transaction scoped to the claims carried by ctx.
// Requests without claims are rejected before touching the database.
func Transaction(ctx context.Context, conn *gorm.DB, fn func(tx *gorm.DB) error) error {
	claims, ok := FromContext(ctx)
	if !ok {
		return ErrNoClaims
	}
	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := WithClaims(tx, claims); err != nil {
			return err
		}
		return fn(tx)
	})
}
