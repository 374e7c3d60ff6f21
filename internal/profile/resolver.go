package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fauter/cochera-admin/internal/clock"
	"github.com/fauter/cochera-admin/internal/config"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/pkg/rls"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type row struct {
	ID        string    `gorm:"column:id;primaryKey;type:text"`
	Email     string    `gorm:"column:email;type:text"`
	FullName  string    `gorm:"column:full_name;type:text"`
	Role      string    `gorm:"column:role;type:text;not null;default:'owner'"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (row) TableName() string { return "profiles" }

// Request identifies the standard identity being resolved.
type Request struct {
	Claims      rls.Claims
	Provisional Profile
}

type Options struct {
	// RetryTransient enables the bounded retry used right after a sign-in,
	// when the database may still be waking up.
	RetryTransient bool
}

type Resolver struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   *config.DashboardConfigHolder
	group singleflight.Group
	fetch func(ctx context.Context, claims rls.Claims) (Profile, error)
	sleep func(ctx context.Context, d time.Duration) error
}

func NewResolver(db *gorm.DB, log *zap.Logger, cfg *config.DashboardConfigHolder, clk clock.Clock) *Resolver {
	r := &Resolver{
		db:  db,
		log: log.Named("profile.resolver"),
		cfg: cfg,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clk.After(d):
				return nil
			}
		},
	}
	r.fetch = r.Fetch
	return r
}

// Resolve returns the authoritative profile when the row can be read and the
// provisional one otherwise. It never fails. Callers for the same user share
// one fetch, which outlives any single caller's cancellation.
func (r *Resolver) Resolve(ctx context.Context, req Request, opts Options) Profile {
	key := req.Claims.Subject
	if opts.RetryTransient {
		key += "/retry"
	}
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.resolve(shared, req, opts), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Profile)
	case <-ctx.Done():
		return req.Provisional
	}
}

func (r *Resolver) resolve(ctx context.Context, req Request, opts Options) Profile {
	attempts := 1
	var delays []time.Duration
	if opts.RetryTransient {
		cfg := r.cfg.Get()
		attempts = cfg.ProfileRetryAttempts
		delays = cfg.ProfileRetryDelays
	}
	if attempts < 1 {
		attempts = 1
	}

	log := r.log.With(zap.String("user_id", req.Claims.Subject))
	for attempt := 1; ; attempt++ {
		p, err := r.fetch(ctx, req.Claims)
		if err == nil {
			return merge(req.Provisional, p, log)
		}
		if errors.Is(err, ErrNotFound) {
			log.Debug("profile row missing, keeping provisional profile")
			return req.Provisional
		}
		if !opts.RetryTransient || !IsTransient(err) || attempt >= attempts {
			log.Warn("profile fetch failed, keeping provisional profile",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return req.Provisional
		}

		delay := time.Second
		if len(delays) > 0 {
			idx := attempt - 1
			if idx >= len(delays) {
				idx = len(delays) - 1
			}
			delay = delays[idx]
		}
		log.Info("transient profile fetch failure, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return req.Provisional
		}
	}
}

// Fetch reads the profiles row as the given identity.
func (r *Resolver) Fetch(ctx context.Context, claims rls.Claims) (Profile, error) {
	if strings.TrimSpace(claims.Subject) == "" {
		return Profile{}, ErrInvalidID
	}
	var rec row
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithClaims(tx, claims); err != nil {
			return err
		}
		return tx.Where("id = ?", claims.Subject).First(&rec).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}

	p := Profile{
		ID:       rec.ID,
		Email:    rec.Email,
		FullName: strings.TrimSpace(rec.FullName),
		Source:   SourceAuthoritative,
	}
	if parsed, err := role.Parse(rec.Role); err == nil {
		p.Role = parsed
	}
	return p, nil
}

// Upsert writes the profile row created at sign-up. An existing row keeps its
// role.
func (r *Resolver) Upsert(ctx context.Context, claims rls.Claims, p Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidID
	}
	if !p.Role.Valid() {
		p.Role = DefaultRole
	}
	now := time.Now().UTC()
	rec := row{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  p.FullName,
		Role:      string(p.Role),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithClaims(tx, claims); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "full_name", "updated_at"}),
		}).Create(&rec).Error
	})
}

// merge fills gaps in the stored row from the provisional profile.
func merge(provisional, stored Profile, log *zap.Logger) Profile {
	if stored.FullName == "" {
		stored.FullName = provisional.FullName
	}
	if stored.Email == "" {
		stored.Email = provisional.Email
	}
	if stored.Role == "" {
		log.Warn("profile row has an unknown role, keeping provisional role")
		stored.Role = provisional.Role
	}
	return stored
}

// AutoMigrate creates the profiles table for sqlite setups and tests.
func (r *Resolver) AutoMigrate() error {
	return r.db.AutoMigrate(&row{})
}

// Models lists the tables owned by this package.
func Models() []any { return []any{&row{}} }
