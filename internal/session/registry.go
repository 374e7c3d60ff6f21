package session

import (
	"context"
	"strings"
	"time"

	"github.com/fauter/cochera-admin/internal/clock"
	"github.com/fauter/cochera-admin/internal/config"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// BackendFactory builds the provider session of one browser client.
type BackendFactory func(clientID string, tokens TokenStorage) AuthBackend

type RegistryParams struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Config    *config.DashboardConfigHolder
	Ephemeral EphemeralStore
	Tokens    TokenStore
	Profiles  ProfileResolver
	Backends  BackendFactory
}

// Registry owns the live stores. Stores idle longer than the client TTL are
// evicted and disposed. Tabs of one client share the provider session.
type Registry struct {
	log       *zap.Logger
	clock     clock.Clock
	cfg       *config.DashboardConfigHolder
	ephemeral EphemeralStore
	tokens    TokenStore
	profiles  ProfileResolver
	factory   BackendFactory

	stores   *expirable.LRU[string, *Store]
	backends *expirable.LRU[string, AuthBackend]
	group    singleflight.Group
}

func NewRegistry(p RegistryParams) *Registry {
	cfg := p.Config.Get()
	r := &Registry{
		log:       p.Log.Named("session.registry"),
		clock:     p.Clock,
		cfg:       p.Config,
		ephemeral: p.Ephemeral,
		tokens:    p.Tokens,
		profiles:  p.Profiles,
		factory:   p.Backends,
	}
	r.stores = expirable.NewLRU[string, *Store](cfg.MaxLiveClients, func(_ string, st *Store) {
		go st.Dispose()
	}, cfg.ClientIdleTTL)
	r.backends = expirable.NewLRU[string, AuthBackend](cfg.MaxLiveClients, nil, cfg.ClientIdleTTL)
	return r
}

func storeKey(clientID, tabID string) string {
	return clientID + "/" + tabID
}

// Acquire returns the initialized store for a client tab, creating it on first
// use. Concurrent first requests share one initialization.
func (r *Registry) Acquire(ctx context.Context, clientID, tabID string) (*Store, error) {
	clientID = strings.TrimSpace(clientID)
	tabID = strings.TrimSpace(tabID)
	key := storeKey(clientID, tabID)

	if st, ok := r.stores.Get(key); ok {
		r.stores.Add(key, st)
		r.touchBackend(clientID)
		return st, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if st, ok := r.stores.Peek(key); ok {
			return st, nil
		}
		st := NewStore(StoreParams{
			Key:       key,
			Log:       r.log,
			Clock:     r.clock,
			Config:    r.cfg,
			Backend:   r.backend(clientID),
			Ephemeral: BindEphemeral(r.ephemeral, clientID, tabID, func() time.Duration { return r.cfg.Get().ShadowSessionTTL }),
			Tokens:    BindTokens(r.tokens, clientID),
			Profiles:  r.profiles,
		})
		if err := st.Initialize(ctx); err != nil {
			r.log.Warn("session initialization failed, continuing unauthenticated",
				zap.String("session_key", key),
				zap.Error(err),
			)
		}
		r.stores.Add(key, st)
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// Peek returns a live store without creating or refreshing it.
func (r *Registry) Peek(clientID, tabID string) (*Store, bool) {
	return r.stores.Peek(storeKey(clientID, tabID))
}

// Backend returns the provider session shared by the tabs of a client.
func (r *Registry) Backend(clientID string) AuthBackend {
	return r.backend(strings.TrimSpace(clientID))
}

func (r *Registry) backend(clientID string) AuthBackend {
	if r.factory == nil {
		return nil
	}
	if b, ok := r.backends.Get(clientID); ok {
		r.backends.Add(clientID, b)
		return b
	}
	b := r.factory(clientID, BindTokens(r.tokens, clientID))
	r.backends.Add(clientID, b)
	return b
}

func (r *Registry) touchBackend(clientID string) {
	if b, ok := r.backends.Get(clientID); ok {
		r.backends.Add(clientID, b)
	}
}

// PushPermissions hands an updated permission document to every live shadow
// session of the employee. It returns how many sessions were updated.
func (r *Registry) PushPermissions(ctx context.Context, employeeID string, doc role.PermissionDocument) int {
	updated := 0
	for _, st := range r.stores.Values() {
		ok, err := st.UpdatePermissions(ctx, employeeID, doc)
		if err != nil {
			r.log.Warn("failed to push permissions to live session",
				zap.String("employee_id", employeeID),
				zap.String("session_key", st.Key()),
				zap.Error(err),
			)
			continue
		}
		if ok {
			updated++
		}
	}
	if updated > 0 {
		r.log.Info("pushed permissions to live sessions",
			zap.String("employee_id", employeeID),
			zap.Int("sessions", updated),
		)
	}
	return updated
}

// EndShadowSessions signs out every live shadow session of the employee.
func (r *Registry) EndShadowSessions(ctx context.Context, employeeID string) int {
	ended := 0
	for _, st := range r.stores.Values() {
		ok, err := st.EndShadow(ctx, employeeID)
		if err != nil {
			r.log.Warn("failed to clear ended shadow session", zap.String("session_key", st.Key()), zap.Error(err))
		}
		if ok {
			ended++
		}
	}
	return ended
}

func (r *Registry) Len() int {
	return r.stores.Len()
}

// Close disposes every live store.
func (r *Registry) Close() {
	stores := r.stores.Values()
	r.stores.Purge()
	for _, st := range stores {
		st.Dispose()
	}
}
