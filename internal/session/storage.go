package session

import (
	"context"
	"time"
)

// EphemeralStore keeps shadow session blobs for the lifetime of a browser tab.
type EphemeralStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, blob []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// EphemeralStorage is an EphemeralStore bound to one tab.
type EphemeralStorage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
	Clear(ctx context.Context) error
}

// TokenRecord is what the provider session persists between requests.
type TokenRecord struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenStore persists provider tokens per browser client.
type TokenStore interface {
	Load(ctx context.Context, clientID string) (*TokenRecord, error)
	Save(ctx context.Context, clientID string, rec TokenRecord) error
	Delete(ctx context.Context, clientID string) error
}

// TokenStorage is a TokenStore bound to one client. Load returns nil, nil when
// nothing is stored.
type TokenStorage interface {
	Load(ctx context.Context) (*TokenRecord, error)
	Save(ctx context.Context, rec TokenRecord) error
	Clear(ctx context.Context) error
}

type boundEphemeral struct {
	store EphemeralStore
	key   string
	ttl   func() time.Duration
}

// BindEphemeral binds store to one tab of one client. ttl is read on every save
// so config reloads apply to new shadow sessions.
func BindEphemeral(store EphemeralStore, clientID, tabID string, ttl func() time.Duration) EphemeralStorage {
	return &boundEphemeral{store: store, key: "shadow:" + storeKey(clientID, tabID), ttl: ttl}
}

func (b *boundEphemeral) Load(ctx context.Context) ([]byte, error) {
	return b.store.Get(ctx, b.key)
}

func (b *boundEphemeral) Save(ctx context.Context, blob []byte) error {
	var ttl time.Duration
	if b.ttl != nil {
		ttl = b.ttl()
	}
	return b.store.Set(ctx, b.key, blob, ttl)
}

func (b *boundEphemeral) Clear(ctx context.Context) error {
	return b.store.Delete(ctx, b.key)
}

type boundTokens struct {
	store    TokenStore
	clientID string
}

func BindTokens(store TokenStore, clientID string) TokenStorage {
	return &boundTokens{store: store, clientID: clientID}
}

func (b *boundTokens) Load(ctx context.Context) (*TokenRecord, error) {
	return b.store.Load(ctx, b.clientID)
}

func (b *boundTokens) Save(ctx context.Context, rec TokenRecord) error {
	return b.store.Save(ctx, b.clientID, rec)
}

func (b *boundTokens) Clear(ctx context.Context) error {
	return b.store.Delete(ctx, b.clientID)
}
