package session

//go:generate mockgen -source=backend.go -destination=mock_backend_test.go -package=session

import "context"

type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// AuthEvent is pushed by the auth backend. Session is nil for events that do
// not carry a token.
type AuthEvent struct {
	Type    EventType
	Session *Standard
}

// AuthBackend is the hosted auth provider as seen by one browser client.
type AuthBackend interface {
	// GetSession returns the current standard session, or nil when there is none.
	GetSession(ctx context.Context) (*Standard, error)
	// SignOut revokes the given session at the provider.
	SignOut(ctx context.Context, current *Standard) error
	OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func())
}
