package authprovider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fauter/cochera-admin/internal/session"
	"go.uber.org/zap"
)

// refreshSkew refreshes tokens slightly before they expire.
const refreshSkew = 30 * time.Second

// Session is the provider session of one browser client. It implements
// session.AuthBackend and pushes auth events to every store of the client.
type Session struct {
	client   *Client
	clientID string
	tokens   session.TokenStorage
	log      *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	listeners map[uint64]func(session.AuthEvent)
	next      uint64

	refreshMu sync.Mutex
}

func (c *Client) NewSession(clientID string, tokens session.TokenStorage) *Session {
	return &Session{
		client:    c,
		clientID:  clientID,
		tokens:    tokens,
		log:       c.log.Named("session").With(zap.String("client_id", clientID)),
		now:       time.Now,
		listeners: map[uint64]func(session.AuthEvent){},
	}
}

// BackendFactory adapts NewSession for the session registry.
func (c *Client) BackendFactory() session.BackendFactory {
	return func(clientID string, tokens session.TokenStorage) session.AuthBackend {
		return c.NewSession(clientID, tokens)
	}
}

func (s *Session) OnAuthStateChange(fn func(session.AuthEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) emit(ev session.AuthEvent) {
	s.mu.Lock()
	fns := make([]func(session.AuthEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// GetSession returns the stored session, refreshing it when it is about to
// expire. A refresh token the provider rejects ends the session.
func (s *Session) GetSession(ctx context.Context) (*session.Standard, error) {
	rec, err := s.tokens.Load(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	if s.now().Add(refreshSkew).Before(rec.ExpiresAt) {
		claims, err := s.client.ParseAccessToken(rec.AccessToken)
		if err == nil {
			return toStandard(&Token{
				AccessToken:  rec.AccessToken,
				RefreshToken: rec.RefreshToken,
				ExpiresAt:    rec.ExpiresAt,
				Claims:       claims,
			}), nil
		}
		s.log.Warn("stored access token rejected, refreshing", zap.Error(err))
	}
	return s.refresh(ctx)
}

func (s *Session) refresh(ctx context.Context) (*session.Standard, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another tab may have refreshed while we waited.
	rec, err := s.tokens.Load(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	if s.now().Add(refreshSkew).Before(rec.ExpiresAt) {
		if claims, err := s.client.ParseAccessToken(rec.AccessToken); err == nil {
			return toStandard(&Token{
				AccessToken:  rec.AccessToken,
				RefreshToken: rec.RefreshToken,
				ExpiresAt:    rec.ExpiresAt,
				Claims:       claims,
			}), nil
		}
	}

	tok, err := s.client.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return nil, err
		}
		s.log.Info("refresh token rejected, ending session", zap.Error(err))
		if clearErr := s.tokens.Clear(ctx); clearErr != nil {
			return nil, clearErr
		}
		return nil, nil
	}
	if err := s.save(ctx, tok); err != nil {
		return nil, err
	}
	std := toStandard(tok)
	s.emit(session.AuthEvent{Type: session.EventTokenRefreshed, Session: std})
	return std, nil
}

// SignInWithPassword signs in at the provider and announces the new session.
func (s *Session) SignInWithPassword(ctx context.Context, email, password string) (*session.Standard, error) {
	tok, err := s.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.Adopt(ctx, tok)
}

// Adopt stores a token obtained elsewhere, such as a sign-up response.
func (s *Session) Adopt(ctx context.Context, tok *Token) (*session.Standard, error) {
	if err := s.save(ctx, tok); err != nil {
		return nil, err
	}
	std := toStandard(tok)
	s.emit(session.AuthEvent{Type: session.EventSignedIn, Session: std})
	return std, nil
}

func (s *Session) SignOut(ctx context.Context, current *session.Standard) error {
	if current == nil {
		return nil
	}
	err := s.client.SignOut(ctx, current.AccessToken)
	s.emit(session.AuthEvent{Type: session.EventSignedOut, Session: current})
	return err
}

func (s *Session) save(ctx context.Context, tok *Token) error {
	return s.tokens.Save(ctx, session.TokenRecord{
		UserID:       tok.Claims.Subject,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
	})
}

func toStandard(tok *Token) *session.Standard {
	return &session.Standard{
		UserID:       tok.Claims.Subject,
		Email:        tok.Claims.Email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
		Claims: session.Claims{
			Email:        tok.Claims.Email,
			Role:         tok.Claims.Role,
			UserMetadata: tok.Claims.UserMetadata,
			AppMetadata:  tok.Claims.AppMetadata,
		},
	}
}
