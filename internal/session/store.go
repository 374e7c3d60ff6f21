// Package session keeps the dashboard identity of one browser tab: either a
// standard identity issued by the auth provider or a shadow employee identity
// materialized from the employee login procedure, never both.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fauter/cochera-admin/internal/clock"
	"github.com/fauter/cochera-admin/internal/config"
	"github.com/fauter/cochera-admin/internal/profile"
	"github.com/fauter/cochera-admin/internal/role"
	"go.uber.org/zap"
)

// ProfileResolver turns a standard identity into a profile. Resolve never fails.
type ProfileResolver interface {
	Resolve(ctx context.Context, req profile.Request, opts profile.Options) profile.Profile
}

type StoreParams struct {
	Key       string
	Log       *zap.Logger
	Clock     clock.Clock
	Config    *config.DashboardConfigHolder
	Backend   AuthBackend
	Ephemeral EphemeralStorage
	Tokens    TokenStorage
	Profiles  ProfileResolver
}

type Store struct {
	key       string
	log       *zap.Logger
	clock     clock.Clock
	cfg       *config.DashboardConfigHolder
	backend   AuthBackend
	ephemeral EphemeralStorage
	tokens    TokenStorage
	profiles  ProfileResolver

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	gen          uint64
	initialized  bool
	initializing bool
	disposed     bool
	watchdog     clock.Timer
	subs         map[uint64]func(State)
	nextSub      uint64
	unsubscribe  func()
	inflight     sync.WaitGroup

	publishMu sync.Mutex
}

type profileJob struct {
	gen   uint64
	req   profile.Request
	retry bool
}

func NewStore(p StoreParams) *Store {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	cfg := p.Config
	if cfg == nil {
		cfg = config.NewStaticDashboardConfig(config.DefaultDashboardConfig())
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		key:       p.Key,
		log:       log.Named("session.store").With(zap.String("session_key", p.Key)),
		clock:     clk,
		cfg:       cfg,
		backend:   p.Backend,
		ephemeral: p.Ephemeral,
		tokens:    p.Tokens,
		profiles:  p.Profiles,
		ctx:       ctx,
		cancel:    cancel,
		subs:      map[uint64]func(State){},
	}
	if s.backend != nil {
		s.unsubscribe = s.backend.OnAuthStateChange(s.onAuthEvent)
	}
	return s
}

func (s *Store) Key() string {
	return s.key
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn for every published state. fn runs on the goroutine
// that changed the state and must not call mutating Store methods.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) publish() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	st := s.state.clone()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// Initialize recovers an identity: first the provider session, then a shadow
// blob from ephemeral storage. Any failure leaves the store unauthenticated.
// Loading is cleared on every path.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrStoreDisposed
	}
	if s.initialized || s.initializing {
		s.mu.Unlock()
		return nil
	}
	s.initializing = true
	gen := s.gen
	s.startLoadingLocked()
	s.mu.Unlock()
	s.publish()

	defer func() {
		s.mu.Lock()
		s.initialized = true
		s.initializing = false
		s.stopLoadingLocked()
		s.mu.Unlock()
		s.publish()
	}()

	if s.backend != nil {
		std, err := s.backend.GetSession(ctx)
		if err != nil {
			s.clearIfCurrent(gen)
			return fmt.Errorf("session check: %w", err)
		}
		if std != nil {
			s.mu.Lock()
			if s.gen != gen {
				s.mu.Unlock()
				return nil
			}
			job, hadShadow := s.applyStandardLocked(std, false)
			s.mu.Unlock()
			if hadShadow {
				s.clearEphemeral(ctx)
			}
			s.startProfileFetch(job)
			return nil
		}
	}

	blob, err := s.ephemeral.Load(ctx)
	if err != nil {
		s.clearIfCurrent(gen)
		return fmt.Errorf("load shadow session: %w", err)
	}
	if len(blob) == 0 {
		return nil
	}
	shadow, err := decodeShadow(blob)
	if err != nil {
		s.log.Debug("discarding unreadable shadow session")
		s.clearEphemeral(ctx)
		return nil
	}

	s.mu.Lock()
	if s.gen == gen {
		s.activateShadowLocked(shadow)
	}
	s.mu.Unlock()
	return nil
}

// EstablishShadow replaces whatever identity the store holds with an employee
// identity. Observers see either the previous state or the shadow one.
func (s *Store) EstablishShadow(ctx context.Context, rec ShadowRecord) (*Shadow, error) {
	shadow, err := ShadowFromRecord(rec)
	if err != nil {
		return nil, err
	}
	blob, err := json.Marshal(shadow.Record())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrStoreDisposed
	}
	prev := s.state.Identity.Standard
	if err := s.ephemeral.Save(ctx, blob); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("persist shadow session: %w", err)
	}
	if err := s.tokens.Clear(ctx); err != nil {
		if cerr := s.ephemeral.Clear(ctx); cerr != nil {
			s.log.Warn("failed to drop shadow session after token clear failure", zap.Error(cerr))
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("clear token storage: %w", err)
	}
	s.activateShadowLocked(shadow)
	out := shadow.clone()
	s.mu.Unlock()
	s.publish()

	if prev != nil {
		go s.revoke(context.Background(), prev)
	}
	s.log.Info("shadow session established",
		zap.String("employee_id", shadow.ID),
		zap.String("role", string(shadow.Role)),
	)
	return out, nil
}

// SignOut clears local state and storage first, then asks the provider to end
// the session. The provider call is abandoned after the configured deadline.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrStoreDisposed
	}
	prev := s.state.Identity.Standard
	s.resetLocked()
	s.mu.Unlock()
	s.publish()

	var errs []error
	if err := s.ephemeral.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear shadow session: %w", err))
	}
	if err := s.tokens.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear token storage: %w", err))
	}
	if prev != nil {
		s.revoke(ctx, prev)
	}
	return errors.Join(errs...)
}

// HardReset drops every local state and storage without calling the provider.
func (s *Store) HardReset(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrStoreDisposed
	}
	s.resetLocked()
	s.initialized = true
	s.mu.Unlock()
	s.publish()

	s.log.Warn("session hard reset")
	return errors.Join(s.ephemeral.Clear(ctx), s.tokens.Clear(ctx))
}

// MarkRouted records that the canonical redirect was issued. It returns false
// when it already was, so the redirect fires at most once per session.
func (s *Store) MarkRouted() bool {
	s.mu.Lock()
	if s.state.Routed || !s.state.Identity.Authenticated() {
		s.mu.Unlock()
		return false
	}
	s.state.Routed = true
	s.mu.Unlock()
	s.publish()
	return true
}

// UpdatePermissions replaces the permission document of a live shadow session
// for employeeID. It reports whether this store held that employee.
func (s *Store) UpdatePermissions(ctx context.Context, employeeID string, doc role.PermissionDocument) (bool, error) {
	s.mu.Lock()
	sh := s.state.Identity.Shadow
	if s.disposed || sh == nil || sh.ID != employeeID {
		s.mu.Unlock()
		return false, nil
	}
	next := sh.clone()
	next.Permissions = doc.Normalize()
	blob, err := json.Marshal(next.Record())
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if err := s.ephemeral.Save(ctx, blob); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("persist shadow session: %w", err)
	}
	s.state.Identity.Shadow = next
	s.mu.Unlock()
	s.publish()
	return true, nil
}

// EndShadow signs out a live shadow session for employeeID, used when the
// account is deleted.
func (s *Store) EndShadow(ctx context.Context, employeeID string) (bool, error) {
	s.mu.Lock()
	sh := s.state.Identity.Shadow
	if s.disposed || sh == nil || sh.ID != employeeID {
		s.mu.Unlock()
		return false, nil
	}
	s.resetLocked()
	s.mu.Unlock()
	s.publish()
	return true, s.ephemeral.Clear(ctx)
}

// Dispose detaches the store from the backend and waits for in-flight profile
// fetches, which are cancelled.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.gen++
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.cancel()
	s.inflight.Wait()
}

func (s *Store) onAuthEvent(ev AuthEvent) {
	switch ev.Type {
	case EventTokenRefreshed:
		if ev.Session == nil {
			return
		}
		s.mu.Lock()
		if cur := s.state.Identity.Standard; cur != nil && cur.UserID == ev.Session.UserID {
			s.state.Identity.Standard = ev.Session.clone()
		}
		s.mu.Unlock()

	case EventSignedIn:
		if ev.Session == nil {
			return
		}
		s.mu.Lock()
		if s.disposed {
			s.mu.Unlock()
			return
		}
		coldBoot := !s.initialized && !s.initializing
		if coldBoot {
			s.startLoadingLocked()
		}
		silent := s.initialized && s.isCurrentUserLocked(ev.Session.UserID)
		job, hadShadow := s.applyStandardLocked(ev.Session, true)
		s.mu.Unlock()

		if coldBoot {
			s.publish()
		}
		if hadShadow {
			s.clearEphemeral(s.ctx)
		}
		s.startProfileFetch(job)

		if coldBoot {
			s.mu.Lock()
			s.stopLoadingLocked()
			s.mu.Unlock()
		}
		if !silent || coldBoot {
			s.publish()
		}

	case EventSignedOut:
		s.mu.Lock()
		cur := s.state.Identity.Standard
		if cur == nil || (ev.Session != nil && ev.Session.AccessToken != cur.AccessToken) {
			s.mu.Unlock()
			return
		}
		s.resetLocked()
		s.mu.Unlock()
		s.publish()
	}
}

func (s *Store) isCurrentUserLocked(userID string) bool {
	cur := s.state.Identity.Standard
	return cur != nil && cur.UserID == userID
}

// applyStandardLocked installs std. The same user only swaps tokens; a new
// user starts a new session with a provisional profile and a fetch job.
func (s *Store) applyStandardLocked(std *Standard, retry bool) (job *profileJob, hadShadow bool) {
	hadShadow = s.state.Identity.Shadow != nil
	sameUser := s.isCurrentUserLocked(std.UserID) && s.state.Profile != nil
	s.state.Identity = Identity{Standard: std.clone()}
	if sameUser {
		return nil, hadShadow
	}

	s.gen++
	prov := profile.Provisional(std.UserID, std.Email, std.Claims.UserMetadata, std.Claims.AppMetadata)
	s.state.Profile = &prov
	s.state.ProfileSettled = false
	s.state.Routed = false
	if s.profiles == nil || s.disposed {
		s.state.ProfileSettled = true
		return nil, hadShadow
	}
	s.inflight.Add(1)
	return &profileJob{
		gen:   s.gen,
		req:   profile.Request{Claims: claimsFor(std), Provisional: prov},
		retry: retry,
	}, hadShadow
}

// startProfileFetch resolves the authoritative profile in the background. A
// result that arrives after the identity changed is dropped.
func (s *Store) startProfileFetch(job *profileJob) {
	if job == nil {
		return
	}
	go func() {
		defer s.inflight.Done()
		p := s.profiles.Resolve(s.ctx, job.req, profile.Options{RetryTransient: job.retry})

		s.mu.Lock()
		if s.disposed || s.gen != job.gen {
			s.mu.Unlock()
			s.log.Debug("dropping profile for a session that is no longer current")
			return
		}
		s.state.Profile = &p
		s.state.ProfileSettled = true
		s.mu.Unlock()
		s.publish()
	}()
}

func (s *Store) activateShadowLocked(shadow *Shadow) {
	s.gen++
	s.state.Identity = Identity{Shadow: shadow}
	p := profile.FromShadow(shadow.ID, shadow.FullName, shadow.Role)
	s.state.Profile = &p
	s.state.ProfileSettled = true
	s.state.Routed = false
}

func (s *Store) resetLocked() {
	s.gen++
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	s.state = State{}
}

func (s *Store) clearIfCurrent(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		loading, since := s.state.Loading, s.state.LoadingSince
		s.state = State{Loading: loading, LoadingSince: since}
		s.gen++
	}
}

func (s *Store) clearEphemeral(ctx context.Context) {
	if err := s.ephemeral.Clear(ctx); err != nil {
		s.log.Warn("failed to clear shadow session", zap.Error(err))
	}
}

// revoke ends std at the provider, giving up after the sign-out deadline. The
// call keeps running in the background when abandoned.
func (s *Store) revoke(ctx context.Context, std *Standard) {
	if s.backend == nil {
		return
	}
	deadline := s.cfg.Get().SignOutDeadline
	done := make(chan error, 1)
	go func() {
		done <- s.backend.SignOut(context.WithoutCancel(ctx), std)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Warn("provider sign-out failed", zap.Error(err))
		}
	case <-s.clock.After(deadline):
		s.log.Warn("provider sign-out exceeded deadline, abandoned", zap.Duration("deadline", deadline))
	case <-ctx.Done():
	}
}
