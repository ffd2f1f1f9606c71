package authgate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCacheWindow is how long a resolved auth check stays fresh.
const DefaultCacheWindow = 30 * time.Second

// Service owns the AuthState for one client session. It is the single write
// path to the state: transitions happen only through CheckAuthStatus, the
// provider push callback, or the explicit login/logout/onboarding actions.
// Construct it explicitly and inject it at application start; Start and
// Close bound its lifecycle.
type Service struct {
	// Provider is the identity provider adapter. Required.
	Provider IdentityProvider

	// CacheWindow bounds how stale a non-forced check may be. Defaults to
	// DefaultCacheWindow.
	CacheWindow time.Duration

	// LandingPath is where Logout sends the visitor. Defaults to "/landing".
	LandingPath string

	// ConfirmPath is the redirect target baked into sign-in links. Defaults
	// to "/auth/confirm".
	ConfirmPath string

	// Now is stubbed in tests.
	Now func() time.Time

	mu       sync.Mutex
	state    AuthState
	session  *Session
	inflight *checkCall

	// pushSeq increments whenever a transition lands while a check is in
	// flight; a check result older than the state it would replace is
	// discarded instead of applied.
	pushSeq int

	subs    map[int]func(AuthState)
	nextSub int

	unsubProvider func()
	started       bool

	limMu    sync.Mutex
	limiters map[string]*otpLimiter
}

// checkCall is one in-flight provider check that concurrent callers attach to.
type checkCall struct {
	done  chan struct{}
	state AuthState
}

// NewService creates a Service bound to the given provider.
func NewService(provider IdentityProvider) *Service {
	return (&Service{Provider: provider}).EnsureDefaults()
}

// EnsureDefaults fills in zero-valued configuration.
func (s *Service) EnsureDefaults() *Service {
	if s.CacheWindow <= 0 {
		s.CacheWindow = DefaultCacheWindow
	}
	if s.LandingPath == "" {
		s.LandingPath = "/landing"
	}
	if s.ConfirmPath == "" {
		s.ConfirmPath = "/auth/confirm"
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.subs == nil {
		s.subs = make(map[int]func(AuthState))
	}
	return s
}

// Start subscribes the service to provider push events. Idempotent.
func (s *Service) Start() {
	s.EnsureDefaults()
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	s.unsubProvider = s.Provider.OnAuthStateChange(s.handleProviderEvent)
}

// Close detaches from the provider and drops all subscribers.
func (s *Service) Close() {
	s.mu.Lock()
	unsub := s.unsubProvider
	s.unsubProvider = nil
	s.started = false
	s.subs = make(map[int]func(AuthState))
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// CurrentState returns the state as of the last transition.
func (s *Service) CurrentState() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentSession returns the last session the service saw, nil when signed
// out. The expiry watcher derives its countdown from this.
func (s *Service) CurrentSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

// Subscribe registers a listener invoked on every state transition and
// returns its unsubscribe function. Repeated subscribe/unsubscribe cycles do
// not leak listeners.
func (s *Service) Subscribe(cb func(AuthState)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = cb
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// CheckAuthStatus resolves who is signed in. Within the cache window a
// non-forced call returns the cached state without a provider round trip;
// concurrent callers coalesce onto one outstanding provider call. Provider
// failures map to an unauthenticated state carrying the error - the method
// itself never fails.
func (s *Service) CheckAuthStatus(ctx context.Context, forceRefresh bool) AuthState {
	s.EnsureDefaults()

	s.mu.Lock()
	if !forceRefresh && !s.state.LastChecked.IsZero() && s.Now().Sub(s.state.LastChecked) < s.CacheWindow {
		st := s.state
		s.mu.Unlock()
		return st
	}
	if s.inflight != nil {
		call := s.inflight
		s.mu.Unlock()
		<-call.done
		return call.state
	}

	call := &checkCall{done: make(chan struct{})}
	s.inflight = call
	issuedSeq := s.pushSeq
	loading := s.state
	loading.IsLoading = true
	s.state = loading
	s.mu.Unlock()

	sess, err := s.Provider.GetSession(ctx)

	s.mu.Lock()
	s.inflight = nil
	if s.pushSeq != issuedSeq {
		// A newer transition landed while this check was in flight; its
		// result is stale and must not overwrite the newer state.
		call.state = s.state
		s.mu.Unlock()
		close(call.done)
		return call.state
	}

	next := AuthState{LastChecked: s.Now()}
	switch {
	case err != nil:
		next.Error = AsAuthError(err)
		s.session = nil
	case sess == nil || sess.User == nil:
		s.session = nil
	default:
		next.User = sess.User
		next.IsAuthenticated = true
		s.session = sess
	}
	call.state = next
	subs := s.applyLocked(next)
	s.mu.Unlock()

	notify(subs, next)
	close(call.done)
	return next
}

// RefreshSession asks the provider for a fresh token pair and applies the
// result. Returns the structured error on failure.
func (s *Service) RefreshSession(ctx context.Context) *AuthError {
	s.EnsureDefaults()
	sess, err := s.Provider.RefreshSession(ctx)
	if err != nil {
		return AsAuthError(err)
	}

	s.mu.Lock()
	s.pushSeq++
	s.session = sess
	next := AuthState{
		User:            sess.User,
		IsAuthenticated: true,
		LastChecked:     s.Now(),
	}
	subs := s.applyLocked(next)
	s.mu.Unlock()
	notify(subs, next)
	return nil
}

// LogoutResult reports where to send the visitor after a logout.
type LogoutResult struct {
	RedirectTo string
	Error      *AuthError
}

// Logout signs out at the provider, clears the store to the unauthenticated
// state, and signals navigation to the public landing path. The state is
// cleared even when the remote call fails.
func (s *Service) Logout(ctx context.Context) LogoutResult {
	s.EnsureDefaults()
	err := s.Provider.SignOut(ctx)
	if err != nil {
		slog.Warn("provider sign-out failed", "error", err)
	}

	s.mu.Lock()
	s.pushSeq++
	s.session = nil
	next := AuthState{LastChecked: s.Now()}
	subs := s.applyLocked(next)
	s.mu.Unlock()
	notify(subs, next)

	res := LogoutResult{RedirectTo: s.LandingPath}
	if err != nil {
		res.Error = AsAuthError(err)
	}
	return res
}

// handleProviderEvent applies a push notification from the identity
// provider. Push-applied transitions outrank any check still in flight.
func (s *Service) handleProviderEvent(ev AuthEvent) {
	s.mu.Lock()
	s.pushSeq++
	next := AuthState{LastChecked: s.Now()}
	switch ev.Type {
	case EventSignedOut:
		s.session = nil
	default:
		if ev.Session != nil && ev.Session.User != nil {
			next.User = ev.Session.User
			next.IsAuthenticated = true
			s.session = ev.Session
		} else {
			s.session = nil
		}
	}
	subs := s.applyLocked(next)
	s.mu.Unlock()
	notify(subs, next)
}

// applyLocked replaces the state atomically and snapshots the subscriber
// list. Callers hold s.mu and invoke the returned callbacks after unlocking.
func (s *Service) applyLocked(next AuthState) []func(AuthState) {
	s.state = next
	subs := make([]func(AuthState), 0, len(s.subs))
	for _, cb := range s.subs {
		subs = append(subs, cb)
	}
	return subs
}

func notify(subs []func(AuthState), st AuthState) {
	for _, cb := range subs {
		cb(st)
	}
}
