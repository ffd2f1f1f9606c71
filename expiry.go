package authgate

import (
	"context"
	"sync"
	"time"
)

// DefaultWarningThreshold is how close to expiry the countdown opens.
const DefaultWarningThreshold = 60 * time.Second

// SessionExpiry is derived from the current session on each check, never
// stored.
type SessionExpiry struct {
	ExpiresAt        time.Time
	WarningThreshold time.Duration
}

// ExpiryOf derives the expiry view of a session. ok is false when the
// session carries no usable expiry.
func ExpiryOf(sess *Session) (SessionExpiry, bool) {
	at := sess.ExpiresAt()
	if at.IsZero() {
		return SessionExpiry{}, false
	}
	return SessionExpiry{ExpiresAt: at, WarningThreshold: DefaultWarningThreshold}, true
}

// Remaining is the token lifetime left at now, never negative.
func (e SessionExpiry) Remaining(now time.Time) time.Duration {
	d := e.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// InWarningWindow reports whether the countdown should be showing at now.
func (e SessionExpiry) InWarningWindow(now time.Time) bool {
	return e.Remaining(now) <= e.WarningThreshold
}

// ExpiryWatcher drives the warning/extend/forced-logout sequence as a
// session token nears expiry. Extend refreshes the session and cancels the
// countdown; letting the countdown reach zero fires an automatic logout
// exactly once. A manual logout anywhere cancels the pending timers, so the
// automatic and manual paths can never both fire for one session.
type ExpiryWatcher struct {
	// Service is the auth state service. Required.
	Service *Service

	// Notifier receives the expired event on automatic logout. Defaults to
	// a no-op.
	Notifier Notifier

	// WarningThreshold defaults to DefaultWarningThreshold.
	WarningThreshold time.Duration

	// OnWarning opens the countdown UI with the time left until the forced
	// logout.
	OnWarning func(timeUntilLogout time.Duration)

	// OnDismiss closes the countdown UI after a successful extension.
	OnDismiss func()

	// Now is stubbed in tests.
	Now func() time.Time

	mu          sync.Mutex
	warnTimer   *time.Timer
	logoutTimer *time.Timer
	logoutFired bool
	unsub       func()
}

// NewExpiryWatcher creates a watcher over the given service.
func NewExpiryWatcher(service *Service, notifier Notifier) *ExpiryWatcher {
	return (&ExpiryWatcher{Service: service, Notifier: notifier}).EnsureDefaults()
}

// EnsureDefaults fills in zero-valued configuration.
func (w *ExpiryWatcher) EnsureDefaults() *ExpiryWatcher {
	if w.WarningThreshold <= 0 {
		w.WarningThreshold = DefaultWarningThreshold
	}
	if w.Notifier == nil {
		w.Notifier = noopNotifier{}
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	return w
}

// Start follows the service's transitions: authenticated sessions arm the
// timers, any transition to signed-out (manual logout included) cancels
// them. Idempotent.
func (w *ExpiryWatcher) Start() {
	w.EnsureDefaults()
	w.mu.Lock()
	if w.unsub != nil {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	unsub := w.Service.Subscribe(func(st AuthState) {
		if st.IsAuthenticated {
			w.Watch(w.Service.CurrentSession())
		} else {
			w.cancelTimers()
		}
	})
	w.mu.Lock()
	w.unsub = unsub
	w.mu.Unlock()

	if st := w.Service.CurrentState(); st.IsAuthenticated {
		w.Watch(w.Service.CurrentSession())
	}
}

// Stop detaches from the service and cancels any pending timers.
func (w *ExpiryWatcher) Stop() {
	w.mu.Lock()
	unsub := w.unsub
	w.unsub = nil
	w.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	w.cancelTimers()
}

// Watch (re)arms the timers for a session. Replaces whatever was armed
// before; a session already inside the warning window opens the countdown
// immediately.
func (w *ExpiryWatcher) Watch(sess *Session) {
	w.EnsureDefaults()
	w.cancelTimers()

	expiry, ok := ExpiryOf(sess)
	if !ok {
		return
	}
	expiry.WarningThreshold = w.WarningThreshold

	now := w.Now()
	remaining := expiry.Remaining(now)

	w.mu.Lock()
	w.logoutFired = false
	w.logoutTimer = time.AfterFunc(remaining, w.autoLogout)
	if remaining > w.WarningThreshold {
		w.warnTimer = time.AfterFunc(remaining-w.WarningThreshold, func() {
			w.warn(w.WarningThreshold)
		})
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()
	w.warn(remaining)
}

// Extend is the "stay signed in" action: it refreshes the session, cancels
// the countdown, and resumes normal monitoring on the new expiry. The
// service transition produced by the refresh re-arms the timers when the
// watcher is started; a standalone watcher re-arms here.
func (w *ExpiryWatcher) Extend(ctx context.Context) *AuthError {
	w.EnsureDefaults()
	if authErr := w.Service.RefreshSession(ctx); authErr != nil {
		return authErr
	}
	w.cancelTimers()
	if w.OnDismiss != nil {
		w.OnDismiss()
	}
	w.Watch(w.Service.CurrentSession())
	return nil
}

func (w *ExpiryWatcher) warn(timeUntilLogout time.Duration) {
	if w.OnWarning != nil {
		w.OnWarning(timeUntilLogout)
	}
}

// autoLogout fires when the countdown reaches zero with no action taken.
// The fired flag guarantees at most one automatic logout per armed session,
// even if a cancel races the timer.
func (w *ExpiryWatcher) autoLogout() {
	w.mu.Lock()
	if w.logoutFired {
		w.mu.Unlock()
		return
	}
	w.logoutFired = true
	w.mu.Unlock()

	w.Notifier.Notify(EventNameSessionExpired, Notification{
		Title:       "Signed out",
		Description: "Your session expired, so we signed you out to keep the account safe.",
	})
	w.Service.Logout(context.Background())
}

// cancelTimers stops both timers and marks the armed session as handled so
// a timer that already fired into the race does nothing.
func (w *ExpiryWatcher) cancelTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.warnTimer != nil {
		w.warnTimer.Stop()
		w.warnTimer = nil
	}
	if w.logoutTimer != nil {
		w.logoutTimer.Stop()
		w.logoutTimer = nil
	}
	w.logoutFired = true
}
