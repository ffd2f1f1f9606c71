package authgate

import (
	"context"
	"sync"
	"time"
)

// DefaultMonitorInterval is how often the monitor re-validates on its own.
const DefaultMonitorInterval = 120 * time.Second

// Monitor re-validates the session periodically and on browser events: the
// tab becoming visible and connectivity returning. Every trigger forces a
// fresh provider check through the service; an authenticated session
// observed going away produces exactly one "session expired" notification
// and a logout.
type Monitor struct {
	// Service is the auth state service to validate through. Required.
	Service *Service

	// Notifier receives the session/connection events. Defaults to a no-op.
	Notifier Notifier

	// Interval defaults to DefaultMonitorInterval.
	Interval time.Duration

	mu               sync.Mutex
	stop             chan struct{}
	online           bool
	wasAuthenticated bool
	expiredNotified  bool
}

// NewMonitor creates a monitor over the given service.
func NewMonitor(service *Service, notifier Notifier) *Monitor {
	return (&Monitor{Service: service, Notifier: notifier}).EnsureDefaults()
}

// EnsureDefaults fills in zero-valued configuration.
func (m *Monitor) EnsureDefaults() *Monitor {
	if m.Interval <= 0 {
		m.Interval = DefaultMonitorInterval
	}
	if m.Notifier == nil {
		m.Notifier = noopNotifier{}
	}
	return m
}

// Start begins periodic re-validation. Connectivity is assumed present
// until an offline event says otherwise. Idempotent.
func (m *Monitor) Start() {
	m.EnsureDefaults()
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.stop = stop
	m.online = true
	st := m.Service.CurrentState()
	m.wasAuthenticated = st.IsAuthenticated
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Revalidate(context.Background())
			case <-stop:
				return
			}
		}
	}()
}

// Stop releases the interval timer. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

// VisibilityChanged is wired to the tab visibility event; becoming visible
// forces a re-validation.
func (m *Monitor) VisibilityChanged(ctx context.Context, visible bool) {
	if visible {
		m.Revalidate(ctx)
	}
}

// ConnectivityChanged is wired to browser online/offline events. Only the
// offline-to-online edge triggers a re-validation, so stacked listeners for
// the same transition still produce a single check.
func (m *Monitor) ConnectivityChanged(ctx context.Context, online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	switch {
	case online && !was:
		m.Notifier.Notify(EventNameConnectionRestored, Notification{
			Title:       "Back online",
			Description: "Your connection is back. Checking your session.",
		})
		m.Revalidate(ctx)
	case !online && was:
		m.Notifier.Notify(EventNameConnectionLost, Notification{
			Title:       "Connection lost",
			Description: "You appear to be offline. Some things may not work.",
		})
	}
}

// Revalidate forces a fresh provider check and reacts to the outcome. The
// expired notification fires once per authenticated period, not once per
// trigger.
func (m *Monitor) Revalidate(ctx context.Context) AuthState {
	m.EnsureDefaults()
	st := m.Service.CheckAuthStatus(ctx, true)

	m.mu.Lock()
	expired := m.wasAuthenticated && !st.IsAuthenticated && !m.expiredNotified
	if expired {
		m.expiredNotified = true
	}
	if st.IsAuthenticated {
		m.wasAuthenticated = true
		m.expiredNotified = false
	} else {
		m.wasAuthenticated = false
	}
	m.mu.Unlock()

	if expired {
		m.Notifier.Notify(EventNameSessionExpired, Notification{
			Title:       "Session expired",
			Description: "You've been signed out. Please sign in again to continue.",
		})
		m.Service.Logout(ctx)
	}
	return st
}
