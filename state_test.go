package authgate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ag "github.com/tutorhive/authgate"
)

func TestCheckAuthStatusCachesWithinWindow(t *testing.T) {
	provider := newFakeProvider(sessionFor(guardianIdentity("u1", "g@example.com", true), time.Hour))
	service := ag.NewService(provider)

	now := time.Now()
	service.Now = func() time.Time { return now }

	st := service.CheckAuthStatus(context.Background(), false)
	if !st.IsAuthenticated {
		t.Fatalf("expected authenticated state, got %+v", st)
	}
	if provider.sessionCalls() != 1 {
		t.Fatalf("expected 1 provider call, got %d", provider.sessionCalls())
	}

	// Second check inside the window answers from cache.
	now = now.Add(10 * time.Second)
	service.CheckAuthStatus(context.Background(), false)
	if provider.sessionCalls() != 1 {
		t.Errorf("expected cached answer, got %d provider calls", provider.sessionCalls())
	}

	// Past the window the provider is consulted again.
	now = now.Add(ag.DefaultCacheWindow)
	service.CheckAuthStatus(context.Background(), false)
	if provider.sessionCalls() != 2 {
		t.Errorf("expected fresh check after window, got %d provider calls", provider.sessionCalls())
	}

	// forceRefresh always bypasses the cache.
	service.CheckAuthStatus(context.Background(), true)
	if provider.sessionCalls() != 3 {
		t.Errorf("expected forced check, got %d provider calls", provider.sessionCalls())
	}
}

func TestCheckAuthStatusCoalescesConcurrentCalls(t *testing.T) {
	provider := newFakeProvider(sessionFor(guardianIdentity("u1", "g@example.com", true), time.Hour))
	provider.getBlock = make(chan struct{})
	service := ag.NewService(provider)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]ag.AuthState, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = service.CheckAuthStatus(context.Background(), true)
		}(i)
	}

	// Let the goroutines pile onto the in-flight call, then release it.
	time.Sleep(50 * time.Millisecond)
	close(provider.getBlock)
	wg.Wait()

	if got := provider.sessionCalls(); got != 1 {
		t.Errorf("expected concurrent checks to coalesce onto 1 provider call, got %d", got)
	}
	for i, st := range results {
		if !st.IsAuthenticated {
			t.Errorf("caller %d: expected authenticated state, got %+v", i, st)
		}
	}
}

func TestStaleCheckResultDiscardedAfterPush(t *testing.T) {
	user := guardianIdentity("u1", "g@example.com", true)
	provider := newFakeProvider(nil)
	provider.getBlock = make(chan struct{})
	service := ag.NewService(provider)
	service.Start()
	defer service.Close()

	done := make(chan ag.AuthState, 1)
	go func() {
		done <- service.CheckAuthStatus(context.Background(), true)
	}()
	time.Sleep(50 * time.Millisecond)

	// A sign-in push lands while the (signed-out) check is still in flight.
	provider.emit(ag.AuthEvent{Type: ag.EventSignedIn, Session: sessionFor(user, time.Hour)})

	close(provider.getBlock)
	st := <-done

	if !st.IsAuthenticated {
		t.Errorf("expected the stale check to yield the pushed state, got %+v", st)
	}
	if cur := service.CurrentState(); !cur.IsAuthenticated || cur.User == nil || cur.User.ID != "u1" {
		t.Errorf("stale result overwrote the pushed state: %+v", cur)
	}
}

func TestCheckAuthStatusProviderFailure(t *testing.T) {
	provider := newFakeProvider(nil)
	provider.getErr = errors.New("connection refused")
	service := ag.NewService(provider)

	st := service.CheckAuthStatus(context.Background(), true)
	if st.IsAuthenticated {
		t.Error("provider failure must leave the visitor signed out")
	}
	if st.Error == nil || st.Error.Code != ag.ErrCodeProviderUnavailable {
		t.Errorf("expected provider_unavailable error, got %+v", st.Error)
	}
}

func TestLogoutClearsStateEvenWhenRemoteFails(t *testing.T) {
	provider := newFakeProvider(sessionFor(guardianIdentity("u1", "g@example.com", true), time.Hour))
	service := ag.NewService(provider)
	service.CheckAuthStatus(context.Background(), true)

	provider.signOutErr = errors.New("gateway timeout")
	res := service.Logout(context.Background())

	if res.RedirectTo != "/landing" {
		t.Errorf("expected redirect to /landing, got %q", res.RedirectTo)
	}
	if res.Error == nil {
		t.Error("expected the remote failure to be reported")
	}
	if st := service.CurrentState(); st.IsAuthenticated {
		t.Errorf("state must be cleared even when the remote sign-out fails: %+v", st)
	}
	if service.CurrentSession() != nil {
		t.Error("session must be cleared on logout")
	}
}

func TestSubscribeReceivesTransitionsUntilUnsubscribed(t *testing.T) {
	provider := newFakeProvider(sessionFor(guardianIdentity("u1", "g@example.com", true), time.Hour))
	service := ag.NewService(provider)

	var mu sync.Mutex
	var seen []ag.Phase
	unsub := service.Subscribe(func(st ag.AuthState) {
		mu.Lock()
		seen = append(seen, st.Phase())
		mu.Unlock()
	})

	service.CheckAuthStatus(context.Background(), true)
	service.Logout(context.Background())
	unsub()
	service.CheckAuthStatus(context.Background(), true)

	mu.Lock()
	defer mu.Unlock()
	want := []ag.Phase{ag.PhaseAuthenticatedComplete, ag.PhaseUnauthenticated}
	if len(seen) != len(want) {
		t.Fatalf("expected %d notifications, got %d: %v", len(want), len(seen), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notification %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestPhaseDerivation(t *testing.T) {
	tests := []struct {
		name  string
		state ag.AuthState
		want  ag.Phase
	}{
		{"before first check", ag.AuthState{}, ag.PhaseInit},
		{"signed out", ag.AuthState{LastChecked: time.Now()}, ag.PhaseUnauthenticated},
		{
			"guardian mid-onboarding",
			ag.AuthState{User: guardianIdentity("u1", "g@example.com", false), IsAuthenticated: true, LastChecked: time.Now()},
			ag.PhaseAuthenticatedIncomplete,
		},
		{
			"guardian onboarded",
			ag.AuthState{User: guardianIdentity("u1", "g@example.com", true), IsAuthenticated: true, LastChecked: time.Now()},
			ag.PhaseAuthenticatedComplete,
		},
		{
			"child always complete",
			ag.AuthState{User: childIdentity("c1", "sam", ""), IsAuthenticated: true, LastChecked: time.Now()},
			ag.PhaseAuthenticatedComplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Phase(); got != tt.want {
				t.Errorf("expected phase %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRefreshSessionAppliesNewSession(t *testing.T) {
	user := guardianIdentity("u1", "g@example.com", true)
	provider := newFakeProvider(sessionFor(user, time.Minute))
	provider.refreshed = sessionFor(user, time.Hour)
	service := ag.NewService(provider)
	service.CheckAuthStatus(context.Background(), true)

	if authErr := service.RefreshSession(context.Background()); authErr != nil {
		t.Fatalf("unexpected refresh error: %v", authErr)
	}

	sess := service.CurrentSession()
	if sess == nil {
		t.Fatal("expected a session after refresh")
	}
	if remaining := time.Until(sess.ExpiresAt()); remaining < 30*time.Minute {
		t.Errorf("expected refreshed expiry, got %v remaining", remaining)
	}
}
