package authgate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	ag "github.com/tutorhive/authgate"
)

// fakeIdentityService emulates the hosted identity service's REST surface.
type fakeIdentityService struct {
	mu        sync.Mutex
	users     map[string]map[string]any // access token -> user payload
	otpBodies []map[string]any
	logouts   int
	failWith  int // when non-zero, every request returns this status
	retryHdr  string
}

func (f *fakeIdentityService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failWith != 0 {
			f.writeFailure(w)
			return
		}
		token := bearer(r)
		user, ok := f.users[token]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"msg": "invalid token"})
			return
		}
		json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("/auth/v1/otp", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failWith != 0 {
			f.writeFailure(w)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.otpBodies = append(f.otpBodies, body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.logouts++
		if f.failWith != 0 {
			f.writeFailure(w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeIdentityService) writeFailure(w http.ResponseWriter) {
	if f.retryHdr != "" {
		w.Header().Set("Retry-After", f.retryHdr)
	}
	w.WriteHeader(f.failWith)
	json.NewEncoder(w).Encode(map[string]string{"msg": "nope"})
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) {
		return h[len(prefix):]
	}
	return ""
}

func newRemoteFixture(t *testing.T) (*ag.RemoteProvider, *fakeIdentityService) {
	t.Helper()
	svc := &fakeIdentityService{users: map[string]map[string]any{
		"tok-guardian": {
			"id":    "u1",
			"email": "parent@example.com",
			"user_metadata": map[string]any{
				"role":                "guardian",
				"name":                "Dana",
				"onboarding_complete": true,
			},
		},
	}}
	server := httptest.NewServer(svc.handler())
	t.Cleanup(server.Close)
	return ag.NewRemoteProvider(server.URL, "anon-key"), svc
}

func TestRemoteProviderResolveSession(t *testing.T) {
	provider, _ := newRemoteFixture(t)

	sess, err := provider.ResolveSession(context.Background(), "tok-guardian")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess == nil || sess.User == nil {
		t.Fatal("expected a session")
	}
	if sess.User.ID != "u1" || sess.User.Role != ag.RoleGuardian || !sess.User.OnboardingComplete() {
		t.Errorf("identity not decoded: %+v", sess.User)
	}

	// An empty token resolves to signed out, not an error.
	sess, err = provider.ResolveSession(context.Background(), "")
	if err != nil || sess != nil {
		t.Errorf("expected (nil, nil) for no token, got %v %v", sess, err)
	}
}

func TestRemoteProviderResolveExpiredToken(t *testing.T) {
	provider, _ := newRemoteFixture(t)

	_, err := provider.ResolveSession(context.Background(), "tok-unknown")
	authErr := ag.AsAuthError(err)
	if authErr == nil || authErr.Code != ag.ErrCodeExpiredSession {
		t.Errorf("expected expired_session for a rejected token, got %v", err)
	}
}

func TestRemoteProviderAdoptSessionEmitsSignedIn(t *testing.T) {
	provider, _ := newRemoteFixture(t)

	var events []ag.AuthEvent
	provider.OnAuthStateChange(func(ev ag.AuthEvent) { events = append(events, ev) })

	sess, err := provider.AdoptSession(context.Background(), "tok-guardian", "refresh-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Token.RefreshToken != "refresh-1" {
		t.Errorf("refresh token not carried: %+v", sess.Token)
	}

	if len(events) != 1 || events[0].Type != ag.EventSignedIn {
		t.Fatalf("expected one SIGNED_IN event, got %+v", events)
	}

	// The adopted session becomes the cached one.
	cached, err := provider.GetSession(context.Background())
	if err != nil || cached == nil || cached.User.ID != "u1" {
		t.Errorf("expected the adopted session to be cached, got %v %v", cached, err)
	}
}

func TestRemoteProviderSignInWithOTP(t *testing.T) {
	provider, svc := newRemoteFixture(t)

	err := provider.SignInWithOTP(context.Background(), "parent@example.com", ag.OTPOptions{
		RedirectTarget: "/auth/confirm",
		CreateUser:     true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.otpBodies) != 1 {
		t.Fatalf("expected one OTP request, got %d", len(svc.otpBodies))
	}
	body := svc.otpBodies[0]
	if body["email"] != "parent@example.com" || body["create_user"] != true || body["redirect_to"] != "/auth/confirm" {
		t.Errorf("unexpected OTP body: %+v", body)
	}
}

func TestRemoteProviderSignOutClearsLocallyOnRemoteFailure(t *testing.T) {
	provider, svc := newRemoteFixture(t)
	if _, err := provider.AdoptSession(context.Background(), "tok-guardian", "refresh-1"); err != nil {
		t.Fatalf("adopting session: %v", err)
	}

	var events []ag.AuthEvent
	provider.OnAuthStateChange(func(ev ag.AuthEvent) { events = append(events, ev) })

	svc.mu.Lock()
	svc.failWith = http.StatusBadGateway
	svc.mu.Unlock()

	if err := provider.SignOut(context.Background()); err == nil {
		t.Error("expected the remote failure to be reported")
	}

	if sess, _ := provider.GetSession(context.Background()); sess != nil {
		t.Error("the local session must be cleared even when the remote call fails")
	}
	if len(events) != 1 || events[0].Type != ag.EventSignedOut {
		t.Errorf("expected a SIGNED_OUT event, got %+v", events)
	}
}

func TestRemoteProviderRateLimitCarriesRetryAfter(t *testing.T) {
	provider, svc := newRemoteFixture(t)
	svc.mu.Lock()
	svc.failWith = http.StatusTooManyRequests
	svc.retryHdr = "17"
	svc.mu.Unlock()

	err := provider.SignInWithOTP(context.Background(), "parent@example.com", ag.OTPOptions{})
	authErr := ag.AsAuthError(err)
	if authErr.Code != ag.ErrCodeRateLimited {
		t.Fatalf("expected rate_limited, got %+v", authErr)
	}
	if authErr.RetryAfter.Seconds() != 17 {
		t.Errorf("expected the Retry-After hint, got %v", authErr.RetryAfter)
	}
}

func TestRemoteProviderBadRequestDoesNotLeakAccountExistence(t *testing.T) {
	provider, svc := newRemoteFixture(t)
	svc.mu.Lock()
	svc.failWith = http.StatusUnprocessableEntity
	svc.mu.Unlock()

	err := provider.SignInWithOTP(context.Background(), "parent@example.com", ag.OTPOptions{})
	authErr := ag.AsAuthError(err)
	if authErr.Code != ag.ErrCodeInvalidLink {
		t.Errorf("expected invalid_link, got %+v", authErr)
	}
}
