package authgate

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// Session is the provider's session object, treated as ground truth. The
// embedded oauth2 token carries the access/refresh pair and expiry.
type Session struct {
	User  *Identity
	Token *oauth2.Token
}

// ExpiresAt returns the access token expiry, zero if unknown.
func (s *Session) ExpiresAt() time.Time {
	if s == nil || s.Token == nil {
		return time.Time{}
	}
	return s.Token.Expiry
}

// Clone returns a shallow-safe copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := &Session{User: s.User.Clone()}
	if s.Token != nil {
		t := *s.Token
		out.Token = &t
	}
	return out
}

// EventType names the push notifications the identity provider emits.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// AuthEvent is a push notification from the identity provider. Session is
// nil for SIGNED_OUT.
type AuthEvent struct {
	Type    EventType
	Session *Session
}

// OTPOptions configures a passwordless sign-in request.
type OTPOptions struct {
	// RedirectTarget is where the emailed link lands after confirmation.
	RedirectTarget string

	// CreateUser allows the provider to create the account on first sign-in.
	CreateUser bool
}

// UserUpdate is a partial metadata update applied through the provider.
// Only non-nil fields are written.
type UserUpdate struct {
	Name               *string
	OnboardingComplete *bool
	PlanTier           *string
}

// IdentityProvider is the contract with the external auth/session service.
// One instance serves one client session; all methods suspend at the network
// boundary and callers are expected to render a pending state across them.
type IdentityProvider interface {
	// GetSession returns the current session, or (nil, nil) when signed out.
	GetSession(ctx context.Context) (*Session, error)

	// OnAuthStateChange registers a callback for provider push events and
	// returns an unsubscribe function.
	OnAuthStateChange(cb func(AuthEvent)) (unsubscribe func())

	// SignInWithOTP requests a passwordless email sign-in link.
	SignInWithOTP(ctx context.Context, email string, opts OTPOptions) error

	// SignOut invalidates the current session at the provider.
	SignOut(ctx context.Context) error

	// RefreshSession exchanges the refresh token for a new session.
	RefreshSession(ctx context.Context) (*Session, error)

	// UpdateUser writes metadata for the signed-in user and returns the
	// updated identity.
	UpdateUser(ctx context.Context, update UserUpdate) (*Identity, error)
}

// SessionResolver is the slice of the provider the route gate needs: an
// independent, authoritative session lookup from a bearer token. The gate
// runs in a different execution context than the client-side state service
// and must not trust its cache.
type SessionResolver interface {
	ResolveSession(ctx context.Context, accessToken string) (*Session, error)
}
