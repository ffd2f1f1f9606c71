package authgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// RemoteProvider talks to the hosted identity service over its REST API.
// It caches the session it was last handed (like the provider's own browser
// SDK does) and fans provider events out to subscribers.
type RemoteProvider struct {
	// BaseURL is the identity service root, e.g. "https://id.example.com".
	BaseURL string

	// APIKey is the public client key sent on every request.
	APIKey string

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	// Now is stubbed in tests.
	Now func() time.Time

	mu      sync.Mutex
	session *Session
	subs    map[int]func(AuthEvent)
	nextSub int
}

// NewRemoteProvider creates an adapter for the identity service at baseURL.
func NewRemoteProvider(baseURL, apiKey string) *RemoteProvider {
	return (&RemoteProvider{BaseURL: baseURL, APIKey: apiKey}).EnsureDefaults()
}

// EnsureDefaults fills in zero-valued configuration.
func (p *RemoteProvider) EnsureDefaults() *RemoteProvider {
	if p.HTTPClient == nil {
		p.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.subs == nil {
		p.subs = make(map[int]func(AuthEvent))
	}
	return p
}

// userPayload is the wire shape of a provider user record.
type userPayload struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// tokenPayload is the wire shape of a token grant response.
type tokenPayload struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	RefreshToken string       `json:"refresh_token"`
	User         *userPayload `json:"user"`
	ErrorCode    string       `json:"error"`
	ErrorDesc    string       `json:"error_description"`
}

// GetSession returns the cached session, refreshing it first when the access
// token has already expired and a refresh token is available. Returns
// (nil, nil) when signed out.
func (p *RemoteProvider) GetSession(ctx context.Context) (*Session, error) {
	p.EnsureDefaults()
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()

	if sess == nil {
		return nil, nil
	}
	if !sess.ExpiresAt().IsZero() && p.Now().After(sess.ExpiresAt()) {
		if sess.Token == nil || sess.Token.RefreshToken == "" {
			return nil, NewAuthError(ErrCodeExpiredSession, "Your session has expired. Please sign in again.", "")
		}
		return p.RefreshSession(ctx)
	}
	return sess.Clone(), nil
}

// ResolveSession validates a bearer token against the provider's user
// endpoint and returns the session it represents. This is the route gate's
// per-navigation lookup; it never consults the cached session.
func (p *RemoteProvider) ResolveSession(ctx context.Context, accessToken string) (*Session, error) {
	p.EnsureDefaults()
	if accessToken == "" {
		return nil, nil
	}

	var user userPayload
	if err := p.doJSON(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &user); err != nil {
		return nil, err
	}

	identity, err := DecodeIdentity(user.ID, user.Email, user.UserMetadata)
	if err != nil {
		return nil, fmt.Errorf("decoding identity: %w", err)
	}

	return &Session{
		User:  identity,
		Token: &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer", Expiry: tokenExpiry(accessToken)},
	}, nil
}

// AdoptSession installs a token pair obtained out of band (the email-link
// confirmation callback) as the current session and announces the sign-in.
func (p *RemoteProvider) AdoptSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	sess, err := p.ResolveSession(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewAuthError(ErrCodeInvalidLink, "That sign-in link is invalid or has expired.", "")
	}
	sess.Token.RefreshToken = refreshToken

	p.setSession(sess)
	p.emit(AuthEvent{Type: EventSignedIn, Session: sess.Clone()})
	return sess.Clone(), nil
}

// SignInWithOTP requests a passwordless email link.
func (p *RemoteProvider) SignInWithOTP(ctx context.Context, email string, opts OTPOptions) error {
	p.EnsureDefaults()
	body := map[string]any{
		"email":       email,
		"create_user": opts.CreateUser,
	}
	if opts.RedirectTarget != "" {
		body["redirect_to"] = opts.RedirectTarget
	}
	return p.doJSON(ctx, http.MethodPost, "/auth/v1/otp", "", body, nil)
}

// SignOut invalidates the session at the provider and announces the
// sign-out. The local session is cleared even if the remote call fails;
// there is no way back from a half-dead session.
func (p *RemoteProvider) SignOut(ctx context.Context) error {
	p.EnsureDefaults()
	p.mu.Lock()
	sess := p.session
	p.session = nil
	p.mu.Unlock()

	var err error
	if sess != nil && sess.Token != nil {
		err = p.doJSON(ctx, http.MethodPost, "/auth/v1/logout", sess.Token.AccessToken, nil, nil)
		if err != nil {
			slog.Warn("remote sign-out failed, local session cleared anyway", "error", err)
		}
	}
	p.emit(AuthEvent{Type: EventSignedOut})
	return err
}

// RefreshSession exchanges the refresh token for a new token pair and
// announces the refresh.
func (p *RemoteProvider) RefreshSession(ctx context.Context) (*Session, error) {
	p.EnsureDefaults()
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()

	if sess == nil || sess.Token == nil || sess.Token.RefreshToken == "" {
		return nil, NewAuthError(ErrCodeExpiredSession, "Your session has expired. Please sign in again.", "")
	}

	var grant tokenPayload
	body := map[string]any{"refresh_token": sess.Token.RefreshToken}
	if err := p.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &grant); err != nil {
		return nil, err
	}

	next, err := p.sessionFromGrant(&grant, sess.User)
	if err != nil {
		return nil, err
	}

	p.setSession(next)
	p.emit(AuthEvent{Type: EventTokenRefreshed, Session: next.Clone()})
	return next.Clone(), nil
}

// UpdateUser writes a metadata update for the signed-in user.
func (p *RemoteProvider) UpdateUser(ctx context.Context, update UserUpdate) (*Identity, error) {
	p.EnsureDefaults()
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()

	if sess == nil || sess.Token == nil {
		return nil, NewAuthError(ErrCodeExpiredSession, "You need to be signed in to do that.", "")
	}

	data := map[string]any{}
	if update.Name != nil {
		data["name"] = *update.Name
	}
	if update.OnboardingComplete != nil {
		data["onboarding_complete"] = *update.OnboardingComplete
	}
	if update.PlanTier != nil {
		data["plan_tier"] = *update.PlanTier
	}

	var user userPayload
	if err := p.doJSON(ctx, http.MethodPut, "/auth/v1/user", sess.Token.AccessToken, map[string]any{"data": data}, &user); err != nil {
		return nil, err
	}

	identity, err := DecodeIdentity(user.ID, user.Email, user.UserMetadata)
	if err != nil {
		return nil, fmt.Errorf("decoding identity: %w", err)
	}

	p.mu.Lock()
	if p.session != nil {
		p.session.User = identity
	}
	p.mu.Unlock()
	return identity.Clone(), nil
}

// OnAuthStateChange registers a push-event callback.
func (p *RemoteProvider) OnAuthStateChange(cb func(AuthEvent)) func() {
	p.EnsureDefaults()
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = cb
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Deliver injects an externally received provider event (how events arrive
// over the wire is the transport's problem). The adapter applies the session
// change and fans the event out like any other.
func (p *RemoteProvider) Deliver(ev AuthEvent) {
	p.EnsureDefaults()
	switch ev.Type {
	case EventSignedOut:
		p.setSession(nil)
	default:
		p.setSession(ev.Session.Clone())
	}
	p.emit(ev)
}

func (p *RemoteProvider) setSession(sess *Session) {
	p.mu.Lock()
	p.session = sess
	p.mu.Unlock()
}

func (p *RemoteProvider) emit(ev AuthEvent) {
	p.mu.Lock()
	cbs := make([]func(AuthEvent), 0, len(p.subs))
	for _, cb := range p.subs {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

func (p *RemoteProvider) sessionFromGrant(grant *tokenPayload, fallbackUser *Identity) (*Session, error) {
	user := fallbackUser
	if grant.User != nil {
		decoded, err := DecodeIdentity(grant.User.ID, grant.User.Email, grant.User.UserMetadata)
		if err != nil {
			return nil, fmt.Errorf("decoding identity: %w", err)
		}
		user = decoded
	}
	if user == nil {
		return nil, NewAuthError(ErrCodeInvalidLink, "The sign-in service returned an incomplete session.", "")
	}

	expiry := tokenExpiry(grant.AccessToken)
	if grant.ExpiresIn > 0 {
		expiry = p.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	}
	return &Session{
		User: user,
		Token: &oauth2.Token{
			AccessToken:  grant.AccessToken,
			RefreshToken: grant.RefreshToken,
			TokenType:    "Bearer",
			Expiry:       expiry,
		},
	}, nil
}

// doJSON performs one API call, decorating it with the client key and
// optional bearer token, decoding into out when non-nil, and mapping
// failures into the error taxonomy.
func (p *RemoteProvider) doJSON(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("apikey", p.APIKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return AsAuthError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyHTTPStatus(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding provider response: %w", err)
		}
	}
	return nil
}

// classifyHTTPStatus maps provider HTTP failures onto the error taxonomy.
func classifyHTTPStatus(resp *http.Response) *AuthError {
	var payload struct {
		Error     string `json:"error"`
		ErrorDesc string `json:"error_description"`
		Message   string `json:"msg"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return NewAuthError(ErrCodeExpiredSession, "Your session has expired. Please sign in again.", "")
	case http.StatusTooManyRequests:
		ae := NewAuthError(ErrCodeRateLimited, "Too many attempts. Please wait a moment and try again.", "")
		if after := resp.Header.Get("Retry-After"); after != "" {
			if secs, err := strconv.Atoi(after); err == nil {
				ae.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return ae
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		// The provider distinguishes unknown accounts from unconfirmed ones
		// here; both collapse to one user-facing message so the sign-in form
		// does not leak account existence.
		return NewAuthError(ErrCodeInvalidLink, "That sign-in link or code is invalid or has expired.", "")
	default:
		return NewAuthError(ErrCodeProviderUnavailable, "The sign-in service is having trouble. Please try again shortly.", "")
	}
}

// tokenExpiry recovers the expiry from an access token's exp claim. The
// provider's session object is ground truth, so the claim is read without
// signature verification; actual validation happens at the provider on every
// resolve.
func tokenExpiry(accessToken string) time.Time {
	if accessToken == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
