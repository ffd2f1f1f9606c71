package authgate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
)

// DefaultVisitorCookieName carries the anonymous correlation id for
// unauthenticated landing-page visitors.
const DefaultVisitorCookieName = "tg_visitor"

const visitorCookieMaxAge = int((365 * 24 * time.Hour) / time.Second)

// RouteDecision is the gate's verdict for one navigation. Recomputed fresh
// per request, never cached across navigations.
type RouteDecision struct {
	Allow      bool
	RedirectTo string
}

type identityContextKey struct{}

// Gate is the server-side route-access decision point, evaluated once per
// navigation. It re-derives session, role and onboarding status from the
// provider on every request - it shares no memory with the client-side
// state service and cannot assume that cache is current.
type Gate struct {
	// Provider resolves bearer tokens into sessions. Required.
	Provider SessionResolver

	// Session is the server session manager the signed-in token pair lives
	// in. Optional; without it the gate falls back to the token cookie.
	Session *scs.SessionManager

	// Routes is the path taxonomy. Defaults via EnsureDefaults.
	Routes *RouteTable

	// AuthTokenSessionVar names the session key holding the access token.
	AuthTokenSessionVar string

	// AuthTokenCookieName is the cookie fallback for the access token.
	AuthTokenCookieName string

	// VisitorCookieName defaults to DefaultVisitorCookieName.
	VisitorCookieName string
}

// EnsureDefaults fills in zero-valued configuration.
func (g *Gate) EnsureDefaults() *Gate {
	if g.Routes == nil {
		g.Routes = &RouteTable{}
	}
	g.Routes.EnsureDefaults()
	if g.AuthTokenSessionVar == "" {
		g.AuthTokenSessionVar = "authAccessToken"
	}
	if g.AuthTokenCookieName == "" {
		g.AuthTokenCookieName = g.AuthTokenSessionVar
	}
	if g.VisitorCookieName == "" {
		g.VisitorCookieName = DefaultVisitorCookieName
	}
	return g
}

// navContext is what one evaluation learned about the visitor; the
// middleware uses it for side effects the pure decision does not carry.
type navContext struct {
	session       *Session
	authenticated bool
	class         PathClass
}

// Evaluate runs the decision table for a request and returns the verdict.
func (g *Gate) Evaluate(r *http.Request) RouteDecision {
	decision, _ := g.evaluate(r)
	return decision
}

func (g *Gate) evaluate(r *http.Request) (RouteDecision, *navContext) {
	g.EnsureDefaults()
	routes := g.Routes
	reqPath := r.URL.Path
	nav := &navContext{class: routes.Classify(reqPath)}

	// Rule 1: assets pass untouched, no session lookup, no side effects.
	if nav.class == PathAsset {
		return RouteDecision{Allow: true}, nav
	}

	sess, err := g.resolve(r)
	if err != nil {
		// Fail safe: a provider outage never exposes a protected path and
		// never turns into an unhandled failure for the navigation. The
		// visitor is treated as signed out, which allows public pages and
		// sends everything else to the landing page.
		slog.Warn("session resolution failed, failing safe", "path", reqPath, "error", err)
		sess = nil
	}
	nav.session = sess
	nav.authenticated = sess != nil && sess.User != nil

	if nav.authenticated {
		user := sess.User

		// Rule 2: guardians must finish onboarding before anything else.
		// The optimistic cookie can vouch for a completion the cached
		// metadata hasn't caught up with; it can never force the redirect.
		complete := user.OnboardingComplete() || OnboardingCookiePresent(r)
		if !complete && nav.class != PathOnboarding && user.Role != RoleChild {
			return RouteDecision{RedirectTo: g.onboardingRedirect(r)}, nav
		}

		// Rule 3: the bare landing root goes to the signed-in home.
		if reqPath == routes.RootPath {
			return RouteDecision{RedirectTo: routes.HomePath}, nav
		}

		// Rule 4: the legacy app root normalizes to the landing page.
		if reqPath == routes.AppRootPath {
			return RouteDecision{RedirectTo: routes.LandingPath}, nav
		}
	} else if nav.class != PathPublic && nav.class != PathOnboarding {
		// Rule 5: no session, no non-public pages.
		return RouteDecision{RedirectTo: routes.LandingPath}, nav
	}

	// Rule 6: wrong role for a role-restricted area.
	if nav.authenticated && nav.class == PathRoleRestricted {
		if required, ok := routes.RequiredRole(reqPath); ok && sess.User.Role != required {
			return RouteDecision{RedirectTo: routes.LandingPath}, nav
		}
	}

	// Rule 7: allow.
	return RouteDecision{Allow: true}, nav
}

// Middleware applies the gate to every request: redirects denied
// navigations, attaches the one-time anonymous visitor cookie on the
// landing page, and exposes the resolved identity to downstream handlers.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	g.EnsureDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, nav := g.evaluate(r)
		if !decision.Allow {
			http.Redirect(w, r, decision.RedirectTo, http.StatusFound)
			return
		}

		if !nav.authenticated && r.URL.Path == g.Routes.LandingPath {
			g.ensureVisitorCookie(w, r)
		}

		if nav.authenticated {
			r = r.WithContext(context.WithValue(r.Context(), identityContextKey{}, nav.session.User))
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext returns the identity the gate resolved for this
// navigation, nil when unauthenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}

// resolve finds the visitor's access token (server session first, cookie
// fallback) and asks the provider who it belongs to.
func (g *Gate) resolve(r *http.Request) (*Session, error) {
	token := ""
	if g.Session != nil {
		token = g.Session.GetString(r.Context(), g.AuthTokenSessionVar)
	}
	if token == "" {
		if c, err := r.Cookie(g.AuthTokenCookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return nil, nil
	}
	return g.Provider.ResolveSession(r.Context(), token)
}

// onboardingRedirect builds the onboarding entry URL carrying the marker and
// the url-encoded original path+query to return to.
func (g *Gate) onboardingRedirect(r *http.Request) string {
	returnTo := r.URL.Path
	if r.URL.RawQuery != "" {
		returnTo += "?" + r.URL.RawQuery
	}
	encoded := strings.ReplaceAll(url.QueryEscape(returnTo), "+", "%20")
	return fmt.Sprintf("%s?onboarding=1&returnTo=%s", g.Routes.OnboardingPath, encoded)
}

// ensureVisitorCookie attaches the long-lived anonymous correlation id
// exactly once; an existing cookie is never overwritten.
func (g *Gate) ensureVisitorCookie(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(g.VisitorCookieName); err == nil && c.Value != "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.VisitorCookieName,
		Value:    uuid.New().String(),
		Path:     "/",
		MaxAge:   visitorCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
