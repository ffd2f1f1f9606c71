// Package authgate manages the authenticated session lifecycle for the
// tutoring platform's web front end: who is signed in, which pages they may
// visit, and what happens when a session quietly expires.
//
// The package separates the lifecycle into four cooperating pieces:
//
// Provider: the adapter to the hosted identity service (RemoteProvider).
// Everything else talks to the IdentityProvider interface, so the hosted
// service can be swapped for a fake in tests.
//
// Service: the single owner of the client-side AuthState. It caches checks
// inside a short freshness window, coalesces concurrent checks onto one
// provider call, and fans transitions out to subscribers. Sign-in (email
// link), logout and onboarding completion all go through it.
//
// Gate: the server-side route decision point. It classifies every request
// path, re-resolves the session per navigation, and either allows the
// request or redirects - to the landing page, the signed-in home, or the
// onboarding flow. Provider outages fail safe to signed-out.
//
// Watchers: Monitor re-validates the session on an interval and on
// visibility/connectivity events; ExpiryWatcher runs the expiry warning
// countdown with its extend and forced-logout outcomes.
//
// # Basic Usage
//
//	provider := authgate.NewRemoteProvider(baseURL, apiKey)
//	service := authgate.NewService(provider)
//	service.Start()
//
//	gate := &authgate.Gate{Provider: provider, Session: sessionManager}
//	router.Use(gate.Middleware)
//
//	monitor := authgate.NewMonitor(service, notifier)
//	monitor.Start()
//	watcher := authgate.NewExpiryWatcher(service, notifier)
//	watcher.Start()
//
// Child profiles captured before sign-up queue in an Outbox (see
// stores/ for the persistence backends) and sync once the guardian
// is signed in.
package authgate
