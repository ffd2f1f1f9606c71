// Command hostapp is a small host application wiring the authgate pieces
// together: the remote identity provider, the auth state service, the route
// gate as middleware, the session monitor and expiry watcher, and a
// SQLite-backed child-profile outbox.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/caarlos0/env/v11"
	"github.com/gorilla/mux"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	ag "github.com/tutorhive/authgate"
	gormstore "github.com/tutorhive/authgate/stores/gorm"
)

type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	AuthBaseURL string `env:"AUTH_BASE_URL" envDefault:"http://localhost:9999"`
	AuthAPIKey  string `env:"AUTH_API_KEY"`

	// ChildrenAPIURL is the platform endpoint child profiles sync to.
	ChildrenAPIURL string `env:"CHILDREN_API_URL" envDefault:"http://localhost:9000/v1/children"`

	DBPath string `env:"DB_PATH" envDefault:"authgate.db"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parsing config: %v", err)
	}

	provider := ag.NewRemoteProvider(cfg.AuthBaseURL, cfg.AuthAPIKey)
	service := ag.NewService(provider)
	service.Start()
	defer service.Close()

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("opening outbox db: %v", err)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		log.Fatalf("migrating outbox db: %v", err)
	}
	outbox := ag.NewOutbox(gormstore.NewOutboxStore(db), childWriter(cfg))

	sessionManager := scs.New()
	sessionManager.Lifetime = 24 * time.Hour

	gate := (&ag.Gate{Provider: provider, Session: sessionManager}).EnsureDefaults()

	notifier := &ag.ConsoleNotifier{}
	monitor := ag.NewMonitor(service, notifier)
	monitor.Start()
	defer monitor.Stop()

	watcher := ag.NewExpiryWatcher(service, notifier)
	watcher.Start()
	defer watcher.Stop()

	app := &hostApp{
		cfg:            cfg,
		provider:       provider,
		service:        service,
		gate:           gate,
		outbox:         outbox,
		sessionManager: sessionManager,
	}

	r := mux.NewRouter()
	r.HandleFunc("/landing", app.page("Welcome to TutorHive")).Methods("GET")
	r.HandleFunc("/home", app.page("Home")).Methods("GET")
	r.HandleFunc("/child-home", app.page("Let's practice!")).Methods("GET")
	r.HandleFunc("/onboarding", app.page("Finish setting up your account")).Methods("GET")
	r.HandleFunc("/login", app.page("Sign in")).Methods("GET")
	r.HandleFunc("/child-login", app.page("Kid sign in")).Methods("GET")

	r.HandleFunc("/auth/email", app.handleEmailLogin).Methods("POST")
	r.Handle("/auth/child", app.childSignInHandler()).Methods("POST")
	r.HandleFunc("/auth/confirm", app.handleConfirm).Methods("GET")
	r.HandleFunc("/logout", app.handleLogout).Methods("POST")
	r.HandleFunc("/onboarding/complete", app.handleCompleteOnboarding).Methods("POST")
	// Draft capture happens during registration, before any session exists,
	// so it lives under the public /register flow.
	r.HandleFunc("/register/child-draft", app.handleAddDraft).Methods("POST")
	r.HandleFunc("/children/sync", app.handleSyncDrafts).Methods("POST")

	handler := sessionManager.LoadAndSave(gate.Middleware(r))

	slog.Info("hostapp listening", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatal(err)
	}
}

type hostApp struct {
	cfg            Config
	provider       *ag.RemoteProvider
	service        *ag.Service
	gate           *ag.Gate
	outbox         *ag.Outbox
	sessionManager *scs.SessionManager
}

// page renders a minimal placeholder page; real templates live in the web
// front end, the host app only needs navigable targets for the gate.
func (a *hostApp) page(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		who := ""
		if user := ag.IdentityFromContext(r.Context()); user != nil {
			who = fmt.Sprintf("<p>Signed in as %s (%s)</p>", user.Email, user.Role)
		}
		fmt.Fprintf(w, "<html><body><h1>%s</h1>%s</body></html>", title, who)
	}
}

func (a *hostApp) handleEmailLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, `{"error": "Error parsing form"}`, http.StatusBadRequest)
		return
	}
	res := a.service.LoginWithEmail(r.Context(), r.FormValue("email"))
	writeJSON(w, res, statusForResult(res.Error))
}

func (a *hostApp) childSignInHandler() http.Handler {
	return &ag.ChildSignInHandler{
		FindChild: a.findChild,
		OnSuccess: func(child *ag.Identity, w http.ResponseWriter, r *http.Request) {
			a.sessionManager.Put(r.Context(), "childUserId", child.ID)
			http.Redirect(w, r, "/child-home", http.StatusFound)
		},
	}
}

// handleConfirm is the email-link landing: the provider redirects here with
// a fresh token pair, which becomes both the provider session and the server
// session the gate resolves on later navigations. Any queued child drafts
// sync now that a guardian is signed in.
func (a *hostApp) handleConfirm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accessToken := q.Get("access_token")
	refreshToken := q.Get("refresh_token")

	sess, err := a.provider.AdoptSession(r.Context(), accessToken, refreshToken)
	if err != nil {
		slog.Warn("sign-in confirmation failed", "error", err)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	a.sessionManager.Put(r.Context(), a.gate.AuthTokenSessionVar, accessToken)

	if sess.User.Role == ag.RoleGuardian {
		if res := a.outbox.Sync(r.Context(), sess.User.Email); res.Error != nil {
			slog.Warn("child draft sync incomplete", "failed", res.Failed, "succeeded", res.Succeeded)
		}
	}

	returnTo := q.Get("returnTo")
	if returnTo == "" || returnTo[0] != '/' {
		returnTo = "/home"
	}
	http.Redirect(w, r, returnTo, http.StatusFound)
}

func (a *hostApp) handleLogout(w http.ResponseWriter, r *http.Request) {
	res := a.service.Logout(r.Context())
	if err := a.sessionManager.Destroy(r.Context()); err != nil {
		slog.Warn("destroying server session", "error", err)
	}
	ag.ClearOnboardingCookie(w)
	http.Redirect(w, r, res.RedirectTo, http.StatusFound)
}

func (a *hostApp) handleCompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	res := a.service.CompleteOnboarding(r.Context())
	if res.CookieConfirmed {
		ag.SetOnboardingCookie(w)
	}
	writeJSON(w, res, statusForResult(res.Error))
}

func (a *hostApp) handleAddDraft(w http.ResponseWriter, r *http.Request) {
	var draft ag.ChildDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, `{"error": "Invalid post body"}`, http.StatusBadRequest)
		return
	}
	saved, err := a.outbox.Add(&draft)
	if err != nil {
		if err == ag.ErrDraftExists {
			http.Error(w, `{"error": "That profile was already added"}`, http.StatusConflict)
			return
		}
		http.Error(w, `{"error": "Could not save the profile"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, saved, http.StatusOK)
}

func (a *hostApp) handleSyncDrafts(w http.ResponseWriter, r *http.Request) {
	user := ag.IdentityFromContext(r.Context())
	if user == nil || user.Role != ag.RoleGuardian {
		http.Error(w, `{"error": "Sign in as a guardian to sync profiles"}`, http.StatusUnauthorized)
		return
	}
	res := a.outbox.Sync(r.Context(), user.Email)
	writeJSON(w, res, statusForResult(res.Error))
}

// findChild resolves a nickname against the platform's children API.
func (a *hostApp) findChild(ctx context.Context, nickname string) (*ag.Identity, error) {
	u := a.cfg.ChildrenAPIURL + "?nickname=" + url.QueryEscape(nickname)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("children api returned %d", resp.StatusCode)
	}

	var payload struct {
		ID       string         `json:"id"`
		Email    string         `json:"email"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return ag.DecodeIdentity(payload.ID, payload.Email, payload.Metadata)
}

// childWriter pushes one queued child draft to the platform's children API.
func childWriter(cfg Config) ag.RemoteChildWriter {
	return func(ctx context.Context, draft *ag.ChildDraft, guardianEmail string) error {
		body, err := json.Marshal(map[string]any{
			"local_id":       draft.LocalID,
			"nickname":       draft.Nickname,
			"age":            draft.Age,
			"grade":          draft.Grade,
			"guardian_email": guardianEmail,
		})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.ChildrenAPIURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		// Conflict means an earlier sync already created this child.
		if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
			return fmt.Errorf("children api returned %d", resp.StatusCode)
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusForResult(authErr *ag.AuthError) int {
	if authErr == nil {
		return http.StatusOK
	}
	switch authErr.Code {
	case ag.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ag.ErrCodeExpiredSession:
		return http.StatusUnauthorized
	case ag.ErrCodeProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}
