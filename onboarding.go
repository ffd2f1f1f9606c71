package authgate

import (
	"context"
	"net/http"
	"time"
)

// OnboardingCookieName is the client-visible optimistic cache of a confirmed
// onboarding completion. Render-time only; provider metadata stays
// authoritative.
const OnboardingCookieName = "onboarding_complete"

// OnboardingResult is the structured outcome of completing onboarding.
// CookieConfirmed tells the HTTP layer it may now set the optimistic cookie;
// the cookie is never set speculatively.
type OnboardingResult struct {
	Success         bool       `json:"success"`
	CookieConfirmed bool       `json:"-"`
	Error           *AuthError `json:"error,omitempty"`
}

// CompleteOnboarding records the explicit "onboarding finished" action: it
// writes the provider metadata flag and, on confirmed success, moves the
// state machine from AUTHENTICATED_INCOMPLETE to AUTHENTICATED_COMPLETE.
func (s *Service) CompleteOnboarding(ctx context.Context) OnboardingResult {
	s.EnsureDefaults()

	st := s.CurrentState()
	if !st.IsAuthenticated {
		return OnboardingResult{Error: NewAuthError(ErrCodeExpiredSession, "You need to be signed in to finish setup.", "")}
	}
	if st.User.Role == RoleChild {
		return OnboardingResult{Error: NewAuthError(ErrCodeInvalidCreds, "Only a guardian account can finish setup.", "")}
	}

	done := true
	identity, err := s.Provider.UpdateUser(ctx, UserUpdate{OnboardingComplete: &done})
	if err != nil {
		return OnboardingResult{Error: AsAuthError(err)}
	}

	s.mu.Lock()
	s.pushSeq++
	if s.session != nil {
		s.session.User = identity
	}
	next := AuthState{
		User:            identity,
		IsAuthenticated: true,
		LastChecked:     s.Now(),
	}
	subs := s.applyLocked(next)
	s.mu.Unlock()
	notify(subs, next)

	return OnboardingResult{Success: true, CookieConfirmed: true}
}

// SetOnboardingCookie marks onboarding complete for render-time checks.
// Only call after a confirmed completion.
func SetOnboardingCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   OnboardingCookieName,
		Value:  "1",
		Path:   "/",
		MaxAge: int((365 * 24 * time.Hour).Seconds()),
	})
}

// ClearOnboardingCookie removes the flag; called on logout.
func ClearOnboardingCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:    OnboardingCookieName,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
}

// OnboardingCookiePresent reports whether the optimistic flag is set on the
// request.
func OnboardingCookiePresent(r *http.Request) bool {
	c, err := r.Cookie(OnboardingCookieName)
	return err == nil && c.Value == "1"
}
