package authgate

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// OTP request throttling, keyed per email. Defaults allow one request every
// 30 seconds with a small burst, matching the provider's own limits closely
// enough that users normally hit ours first with a friendlier message.
const (
	DefaultOTPInterval = 30 * time.Second
	DefaultOTPBurst    = 2
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks email syntax locally, before any network call.
func ValidateEmail(email string) *AuthError {
	if strings.TrimSpace(email) == "" {
		return NewAuthError(ErrCodeMissingField, "Please enter your email address.", "email")
	}
	if !emailPattern.MatchString(email) {
		return NewAuthError(ErrCodeInvalidEmail, "That doesn't look like a valid email address.", "email")
	}
	return nil
}

// LoginResult is the structured outcome of a sign-in request. It never
// carries a raw internal error.
type LoginResult struct {
	Success bool       `json:"success"`
	Error   *AuthError `json:"error,omitempty"`
}

type otpLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// LoginWithEmail validates the address, throttles repeated requests for the
// same email, then asks the provider to send a passwordless sign-in link.
func (s *Service) LoginWithEmail(ctx context.Context, email string) LoginResult {
	s.EnsureDefaults()
	email = strings.ToLower(strings.TrimSpace(email))

	if authErr := ValidateEmail(email); authErr != nil {
		return LoginResult{Error: authErr}
	}
	if authErr := s.allowOTP(email); authErr != nil {
		return LoginResult{Error: authErr}
	}

	err := s.Provider.SignInWithOTP(ctx, email, OTPOptions{
		RedirectTarget: s.ConfirmPath,
		CreateUser:     true,
	})
	if err != nil {
		log.Printf("sign-in link request failed for %s: %v", email, err)
		return LoginResult{Error: AsAuthError(err)}
	}
	return LoginResult{Success: true}
}

// allowOTP consults the per-email limiter, creating it on first use. Stale
// limiters are pruned opportunistically so the map does not grow with every
// address ever typed.
func (s *Service) allowOTP(email string) *AuthError {
	s.limMu.Lock()
	defer s.limMu.Unlock()

	if s.limiters == nil {
		s.limiters = make(map[string]*otpLimiter)
	}
	now := s.Now()
	for key, l := range s.limiters {
		if now.Sub(l.lastSeen) > time.Hour {
			delete(s.limiters, key)
		}
	}

	l, ok := s.limiters[email]
	if !ok {
		l = &otpLimiter{lim: rate.NewLimiter(rate.Every(DefaultOTPInterval), DefaultOTPBurst)}
		s.limiters[email] = l
	}
	l.lastSeen = now

	res := l.lim.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		ae := NewAuthError(ErrCodeRateLimited, "Too many sign-in emails requested. Please wait before trying again.", "email")
		ae.RetryAfter = delay
		return ae
	}
	return nil
}
