package authgate

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

// HashPIN hashes a child's sign-in PIN with bcrypt. The hash lives in the
// child's provider metadata; the plain PIN is never stored.
func HashPIN(pin string) (string, error) {
	if !pinPattern.MatchString(pin) {
		return "", NewAuthError(ErrCodeInvalidPIN, "PIN must be 4 to 6 digits.", "pin")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// FindChildFunc looks up a child identity by nickname. Backed by the
// guardian's roster at the provider.
type FindChildFunc func(ctx context.Context, nickname string) (*Identity, error)

// ChildSignInHandler handles the child sign-in form: nickname plus PIN,
// checked against the bcrypt hash in the child's metadata.
type ChildSignInHandler struct {
	// FindChild resolves the nickname. Required.
	FindChild FindChildFunc

	// OnSuccess is called with the authenticated child. Required; this is
	// where the host app establishes its session.
	OnSuccess func(child *Identity, w http.ResponseWriter, r *http.Request)

	// OnError may take over error rendering; return true when handled.
	OnError func(err *AuthError, w http.ResponseWriter, r *http.Request) bool

	// Form field names, defaulting to "nickname" and "pin".
	NicknameField string
	PINField      string
}

// EnsureDefaults fills in zero-valued configuration.
func (h *ChildSignInHandler) EnsureDefaults() *ChildSignInHandler {
	if h.NicknameField == "" {
		h.NicknameField = "nickname"
	}
	if h.PINField == "" {
		h.PINField = "pin"
	}
	return h
}

func (h *ChildSignInHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.EnsureDefaults()
	if h.FindChild == nil || h.OnSuccess == nil {
		http.Error(w, `{"error": "Child sign-in not configured"}`, http.StatusInternalServerError)
		return
	}

	nickname, pin, parseErr := h.parseForm(r)
	if parseErr != nil {
		h.handleError(parseErr, w, r)
		return
	}

	child, err := h.FindChild(r.Context(), nickname)
	if err != nil || child == nil || child.Role != RoleChild || child.Child == nil {
		if err != nil {
			log.Println("child lookup failed: ", err)
		}
		// Same message for unknown nickname and wrong PIN.
		h.handleError(NewAuthError(ErrCodeInvalidCreds, "That nickname or PIN isn't right.", "pin"), w, r)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(child.Child.PINHash), []byte(pin)) != nil {
		h.handleError(NewAuthError(ErrCodeInvalidCreds, "That nickname or PIN isn't right.", "pin"), w, r)
		return
	}

	h.OnSuccess(child, w, r)
}

func (h *ChildSignInHandler) parseForm(r *http.Request) (nickname, pin string, authErr *AuthError) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return "", "", NewAuthError("parse_error", "Error parsing form", "")
		}
		nickname = r.FormValue(h.NicknameField)
		pin = r.FormValue(h.PINField)
	} else {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return "", "", NewAuthError("parse_error", "Invalid post body", "")
		}
		nickname, _ = data[h.NicknameField].(string)
		pin, _ = data[h.PINField].(string)
	}

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return "", "", NewAuthError(ErrCodeMissingField, "Please enter a nickname.", "nickname")
	}
	if !pinPattern.MatchString(pin) {
		return "", "", NewAuthError(ErrCodeInvalidPIN, "PIN must be 4 to 6 digits.", "pin")
	}
	return nickname, pin, nil
}

func (h *ChildSignInHandler) handleError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if h.OnError != nil && h.OnError(err, w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	status := http.StatusUnauthorized
	if err.Code == ErrCodeMissingField || err.Code == ErrCodeInvalidPIN || err.Code == "parse_error" {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(err)
}
