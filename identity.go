package authgate

import (
	"fmt"
	"time"
)

// Role identifies which kind of account an identity belongs to.
type Role string

const (
	RoleGuardian Role = "guardian"
	RoleChild    Role = "child"
)

// GuardianProfile holds the metadata fields a guardian account carries.
type GuardianProfile struct {
	Name               string `json:"name,omitempty"`
	OnboardingComplete bool   `json:"onboarding_complete"`
	PlanTier           string `json:"plan_tier,omitempty"`
}

// ChildProfile holds the metadata fields a child account carries.
// PINHash is a bcrypt hash of the child's sign-in PIN; the plain PIN is
// never stored.
type ChildProfile struct {
	Nickname      string `json:"nickname"`
	Age           int    `json:"age"`
	Grade         int    `json:"grade"`
	GuardianEmail string `json:"guardian_email"`
	PINHash       string `json:"pin_hash,omitempty"`
}

// Identity is the read-only cached copy of a provider user. Exactly one of
// Guardian or Child is set, matching Role - the provider's open metadata bag
// is decoded into these variants at the adapter boundary and nowhere else.
type Identity struct {
	ID       string
	Email    string
	Role     Role
	Guardian *GuardianProfile
	Child    *ChildProfile
}

// OnboardingComplete reports whether this identity has finished onboarding.
// Children never go through guardian onboarding, so they always count as
// complete.
func (id *Identity) OnboardingComplete() bool {
	if id == nil {
		return false
	}
	if id.Role == RoleChild {
		return true
	}
	return id.Guardian != nil && id.Guardian.OnboardingComplete
}

// DecodeIdentity validates a provider user record and its metadata bag into
// a typed Identity. Unknown roles and mismatched profile fields are rejected
// here so the rest of the codebase never touches the raw map.
func DecodeIdentity(id, email string, meta map[string]any) (*Identity, error) {
	if id == "" {
		return nil, fmt.Errorf("identity has no id")
	}

	role := RoleGuardian
	if r, ok := meta["role"].(string); ok && r != "" {
		role = Role(r)
	}

	out := &Identity{ID: id, Email: email, Role: role}
	switch role {
	case RoleGuardian:
		out.Guardian = &GuardianProfile{
			Name:               metaString(meta, "name"),
			OnboardingComplete: metaBool(meta, "onboarding_complete"),
			PlanTier:           metaString(meta, "plan_tier"),
		}
	case RoleChild:
		child := &ChildProfile{
			Nickname:      metaString(meta, "nickname"),
			Age:           metaInt(meta, "age"),
			Grade:         metaInt(meta, "grade"),
			GuardianEmail: metaString(meta, "guardian_email"),
			PINHash:       metaString(meta, "pin_hash"),
		}
		if child.Nickname == "" {
			return nil, fmt.Errorf("child identity %s has no nickname", id)
		}
		out.Child = child
	default:
		return nil, fmt.Errorf("unknown role %q for identity %s", role, id)
	}

	return out, nil
}

// MetadataMap flattens the typed profile back into the provider's metadata
// shape, for UpdateUser calls.
func (id *Identity) MetadataMap() map[string]any {
	meta := map[string]any{"role": string(id.Role)}
	switch {
	case id.Guardian != nil:
		meta["name"] = id.Guardian.Name
		meta["onboarding_complete"] = id.Guardian.OnboardingComplete
		if id.Guardian.PlanTier != "" {
			meta["plan_tier"] = id.Guardian.PlanTier
		}
	case id.Child != nil:
		meta["nickname"] = id.Child.Nickname
		meta["age"] = id.Child.Age
		meta["grade"] = id.Child.Grade
		meta["guardian_email"] = id.Child.GuardianEmail
		if id.Child.PINHash != "" {
			meta["pin_hash"] = id.Child.PINHash
		}
	}
	return meta
}

// Clone returns a deep copy so callers can hand out identities without
// sharing profile pointers.
func (id *Identity) Clone() *Identity {
	if id == nil {
		return nil
	}
	out := *id
	if id.Guardian != nil {
		g := *id.Guardian
		out.Guardian = &g
	}
	if id.Child != nil {
		c := *id.Child
		out.Child = &c
	}
	return &out
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

func metaBool(meta map[string]any, key string) bool {
	b, _ := meta[key].(bool)
	return b
}

// metaInt tolerates JSON numbers arriving as float64
func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// AuthState is the client-session view of who is signed in. It is replaced
// atomically on every transition and never partially mutated; all writes go
// through the Service.
type AuthState struct {
	User            *Identity
	IsAuthenticated bool
	IsLoading       bool
	Error           *AuthError
	LastChecked     time.Time
}

// Phase is the auth state machine position derived from an AuthState.
type Phase string

const (
	PhaseInit                    Phase = "INIT"
	PhaseUnauthenticated         Phase = "UNAUTHENTICATED"
	PhaseAuthenticatedIncomplete Phase = "AUTHENTICATED_INCOMPLETE"
	PhaseAuthenticatedComplete   Phase = "AUTHENTICATED_COMPLETE"
)

// Phase derives the state machine position. INIT lasts until the first
// check resolves.
func (s AuthState) Phase() Phase {
	if s.LastChecked.IsZero() {
		return PhaseInit
	}
	if !s.IsAuthenticated {
		return PhaseUnauthenticated
	}
	if s.User.OnboardingComplete() {
		return PhaseAuthenticatedComplete
	}
	return PhaseAuthenticatedIncomplete
}
