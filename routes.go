package authgate

import (
	"path"
	"strings"
)

// PathClass is the route taxonomy the gate's decision table runs on.
type PathClass string

const (
	PathAsset          PathClass = "asset"
	PathPublic         PathClass = "public"
	PathOnboarding     PathClass = "onboarding"
	PathRoleRestricted PathClass = "role_restricted"
	PathProtected      PathClass = "protected"
)

// RouteTable classifies request paths by prefix match. Zero values get the
// platform's defaults via EnsureDefaults.
type RouteTable struct {
	// RootPath is the bare landing root ("/"): authenticated visitors get
	// normalized to HomePath from here.
	RootPath string

	// LandingPath is the public landing page and the universal fail-safe
	// redirect target.
	LandingPath string

	// AppRootPath is the legacy application root, normalized to LandingPath.
	AppRootPath string

	// HomePath is the canonical signed-in home.
	HomePath string

	// OnboardingPath is the onboarding entry point; it must classify as an
	// onboarding path so the gate never redirects to itself.
	OnboardingPath string

	// OnboardingPrefixes are further paths in the onboarding/term-plan flow.
	OnboardingPrefixes []string

	// PublicPrefixes are reachable without a session.
	PublicPrefixes []string

	// RoleRestricted maps a path prefix to the role required to enter it.
	RoleRestricted map[string]Role

	// AssetPrefixes are the framework's internal static/image paths.
	AssetPrefixes []string
}

// EnsureDefaults fills in the platform's route map.
func (t *RouteTable) EnsureDefaults() *RouteTable {
	if t.RootPath == "" {
		t.RootPath = "/"
	}
	if t.LandingPath == "" {
		t.LandingPath = "/landing"
	}
	if t.AppRootPath == "" {
		t.AppRootPath = "/app"
	}
	if t.HomePath == "" {
		t.HomePath = "/home"
	}
	if t.OnboardingPath == "" {
		t.OnboardingPath = "/onboarding"
	}
	if t.OnboardingPrefixes == nil {
		t.OnboardingPrefixes = []string{"/plan"}
	}
	if t.PublicPrefixes == nil {
		t.PublicPrefixes = []string{
			t.RootPath,
			t.LandingPath,
			t.HomePath,
			"/login",
			"/register",
			"/child-login",
			"/auth/email",
			"/auth/child",
			"/auth/confirm",
			"/auth/callback",
		}
	}
	if t.RoleRestricted == nil {
		t.RoleRestricted = map[string]Role{
			"/child-home": RoleChild,
			"/practice":   RoleChild,
			"/reports":    RoleGuardian,
			"/children":   RoleGuardian,
			"/billing":    RoleGuardian,
		}
	}
	if t.AssetPrefixes == nil {
		t.AssetPrefixes = []string{"/_static/", "/_image/", "/favicon.ico"}
	}
	return t
}

// Classify buckets a request path. Precedence: assets, then the onboarding
// flow, then role-restricted areas, then the public set; everything else is
// protected.
func (t *RouteTable) Classify(p string) PathClass {
	t.EnsureDefaults()
	switch {
	case t.isAsset(p):
		return PathAsset
	case t.isOnboarding(p):
		return PathOnboarding
	default:
		if _, ok := t.RequiredRole(p); ok {
			return PathRoleRestricted
		}
		if t.isPublic(p) {
			return PathPublic
		}
		return PathProtected
	}
}

// RequiredRole returns the role a role-restricted path demands.
func (t *RouteTable) RequiredRole(p string) (Role, bool) {
	for prefix, role := range t.RoleRestricted {
		if matchesPrefix(p, prefix) {
			return role, true
		}
	}
	return "", false
}

func (t *RouteTable) isAsset(p string) bool {
	for _, prefix := range t.AssetPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	// Anything with a file extension is a static asset.
	return path.Ext(p) != ""
}

func (t *RouteTable) isOnboarding(p string) bool {
	if matchesPrefix(p, t.OnboardingPath) {
		return true
	}
	for _, prefix := range t.OnboardingPrefixes {
		if matchesPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (t *RouteTable) isPublic(p string) bool {
	for _, prefix := range t.PublicPrefixes {
		if matchesPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// matchesPrefix is a path-segment-aware prefix match: "/register" covers
// "/register" and "/register/child" but not "/registering". The bare root
// only matches itself.
func matchesPrefix(p, prefix string) bool {
	if prefix == "/" {
		return p == "/"
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}
