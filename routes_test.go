package authgate_test

import (
	"testing"

	ag "github.com/tutorhive/authgate"
)

func TestRouteTableClassify(t *testing.T) {
	table := (&ag.RouteTable{}).EnsureDefaults()

	tests := []struct {
		path string
		want ag.PathClass
	}{
		{"/_static/chunks/main.js", ag.PathAsset},
		{"/_image/logo", ag.PathAsset},
		{"/favicon.ico", ag.PathAsset},
		{"/banner.png", ag.PathAsset},

		{"/", ag.PathPublic},
		{"/landing", ag.PathPublic},
		{"/home", ag.PathPublic},
		{"/login", ag.PathPublic},
		{"/register", ag.PathPublic},
		{"/register/guardian", ag.PathPublic},
		{"/child-login", ag.PathPublic},
		{"/auth/email", ag.PathPublic},
		{"/auth/child", ag.PathPublic},
		{"/auth/confirm", ag.PathPublic},

		{"/onboarding", ag.PathOnboarding},
		{"/onboarding/welcome", ag.PathOnboarding},
		{"/plan", ag.PathOnboarding},
		{"/plan/term", ag.PathOnboarding},

		{"/child-home", ag.PathRoleRestricted},
		{"/practice", ag.PathRoleRestricted},
		{"/practice/math", ag.PathRoleRestricted},
		{"/reports", ag.PathRoleRestricted},
		{"/children", ag.PathRoleRestricted},
		{"/billing", ag.PathRoleRestricted},

		{"/settings", ag.PathProtected},
		{"/registering", ag.PathProtected}, // prefix match is segment-aware
		{"/app", ag.PathProtected},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := table.Classify(tt.path); got != tt.want {
				t.Errorf("Classify(%q): expected %s, got %s", tt.path, tt.want, got)
			}
		})
	}
}

func TestRouteTableRequiredRole(t *testing.T) {
	table := (&ag.RouteTable{}).EnsureDefaults()

	tests := []struct {
		path     string
		wantRole ag.Role
		wantOK   bool
	}{
		{"/child-home", ag.RoleChild, true},
		{"/practice/math", ag.RoleChild, true},
		{"/reports", ag.RoleGuardian, true},
		{"/billing/history", ag.RoleGuardian, true},
		{"/settings", "", false},
		{"/practicemath", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			role, ok := table.RequiredRole(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("RequiredRole(%q): expected ok=%v, got %v", tt.path, tt.wantOK, ok)
			}
			if role != tt.wantRole {
				t.Errorf("RequiredRole(%q): expected %s, got %s", tt.path, tt.wantRole, role)
			}
		})
	}
}
