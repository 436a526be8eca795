package domain

import "testing"

func TestUserDefaultLanding(t *testing.T) {
	cases := []struct {
		name         string
		capabilities []string
		want         Landing
	}{
		{name: "editor", capabilities: []string{CapabilityRead, CapabilityEditPosts}, want: LandingAdmin},
		{name: "subscriber", capabilities: DefaultCapabilities(), want: LandingProfile},
		{name: "no capabilities", want: LandingHome},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user := User{Capabilities: tc.capabilities}
			if got := user.DefaultLanding(); got != tc.want {
				t.Fatalf("expected landing %d, got %d", tc.want, got)
			}
		})
	}
}

func TestUserCanManageSite(t *testing.T) {
	if (User{Capabilities: []string{CapabilityRead}}).CanManageSite() {
		t.Fatal("subscriber must not manage the site")
	}
	if !(User{Capabilities: []string{CapabilityManageOptions}}).CanManageSite() {
		t.Fatal("expected administrator to manage the site")
	}
}
