package domain

// Capability tokens checked by the login flows. A user holds a flat set of them.
const (
	CapabilityManageOptions = "manage_options"
	CapabilityEditPosts     = "edit_posts"
	CapabilityRead          = "read"
)

// DefaultCapabilities is assigned to self-registered users.
func DefaultCapabilities() []string {
	return []string{CapabilityRead}
}

// Landing names where a user ends up after logging in without an explicit destination.
type Landing int

const (
	LandingHome Landing = iota
	LandingProfile
	LandingAdmin
)

// DefaultLanding picks the post-login page from the user's capabilities. Authors and above
// reach the admin dashboard, readers their profile, everybody else the front page.
func (u User) DefaultLanding() Landing {
	switch {
	case u.HasCapability(CapabilityEditPosts):
		return LandingAdmin
	case u.HasCapability(CapabilityRead):
		return LandingProfile
	default:
		return LandingHome
	}
}

// CanManageSite reports whether the user may confirm site-wide settings such as the
// administration email.
func (u User) CanManageSite() bool {
	return u.HasCapability(CapabilityManageOptions)
}
