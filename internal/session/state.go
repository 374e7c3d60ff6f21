package session

import (
	"time"

	"github.com/fauter/cochera-admin/internal/profile"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/pkg/rls"
)

// State is an immutable snapshot of a Store.
type State struct {
	Loading           bool
	LoadingSince      time.Time
	RecoveryAvailable bool
	Identity          Identity
	Profile           *profile.Profile
	// ProfileSettled is true once the profile can no longer change without an
	// identity change: the authoritative fetch finished or the identity is a
	// shadow.
	ProfileSettled bool
	// Routed is set once the canonical redirect has been issued.
	Routed bool
}

func (s State) clone() State {
	out := s
	out.Identity = s.Identity.clone()
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	return out
}

// Principal returns the role-bearing view of the identity. Standard identities
// need a profile, provisional or not.
func (s State) Principal() (role.Principal, bool) {
	switch {
	case s.Identity.Shadow != nil:
		sh := s.Identity.Shadow
		return role.Principal{
			ID:          sh.ID,
			Role:        sh.Role,
			Shadow:      true,
			OwnerID:     sh.OwnerID,
			Permissions: sh.Permissions,
		}, true
	case s.Identity.Standard != nil && s.Profile != nil:
		return role.Principal{
			ID:   s.Identity.Standard.UserID,
			Role: s.Profile.Role,
		}, true
	}
	return role.Principal{}, false
}

// Claims returns the row-level security claims for the identity. Shadow
// identities have no provider token and act as anon with their employee
// fields in app_metadata.
func (s State) Claims() rls.Claims {
	switch {
	case s.Identity.Standard != nil:
		return claimsFor(s.Identity.Standard)
	case s.Identity.Shadow != nil:
		sh := s.Identity.Shadow
		return rls.Claims{
			Subject: sh.ID,
			Role:    "anon",
			AppMeta: map[string]any{
				"employee_id": sh.ID,
				"owner_id":    sh.OwnerID,
				"role":        string(sh.Role),
			},
		}
	}
	return rls.Claims{Role: "anon"}
}

func claimsFor(std *Standard) rls.Claims {
	r := std.Claims.Role
	if r == "" {
		r = "authenticated"
	}
	return rls.Claims{
		Subject:  std.UserID,
		Role:     r,
		Email:    std.Email,
		AppMeta:  cloneMap(std.Claims.AppMetadata),
		UserMeta: cloneMap(std.Claims.UserMetadata),
	}
}
