package server

import (
	"context"
	"net/http"

	"github.com/fauter/cochera-admin/internal/profile"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/internal/routing"
	"github.com/fauter/cochera-admin/internal/session"
	"github.com/gin-gonic/gin"
)

type shadowView struct {
	ID          string                  `json:"id"`
	FullName    string                  `json:"full_name"`
	Role        role.Role               `json:"role"`
	OwnerID     string                  `json:"owner_id"`
	GarageID    string                  `json:"garage_id,omitempty"`
	Permissions role.PermissionDocument `json:"permissions"`
}

// SessionView is what the dashboard shell renders from.
type SessionView struct {
	Phase             routing.Phase          `json:"phase"`
	Authenticated     bool                   `json:"authenticated"`
	Kind              string                 `json:"kind"`
	UserID            string                 `json:"user_id,omitempty"`
	Email             string                 `json:"email,omitempty"`
	Profile           *profile.Profile       `json:"profile,omitempty"`
	ProfileSettled    bool                   `json:"profile_settled"`
	Shadow            *shadowView            `json:"shadow,omitempty"`
	Routed            bool                   `json:"routed"`
	Sections          []role.Section         `json:"sections"`
	Watchdog          session.WatchdogStatus `json:"watchdog"`
	OfferFactoryReset bool                   `json:"offer_factory_reset"`
}

func (s *Server) sessionView(ctx context.Context, st *session.Store) SessionView {
	snap := st.Snapshot()
	ctx = withIdentity(ctx, snap)
	p, ok := snap.Principal()

	view := SessionView{
		Phase:          routing.PhaseOf(snap),
		Authenticated:  snap.Identity.Authenticated(),
		Kind:           snap.Identity.Kind().String(),
		UserID:         snap.Identity.UserID(),
		Profile:        snap.Profile,
		ProfileSettled: snap.ProfileSettled,
		Routed:         snap.Routed,
		Sections:       visibleSections(p, ok),
		Watchdog:       st.Watchdog(),
	}
	if std := snap.Identity.Standard; std != nil {
		view.Email = std.Email
		view.OfferFactoryReset = s.adminSvc.OfferFactoryReset(ctx, std.UserID, std.Email)
	}
	if sh := snap.Identity.Shadow; sh != nil {
		view.Shadow = &shadowView{
			ID:          sh.ID,
			FullName:    sh.FullName,
			Role:        sh.Role,
			OwnerID:     sh.OwnerID,
			GarageID:    sh.GarageID,
			Permissions: sh.Permissions,
		}
	}
	return view
}

func (s *Server) GetSession(c *gin.Context) {
	st, err := storeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionView(c.Request.Context(), st))
}

// ResetSession is the manual recovery offered by the watchdog. It drops all
// local session state without contacting the provider.
func (s *Server) ResetSession(c *gin.Context) {
	st, err := storeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := st.HardReset(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionView(c.Request.Context(), st))
}

// Navigate asks the route guard what to do with a client-side navigation.
func (s *Server) Navigate(c *gin.Context) {
	st, err := storeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ctx := withIdentity(c.Request.Context(), st.Snapshot())
	c.JSON(http.StatusOK, s.dispatcher.Decide(ctx, st, c.Query("path")))
}
