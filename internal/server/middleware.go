package server

import (
	"context"
	"strings"

	obscontext "github.com/fauter/cochera-admin/internal/observability/context"
	"github.com/fauter/cochera-admin/internal/orgcontext"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/internal/session"
	"github.com/fauter/cochera-admin/pkg/rls"
	"github.com/gin-gonic/gin"
)

const (
	contextClientIDKey = "client_id"
	contextTabIDKey    = "tab_id"
	garageParam        = "garage_id"
)

// SessionContext binds the request to the session store of its browser tab
// and, when someone is signed in, to their principal and database claims.
func (s *Server) SessionContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, tabID := s.cookies.Ensure(c)
		st, err := s.registry.Acquire(c.Request.Context(), clientID, tabID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextClientIDKey, clientID)
		c.Set(contextTabIDKey, tabID)

		ctx := session.WithStore(c.Request.Context(), st)
		c.Request = c.Request.WithContext(withIdentity(ctx, st.Snapshot()))
		c.Next()
	}
}

func withIdentity(ctx context.Context, snap session.State) context.Context {
	p, ok := snap.Principal()
	if !ok {
		return ctx
	}
	ctx = orgcontext.WithPrincipal(ctx, p)
	ctx = rls.WithContext(ctx, snap.Claims())
	return obscontext.WithActor(ctx, snap.Identity.Kind().String(), p.ID)
}

// AuthRequired refuses requests without a signed-in principal.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := orgcontext.PrincipalFromContext(c.Request.Context()); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// GarageScope runs the scope guard on the garage named in the path before any
// handler reads data of that garage.
func (s *Server) GarageScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		p, ok := orgcontext.PrincipalFromContext(ctx)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		garageID := strings.TrimSpace(c.Param(garageParam))
		res := s.scope.Check(ctx, p, garageID)
		if !res.Allowed {
			AbortWithError(c, &scopeError{redirect: res.Redirect, empty: res.Empty, reason: res.Reason})
			return
		}
		c.Request = c.Request.WithContext(obscontext.WithGarageID(ctx, garageID))
		c.Next()
	}
}

// RequireSection applies the navigation section gate to API calls backing
// that section.
func (s *Server) RequireSection(section role.Section) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := orgcontext.PrincipalFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !role.CanSee(p, section) {
			s.obsMetrics.RecordScopeDenial(c.Request.Context(), "section")
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func storeFromContext(c *gin.Context) (*session.Store, error) {
	st, ok := session.FromContext(c.Request.Context())
	if !ok {
		return nil, ErrUnauthorized
	}
	return st, nil
}

func principalFromContext(c *gin.Context) (role.Principal, error) {
	p, ok := orgcontext.PrincipalFromContext(c.Request.Context())
	if !ok {
		return role.Principal{}, ErrUnauthorized
	}
	return p, nil
}
