package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	auditdomain "github.com/fauter/cochera-admin/internal/audit/domain"
	"github.com/fauter/cochera-admin/internal/authprovider"
	"github.com/fauter/cochera-admin/internal/profile"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/internal/session"
	"github.com/fauter/cochera-admin/pkg/rls"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// passwordSigner is the provider session capability behind /auth/login.
type passwordSigner interface {
	SignInWithPassword(ctx context.Context, email, password string) (*session.Standard, error)
}

// tokenAdopter stores a token obtained outside of a password grant.
type tokenAdopter interface {
	Adopt(ctx context.Context, tok *authprovider.Token) (*session.Standard, error)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type EmployeeLoginRequest struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		AbortWithError(c, newValidationError("email", "required", "email and password are required"))
		return
	}

	st, err := storeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	signer, ok := s.registry.Backend(c.GetString(contextClientIDKey)).(passwordSigner)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	ctx := c.Request.Context()
	std, err := signer.SignInWithPassword(ctx, email, req.Password)
	if err != nil {
		s.obsMetrics.RecordSignIn(ctx, "standard", signInResult(err))
		s.audit(ctx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeUser,
			Action:     "user.login_failed",
			TargetType: "user",
			Metadata:   map[string]any{"email": email, "reason": signInResult(err)},
		})
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordSignIn(ctx, "standard", "ok")
	s.audit(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    std.UserID,
		Action:     "user.login",
		TargetType: "user",
		TargetID:   std.UserID,
		Metadata:   map[string]any{"email": email},
	})

	c.JSON(http.StatusOK, s.sessionView(ctx, st))
}

func (s *Server) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		AbortWithError(c, newValidationError("email", "required", "email is required"))
		return
	}

	st, err := storeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	res, err := s.signup.SignUp(ctx, email, req.Password, req.FullName)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    res.UserID,
		Action:     "user.signup",
		TargetType: "user",
		TargetID:   res.UserID,
		Metadata:   map[string]any{"email": email},
	})

	// Providers that require e-mail confirmation return no session; the
	// profile row is then created on the first sign-in.
	if res.Token == nil {
		c.JSON(http.StatusAccepted, gin.H{"confirmation_required": true})
		return
	}

	adopter, ok := s.registry.Backend(c.GetString(contextClientIDKey)).(tokenAdopter)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	std, err := adopter.Adopt(ctx, res.Token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	p := profile.Provisional(std.UserID, std.Email, std.Claims.UserMetadata, std.Claims.AppMetadata)
	if name := strings.TrimSpace(req.FullName); name != "" {
		p.FullName = name
	}
	p.Role = profile.DefaultRole
	claims := rls.Claims{
		Subject:  std.UserID,
		Role:     "authenticated",
		Email:    std.Email,
		AppMeta:  std.Claims.AppMetadata,
		UserMeta: std.Claims.UserMetadata,
	}
	if err := s.profiles.Upsert(ctx, claims, p); err != nil {
		// The session stays valid with a provisional profile.
		s.log.Warn("profile upsert after sign-up failed",
			zap.String("user_id", std.UserID),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusCreated, s.sessionView(ctx, st))
}

func (s *Server) EmployeeLogin(c *gin.Context) {
	var req EmployeeLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	st, err := storeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	rec, err := s.staffSvc.Login(ctx, req.Username, req.Secret)
	if err != nil {
		s.obsMetrics.RecordSignIn(ctx, "shadow", signInResult(err))
		AbortWithError(c, err)
		return
	}
	shadow, err := st.EstablishShadow(ctx, *rec)
	if err != nil {
		s.obsMetrics.RecordSignIn(ctx, "shadow", "invalid_record")
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordSignIn(ctx, "shadow", "ok")
	s.audit(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeEmployee,
		ActorID:    shadow.ID,
		Action:     "employee.login",
		TargetType: "employee",
		TargetID:   shadow.ID,
		Metadata:   map[string]any{"owner_id": shadow.OwnerID, "role": string(shadow.Role)},
	})

	c.JSON(http.StatusOK, s.sessionView(ctx, st))
}

// Logout always ends the local session; the provider call is bounded by the
// store's sign-out deadline.
func (s *Server) Logout(c *gin.Context) {
	st, err := storeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := st.SignOut(c.Request.Context()); err != nil {
		if errors.Is(err, session.ErrStoreDisposed) {
			AbortWithError(c, err)
			return
		}
		s.log.Warn("sign-out left storage behind", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "signed_out"})
}

func signInResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, authprovider.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, authprovider.ErrEmailNotConfirmed):
		return "email_not_confirmed"
	case errors.Is(err, authprovider.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, authprovider.ErrProviderUnavailable):
		return "provider_unavailable"
	}
	_, payload := mapError(err)
	return payload.Type
}

func (s *Server) audit(ctx context.Context, entry auditdomain.Entry) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, entry)
}

// visibleSections is the navigation menu of the signed-in principal, if any.
func visibleSections(p role.Principal, ok bool) []role.Section {
	if !ok {
		return []role.Section{}
	}
	return role.VisibleSections(p)
}
