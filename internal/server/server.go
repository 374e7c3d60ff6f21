package server

import (
	"context"
	"net/http"
	"time"

	"github.com/fauter/cochera-admin/internal/admin"
	admindomain "github.com/fauter/cochera-admin/internal/admin/domain"
	"github.com/fauter/cochera-admin/internal/audit"
	auditdomain "github.com/fauter/cochera-admin/internal/audit/domain"
	"github.com/fauter/cochera-admin/internal/authorization"
	"github.com/fauter/cochera-admin/internal/authprovider"
	"github.com/fauter/cochera-admin/internal/building"
	"github.com/fauter/cochera-admin/internal/config"
	"github.com/fauter/cochera-admin/internal/garage"
	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	"github.com/fauter/cochera-admin/internal/observability"
	obsmiddleware "github.com/fauter/cochera-admin/internal/observability/logger"
	obsmetrics "github.com/fauter/cochera-admin/internal/observability/metrics"
	obstracing "github.com/fauter/cochera-admin/internal/observability/tracing"
	"github.com/fauter/cochera-admin/internal/pricing"
	pricingdomain "github.com/fauter/cochera-admin/internal/pricing/domain"
	"github.com/fauter/cochera-admin/internal/profile"
	"github.com/fauter/cochera-admin/internal/providers"
	"github.com/fauter/cochera-admin/internal/ratelimit"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/internal/routing"
	"github.com/fauter/cochera-admin/internal/session"
	"github.com/fauter/cochera-admin/internal/staff"
	staffdomain "github.com/fauter/cochera-admin/internal/staff/domain"
	"github.com/fauter/cochera-admin/internal/surcharge"
	"github.com/fauter/cochera-admin/pkg/rls"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	ratelimit.Module,
	providers.Module,
	authprovider.Module,
	profile.Module,
	session.Module,
	garage.Module,
	building.Module,
	pricing.Module,
	surcharge.Module,
	staff.Module,
	routing.Module,
	audit.Module,
	authorization.Module,
	admin.Module,
	fx.Provide(func(c *authprovider.Client) SignUpClient { return c }),
	fx.Provide(func(r *profile.Resolver) ProfileWriter { return r }),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// SignUpClient creates accounts at the hosted auth provider.
type SignUpClient interface {
	SignUp(ctx context.Context, email, password, fullName string) (*authprovider.SignUpResult, error)
}

// ProfileWriter stores the profile row of a new account.
type ProfileWriter interface {
	Upsert(ctx context.Context, claims rls.Claims, p profile.Profile) error
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	cookies      *session.Cookies
	registry     *session.Registry
	signup       SignUpClient
	profiles     ProfileWriter
	dispatcher   *routing.Dispatcher
	scope        *routing.ScopeGuard
	garageSvc    garagedomain.Service
	buildingSvc  *building.Service
	pricingSvc   pricingdomain.Service
	surchargeSvc *surcharge.Service
	staffSvc     staffdomain.Service
	adminSvc     admindomain.Service
	auditSvc     auditdomain.Service
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Cookies      *session.Cookies
	Registry     *session.Registry
	SignUp       SignUpClient
	Profiles     ProfileWriter
	Dispatcher   *routing.Dispatcher
	Scope        *routing.ScopeGuard
	GarageSvc    garagedomain.Service
	BuildingSvc  *building.Service
	PricingSvc   pricingdomain.Service
	SurchargeSvc *surcharge.Service
	StaffSvc     staffdomain.Service
	AdminSvc     admindomain.Service
	AuditSvc     auditdomain.Service `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		cookies:      p.Cookies,
		registry:     p.Registry,
		signup:       p.SignUp,
		profiles:     p.Profiles,
		dispatcher:   p.Dispatcher,
		scope:        p.Scope,
		garageSvc:    p.GarageSvc,
		buildingSvc:  p.BuildingSvc,
		pricingSvc:   p.PricingSvc,
		surchargeSvc: p.SurchargeSvc,
		staffSvc:     p.StaffSvc,
		adminSvc:     p.AdminSvc,
		auditSvc:     p.AuditSvc,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerSessionRoutes()
	svc.registerGarageRoutes()
	svc.registerStaffRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth", s.SessionContext())

	auth.POST("/login", s.Login)
	auth.POST("/signup", s.SignUp)
	auth.POST("/employee-login", s.EmployeeLogin)
	auth.POST("/logout", s.Logout)
}

func (s *Server) registerSessionRoutes() {
	api := s.engine.Group("/api", s.SessionContext())

	api.GET("/session", s.GetSession)
	api.POST("/session/reset", s.ResetSession)
	api.GET("/navigate", s.Navigate)
}

func (s *Server) registerGarageRoutes() {
	api := s.engine.Group("/api", s.SessionContext(), s.AuthRequired())

	api.GET("/garages", s.ListGarages)
	api.POST("/garages", s.CreateGarage)

	g := api.Group("/garages/:garage_id", s.GarageScope())
	{
		g.GET("", s.GetGarage)
		g.PATCH("", s.UpdateGarage)
		g.DELETE("", s.DeleteGarage)
		g.GET("/nav", s.GarageNav)

		structure := g.Group("", s.RequireSection(role.SectionEstructura))
		structure.GET("/structure", s.GetStructure)
		structure.PUT("/structure", s.ApplyStructure)
		structure.PATCH("/levels/:level_id", s.UpdateLevelCapacity)

		prices := g.Group("", s.RequireSection(role.SectionPrecios))
		prices.GET("/vehicle-types", s.ListVehicleTypes)
		prices.POST("/vehicle-types", s.CreateVehicleType)
		prices.PATCH("/vehicle-types/:id", s.UpdateVehicleType)
		prices.DELETE("/vehicle-types/:id", s.DeleteVehicleType)
		prices.GET("/tariffs", s.ListTariffs)
		prices.POST("/tariffs", s.CreateTariff)
		prices.PATCH("/tariffs/:id", s.UpdateTariff)
		prices.DELETE("/tariffs/:id", s.DeleteTariff)
		prices.GET("/prices", s.GetPriceMatrix)
		prices.PUT("/prices", s.UpsertPrice)
		prices.GET("/prices/export.pdf", s.ExportPriceSheet)

		surcharges := g.Group("/surcharges", s.RequireSection(role.SectionRecargos))
		surcharges.GET("", s.GetSurcharges)
		surcharges.PUT("/default", s.SaveDefaultSurcharge)
		surcharges.PUT("/months/:month", s.SaveMonthSurcharge)
		surcharges.DELETE("/months/:month", s.DeleteMonthSurcharge)
	}
}

func (s *Server) registerStaffRoutes() {
	staffGroup := s.engine.Group("/api/staff", s.SessionContext(), s.AuthRequired())

	staffGroup.GET("", s.ListStaff)
	staffGroup.POST("", s.CreateStaff)
	staffGroup.GET("/:id", s.GetStaff)
	staffGroup.PATCH("/:id", s.UpdateStaff)
	staffGroup.DELETE("/:id", s.DeleteStaff)
}

func (s *Server) registerAdminRoutes() {
	adminGroup := s.engine.Group("/api/admin", s.SessionContext(), s.AuthRequired())

	adminGroup.GET("/garages", s.AdminListGarages)
	adminGroup.POST("/factory-reset", s.FactoryReset)
	adminGroup.GET("/diagnostics", s.Diagnostics)
	adminGroup.GET("/audit-logs", s.ListAuditLogs)
}
