package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ankit50/mediMeet/internal/config"
	accounthandler "github.com/ankit50/mediMeet/internal/handler/account"
	appointmenthandler "github.com/ankit50/mediMeet/internal/handler/appointment"
	availabilityhandler "github.com/ankit50/mediMeet/internal/handler/availability"
	credithandler "github.com/ankit50/mediMeet/internal/handler/credit"
	healthhandler "github.com/ankit50/mediMeet/internal/handler/health"
	"github.com/ankit50/mediMeet/internal/middleware"
	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/pkg/auth"
	"github.com/ankit50/mediMeet/pkg/validator"
)

type Handlers struct {
	Account      *accounthandler.Handler
	Appointment  *appointmenthandler.Handler
	Availability *availabilityhandler.Handler
	Credit       *credithandler.Handler
	Health       *healthhandler.Handler
}

// New wires the full HTTP surface. Route groups are split by required
// role so authorization lives in one place instead of inside handlers.
func New(cfg *config.Config, logger zerolog.Logger, jwtService auth.JWTService, h Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	validator.Register()
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}

	h.Health.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := r.Group("/api/v1")

	authed := r.Group("/api/v1")
	authed.Use(middleware.Auth(jwtService))

	patient := r.Group("/api/v1")
	patient.Use(middleware.Auth(jwtService), middleware.RequireRole(model.RolePatient))

	doctor := r.Group("/api/v1")
	doctor.Use(middleware.Auth(jwtService), middleware.RequireRole(model.RoleDoctor))

	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.Auth(jwtService), middleware.RequireRole(model.RoleAdmin))

	h.Account.RegisterRoutes(public, authed, admin)
	h.Availability.RegisterRoutes(public, doctor)
	h.Appointment.RegisterRoutes(authed, patient, doctor)
	h.Credit.RegisterRoutes(authed)

	return r
}
