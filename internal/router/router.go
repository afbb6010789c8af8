package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-queue/internal/handler/appointment"
	authHandler "github.com/jwalitptl/clinic-queue/internal/handler/auth"
	"github.com/jwalitptl/clinic-queue/internal/handler/broadcast"
	"github.com/jwalitptl/clinic-queue/internal/handler/clinic"
	"github.com/jwalitptl/clinic-queue/internal/handler/control"
	"github.com/jwalitptl/clinic-queue/internal/handler/directory"
	"github.com/jwalitptl/clinic-queue/internal/handler/health"
	"github.com/jwalitptl/clinic-queue/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-queue/internal/handler/realtime"
	"github.com/jwalitptl/clinic-queue/internal/handler/stats"
	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/pkg/auth"
)

const (
	APIPrefix      = "/api/v1"
	realtimePrefix = APIPrefix + "/realtime"
)

// Handlers are the route groups the API serves. Metrics may be nil.
type Handlers struct {
	Auth        *authHandler.Handler
	Control     *control.Handler
	Clinic      *clinic.Handler
	Directory   *directory.Handler
	Appointment *appointment.Handler
	Broadcast   *broadcast.Handler
	Stats       *stats.Handler
	Realtime    *realtime.Handler
	Health      *health.Handler
	Metrics     *prometheus.Handler
}

type RouterConfig struct {
	ServiceName    string
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig
	Security       middleware.SecurityConfig
	SizeLimit      middleware.SizeLimitConfig

	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	LoginPerMinute   int
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	config   RouterConfig
	logger   zerolog.Logger
}

func NewRouter(auth *middleware.AuthMiddleware, handlers Handlers, config RouterConfig, logger zerolog.Logger) *Router {
	middleware.RegisterValidation()

	engine := gin.New()
	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		config:   config,
		logger:   logger,
	}

	engine.Use(
		middleware.Recovery(logger),
		middleware.RequestID(logger),
		middleware.Logger(logger, "/login"),
		middleware.ErrorHandler(logger),
	)
	if config.ServiceName != "" {
		engine.Use(otelgin.Middleware(config.ServiceName))
	}
	if handlers.Metrics != nil {
		engine.Use(handlers.Metrics.Middleware())
	}
	engine.Use(
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORS),
		middleware.SizeLimit(config.SizeLimit),
	)
	if config.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(config.RequestTimeout, realtimePrefix))
	}
	if config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}

	return r
}

// Setup mounts every route. Health and metrics live outside the API prefix
// so probes and scrapers skip auth.
func (r *Router) Setup() {
	if r.handlers.Health != nil {
		r.handlers.Health.RegisterRoutes(r.engine)
	}
	if r.handlers.Metrics != nil {
		r.handlers.Metrics.RegisterRoutes(r.engine)
	}

	api := r.engine.Group(APIPrefix)

	login := func(c *gin.Context) { c.Next() }
	if r.config.LoginPerMinute > 0 {
		login = middleware.NewRateLimiter(middleware.PerMinute(r.config.LoginPerMinute)).RateLimit()
	}
	r.handlers.Auth.RegisterRoutes(api, login)
	r.handlers.Control.RegisterRoutes(api, r.auth)
	r.handlers.Realtime.RegisterRoutes(api)

	admin := api.Group("/admin", r.auth.Protect(auth.RoleAdmin)...)
	public := api.Group("/public")

	r.handlers.Clinic.RegisterRoutes(admin, public)
	r.handlers.Directory.RegisterRoutes(admin, public)
	r.handlers.Appointment.RegisterRoutes(admin, public)
	r.handlers.Broadcast.RegisterRoutes(admin)
	r.handlers.Stats.RegisterRoutes(admin)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
