package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/medassist/booking-api/internal/handler/health"
	"github.com/medassist/booking-api/internal/handler/prometheus"
	"github.com/medassist/booking-api/internal/middleware"
	"github.com/medassist/booking-api/pkg/httputil"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	rateLimiter   *middleware.RateLimiter
	appointmentH  Handler
	availabilityH Handler
	healthH       *health.Handler
	metricsH      *prometheus.Handler
}

type RouterConfig struct {
	GinMode     string
	ServiceName string
	Tracing     bool
	// RateLimit is nil when rate limiting is off.
	RateLimit      *middleware.RateLimiterConfig
	AllowedOrigins []string
	Timeout        middleware.TimeoutConfig
	MaxBodySize    int64
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	appointmentH Handler,
	availabilityH Handler,
	healthH *health.Handler,
	metricsH *prometheus.Handler,
	config RouterConfig,
) *Router {
	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	}
	middleware.RegisterValidators()

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.NoRoute(func(c *gin.Context) {
		httputil.RespondWithStatus(c, http.StatusNotFound, "route not found")
	})
	engine.NoMethod(func(c *gin.Context) {
		httputil.RespondWithStatus(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	r := &Router{
		engine:        engine,
		auth:          auth,
		appointmentH:  appointmentH,
		availabilityH: availabilityH,
		healthH:       healthH,
		metricsH:      metricsH,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.ErrorLogger(),
		metricsH.Middleware(),
	)
	if config.Tracing {
		engine.Use(otelgin.Middleware(config.ServiceName))
	}
	engine.Use(
		middleware.CORS(config.AllowedOrigins),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
	)

	if config.RateLimit != nil {
		r.rateLimiter = middleware.NewRateLimiter(*config.RateLimit)
	}

	r.setup(config)
	return r
}

func (r *Router) setup(config RouterConfig) {
	r.engine.GET("/metrics", r.metricsH.Handler())

	api := r.engine.Group("/api/v1")
	r.healthH.RegisterRoutes(api)

	maxBody := config.MaxBodySize
	if maxBody <= 0 {
		maxBody = middleware.DefaultMaxBodySize
	}
	timeout := config.Timeout
	if timeout.Duration <= 0 {
		timeout = middleware.DefaultTimeoutConfig()
	}

	protected := api.Group("")
	protected.Use(
		middleware.Timeout(timeout),
		middleware.SizeLimit(maxBody),
		r.auth.Authenticate(),
	)
	if r.rateLimiter != nil {
		protected.Use(r.rateLimiter.RateLimit())
	}

	r.appointmentH.RegisterRoutes(protected)
	r.availabilityH.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
