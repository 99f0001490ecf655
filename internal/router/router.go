package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/fulfillment-api/internal/config"
	"github.com/jwalitptl/fulfillment-api/internal/handler/health"
	"github.com/jwalitptl/fulfillment-api/internal/handler/prometheus"
	"github.com/jwalitptl/fulfillment-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   *health.Handler
	metrics  *prometheus.Handler
	handlers []Handler
	config   RouterConfig
}

type RouterConfig struct {
	Server      config.ServerConfig
	RateLimit   config.RateLimitConfig
	CORS        config.CORSConfig
	MetricsPath string
	Release     bool
}

// NewRouter wires the global middleware chain. metrics may be nil when metrics are disabled.
func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH *health.Handler,
	metrics *prometheus.Handler,
	cfg RouterConfig,
	handlers ...Handler,
) *Router {
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		health:   healthH,
		metrics:  metrics,
		handlers: handlers,
		config:   cfg,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.ErrorLogger(),
		middleware.SizeLimit(middleware.DefaultMaxBodySize),
	)
	if metrics != nil {
		engine.Use(metrics.Middleware())
	}
	engine.Use(middleware.CORS(cfg.CORS))
	if cfg.Server.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	}

	return r
}

func (r *Router) Setup() {
	r.health.RegisterRoutes(&r.engine.RouterGroup)
	if r.metrics != nil {
		path := r.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, r.metrics.Handler())
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	if r.config.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  rate.Limit(r.config.RateLimit.RequestsPerSecond),
			Burst: r.config.RateLimit.Burst,
		})
		protected.Use(limiter.RateLimit())
	}

	for _, h := range r.handlers {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
