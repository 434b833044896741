package router

import (
	"github.com/gin-gonic/gin"

	promhandler "github.com/jwalitptl/vaccination-api/internal/handler/prometheus"
	"github.com/jwalitptl/vaccination-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   Handler
	handlers []Handler
	metrics  *promhandler.Handler
	config   RouterConfig
}

type RouterConfig struct {
	Mode      string
	RateLimit middleware.RateLimiterConfig
	// RateLimitEnabled toggles the per-client token bucket.
	RateLimitEnabled bool
	MetricsPath      string
}

// NewRouter wires the middleware chain. health is public; handlers are
// mounted behind the actor middleware. A nil metrics handler disables
// request metrics and the scrape endpoint.
func NewRouter(
	auth *middleware.AuthMiddleware,
	health Handler,
	metrics *promhandler.Handler,
	config RouterConfig,
	handlers ...Handler,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		health:   health,
		handlers: handlers,
		metrics:  metrics,
		config:   config,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.ErrorHandler(),
	)
	if metrics != nil {
		engine.Use(metrics.Middleware())
	}
	if config.RateLimitEnabled {
		engine.Use(middleware.NewRateLimiter(config.RateLimit).RateLimit())
	}

	return r
}

func (r *Router) Setup() {
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

	if r.health != nil {
		r.health.RegisterRoutes(api)
	}

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	for _, h := range r.handlers {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
