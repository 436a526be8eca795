package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/infra/config"
	"github.com/arklim/social-platform-login/internal/transport/http/handlers"
	"github.com/arklim/social-platform-login/internal/transport/http/middleware"
)

const defaultLoginPath = "/login"

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Dispatcher  handlers.Dispatcher
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Dispatcher != nil {
		path := deps.Config.Login.LoginPath
		if path == "" {
			path = defaultLoginPath
		}
		loginHandler := handlers.NewLoginHandler(deps.Dispatcher, deps.Logger)
		loginHandler.RegisterRoutes(r, path, buildLoginMiddlewares(deps)...)
	}

	return r
}

// buildLoginMiddlewares limits form submissions per client IP. Each action that sends mail or
// checks a password gets its own bucket.
func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	settings := deps.Config.RateLimit
	window := settings.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	ip := middleware.ClientIPIdentifier()
	rules := []middleware.RateLimitRule{
		{
			Name:       "login_ip",
			Limit:      settings.LoginMaxAttempts,
			Window:     window,
			Identifier: middleware.ActionSubmission(ip, domain.ActionLogin),
		},
		{
			Name:       "lostpassword_ip",
			Limit:      settings.LostPasswordMax,
			Window:     window,
			Identifier: middleware.ActionSubmission(ip, domain.ActionLostPassword),
		},
		{
			Name:       "register_ip",
			Limit:      settings.RegisterMaxAttempts,
			Window:     window,
			Identifier: middleware.ActionSubmission(ip, domain.ActionRegister),
		},
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rules...)}
}
