package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/infra/config"
	"github.com/arklim/social-platform-login/internal/infra/database"
	kafkainfra "github.com/arklim/social-platform-login/internal/infra/kafka"
	"github.com/arklim/social-platform-login/internal/infra/logger"
	"github.com/arklim/social-platform-login/internal/infra/notification"
	redisinfra "github.com/arklim/social-platform-login/internal/infra/redis"
	"github.com/arklim/social-platform-login/internal/infra/security"
	"github.com/arklim/social-platform-login/internal/infra/telemetry"
	postgresrepo "github.com/arklim/social-platform-login/internal/repository/postgres"
	redisrepo "github.com/arklim/social-platform-login/internal/repository/redis"
	"github.com/arklim/social-platform-login/internal/transport/http/middleware"
	"github.com/arklim/social-platform-login/internal/transport/http/routes"
	"github.com/arklim/social-platform-login/internal/usecase"
)

const tracerName = "github.com/arklim/social-platform-login"

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracing  *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, logger.WithLevel(cfg.App.LogLevel), logger.WithService(cfg.App.Name))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}

	tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.tracing = tp

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	if cfg.Postgres.MigrateOnStart {
		if err := database.Migrate(ctx, pool, log); err != nil {
			a.close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	dispatcher, err := a.buildDispatcher(cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "login:rate-limit",
		TTL:       rateLimitWindow * 2,
	})

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		Metrics:     httpMetrics,
		Dispatcher:  dispatcher,
		Database:    pool,
		Cache:       redisClient,
	})

	return a, nil
}

func (a *Application) buildDispatcher(cfg *config.AppConfig, log *zap.Logger) (*usecase.Dispatcher, error) {
	secret := []byte(cfg.Login.SecretKey)
	if len(secret) == 0 {
		generated, err := security.RandomKey(64)
		if err != nil {
			return nil, fmt.Errorf("generate secret key: %w", err)
		}
		log.Warn("login.secret_key not set, sessions will not survive a restart")
		secret = []byte(generated)
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	signer, err := security.NewSessionSigner(secret, cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("init session signer: %w", err)
	}

	var events port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, cfg.App.Name, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			events = kafkainfra.NewStubPublisher(log)
		} else {
			a.producer = producer
			events = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		events = kafkainfra.NewStubPublisher(log)
	}

	notifier, err := resetNotifier(cfg.App.Env, events, log)
	if err != nil {
		return nil, err
	}

	dispatchMetrics, err := telemetry.NewDispatchMetrics(telemetry.DispatchMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init dispatch metrics: %w", err)
	}

	repos := postgresrepo.NewRepositories(a.pool)
	sessionStore := redisrepo.NewSessionStore(a.redis.Client(), cfg.Redis.SessionPrefix)
	names := usecase.NewCookieNames(cfg.Login.SiteURL)

	issuer := usecase.NewSessionIssuer(sessionStore, signer, events, names, usecase.SessionSettings{
		SessionTTL:  cfg.Login.SessionTTL,
		RememberTTL: cfg.Login.RememberTTL,
		AuthPath:    cfg.Login.AdminPath,
	}, log)

	strength := security.NewStrengthChecker(
		security.WithMinLength(cfg.Login.MinPasswordLength),
		security.WithMinScore(cfg.Login.MinPasswordScore),
		security.WithSiteInputs(cfg.App.Name),
	)

	dispatcher, err := usecase.NewDispatcher(usecase.Dependencies{
		Settings:  cfg.Login,
		Users:     repos.Users,
		Options:   repos.Options,
		Requests:  repos.UserRequests,
		Hasher:    hasher,
		Strength:  strength,
		ResetKeys: usecase.NewResetKeyService(repos.Users, repos.ResetKeys, cfg.Login.ResetKeyTTL, log),
		Sessions:  issuer,
		Nonces:    security.NewNonceManager(secret, cfg.Login.NonceTTL),
		Notifier:  notifier,
		Events:    events,
		Observer:  dispatchMetrics,
		Tracer:    a.tracing.Tracer(tracerName),
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}
	return dispatcher, nil
}

// resetNotifier picks how reset links reach users. The Kafka publisher doubles as the notifier;
// without it only development may run, with links written to the log.
func resetNotifier(env string, events port.EventPublisher, log *zap.Logger) (port.Notifier, error) {
	if notifier, ok := events.(port.Notifier); ok {
		return notifier, nil
	}
	if env != "development" {
		return nil, fmt.Errorf("password reset delivery needs kafka brokers in %s", env)
	}
	log.Warn("reset links are logged instead of delivered")
	return notification.NewLoggingNotifier(log, true), nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting login API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("login_path", a.cfg.Login.LoginPath),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// close releases connections in reverse order of acquisition. It is safe on a partially
// built Application.
func (a *Application) close() {
	if a.tracing != nil {
		if err := a.tracing.Shutdown(context.Background()); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracing = nil
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close failed", zap.Error(err))
		}
		a.producer = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
