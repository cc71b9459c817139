// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/license-gate/internal/account"
	"github.com/carterperez-dev/license-gate/internal/admin"
	"github.com/carterperez-dev/license-gate/internal/auth"
	"github.com/carterperez-dev/license-gate/internal/config"
	"github.com/carterperez-dev/license-gate/internal/core"
	"github.com/carterperez-dev/license-gate/internal/health"
	"github.com/carterperez-dev/license-gate/internal/hwid"
	"github.com/carterperez-dev/license-gate/internal/license"
	"github.com/carterperez-dev/license-gate/internal/middleware"
	"github.com/carterperez-dev/license-gate/internal/migrations"
	"github.com/carterperez-dev/license-gate/internal/server"
	"github.com/carterperez-dev/license-gate/internal/vouch"
	"github.com/carterperez-dev/license-gate/internal/webhook"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

// stores holds the storage backends selected by storage.driver. db and
// redis stay nil when the driver or config leaves them out.
type stores struct {
	db       *core.Database
	redis    *core.Redis
	accounts account.Repository
	vouches  vouch.Repository
	ledger   webhook.Ledger
}

func (s *stores) close(logger *slog.Logger) {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}
}

func (s *stores) redisClient() *redis.Client {
	if s.redis == nil {
		return nil
	}
	return s.redis.Client
}

func openStores(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*stores, error) {
	s := &stores{}

	if cfg.Redis.URL != "" {
		rdb, err := core.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		s.redis = rdb
		logger.Info("redis connected", "pool_size", cfg.Redis.PoolSize)
	}

	if cfg.Storage.Driver == config.StorageMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		s.accounts = account.NewMemoryRepository()
		s.vouches = vouch.NewMemoryRepository()
		s.ledger = webhook.NewMemoryLedger()
		return s, nil
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		s.close(logger)
		return nil, err
	}
	s.db = db
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Storage.AutoMigrate {
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			s.close(logger)
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	s.accounts = account.NewPostgresRepository(db.DB)
	s.vouches = vouch.NewPostgresRepository(db.DB)
	s.ledger = webhook.NewPostgresLedger(db.DB)
	return s, nil
}

// ensureSigningKeys creates a throwaway ES256 key pair for local runs.
// Production deployments must provide their own keys.
func ensureSigningKeys(cfg *config.Config, logger *slog.Logger) error {
	if _, err := os.Stat(cfg.JWT.PrivateKeyPath); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat private key: %w", err)
	}

	if cfg.IsProduction() {
		return fmt.Errorf("private key %s not found", cfg.JWT.PrivateKeyPath)
	}

	for _, path := range []string{cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("create key directory: %w", err)
		}
	}

	if err := auth.GenerateKeyPair(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath); err != nil {
		return err
	}
	logger.Warn("generated development signing keys",
		"private_key_path", cfg.JWT.PrivateKeyPath,
	)
	return nil
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"storage", cfg.Storage.Driver,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close(logger)

	var (
		revocations auth.Revocations = auth.NewMemoryRevocations()
		locker      webhook.Locker   = webhook.NewMemoryLocker()
		healthCheck                  = []health.Check{}
		adminConfig                  = admin.HandlerConfig{Storage: cfg.Storage.Driver}
	)
	if st.db != nil {
		healthCheck = append(healthCheck, health.Check{Name: "database", Checker: st.db})
		adminConfig.DBStats = st.db.Stats
		adminConfig.DBPing = st.db.Ping
	}
	if st.redis != nil {
		revocations = auth.NewRedisRevocations(st.redis.Client)
		locker = st.redis
		healthCheck = append(healthCheck, health.Check{Name: "redis", Checker: st.redis})
		adminConfig.RedisStats = st.redis.PoolStats
		adminConfig.RedisPing = st.redis.Ping
	}

	if err := ensureSigningKeys(cfg, logger); err != nil {
		return err
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWT, revocations)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.GetKeyID(),
	)

	accountSvc := account.NewService(st.accounts)
	if cfg.Storage.SeedAdminUser != "" {
		if err := accountSvc.PromoteToAdmin(ctx, cfg.Storage.SeedAdminUser); err != nil {
			logger.Warn("seed admin not promoted",
				"username", cfg.Storage.SeedAdminUser,
				"error", err,
			)
		}
	}

	machine := license.NewMachine(st.accounts, license.Policy{
		Packages:        cfg.License.Packages,
		OneTimePackages: cfg.License.OneTimePackages,
		GraceOnCancel:   cfg.License.GraceOnCancel,
	}, license.WithLogger(logger))

	engine := hwid.NewEngine(
		st.accounts,
		cfg.License.HWIDResetCooldown,
		hwid.WithLogger(logger),
	)

	authSvc := auth.NewService(auth.ServiceConfig{
		Accounts:      accountSvc,
		Licenses:      machine,
		HWID:          engine,
		Tokens:        jwtManager,
		Revocations:   revocations,
		GatingEnabled: cfg.License.GatingEnabled,
		Logger:        logger,
	})

	processor := webhook.NewProcessor(webhook.ProcessorConfig{
		Accounts: st.accounts,
		Licenses: machine,
		Ledger:   st.ledger,
		Locker:   locker,
		Logger:   logger,
	})

	vouchSvc := vouch.NewService(st.vouches, vouch.WithLogger(logger))

	authHandler := auth.NewHandler(authSvc)
	accountHandler := account.NewHandler(accountSvc)
	hwidHandler := hwid.NewHandler(engine, st.accounts)
	licenseHandler := license.NewHandler(machine, st.accounts)
	vouchHandler := vouch.NewHandler(vouchSvc)
	adminHandler := admin.NewHandler(adminConfig)
	healthHandler := health.NewHandler(healthCheck...)

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	redisClient := st.redisClient()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redisClient, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			FailOpen: true,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	loginLimiter := middleware.NewRateLimiter(redisClient, middleware.RateLimitConfig{
		Limit: middleware.PerMinute(
			cfg.RateLimit.LoginRequests,
			cfg.RateLimit.LoginBurst,
		),
		KeyFunc:  middleware.KeyByIPAndEndpoint,
		FailOpen: true,
	}).Handler

	submitLimiter := middleware.NewRateLimiter(redisClient, middleware.RateLimitConfig{
		Limit:    middleware.PerHour(cfg.RateLimit.VouchRequests, cfg.RateLimit.VouchBurst),
		KeyFunc:  middleware.KeyByUser,
		FailOpen: true,
	}).Handler

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	authenticator := middleware.Authenticator(jwtManager)
	adminOnly := middleware.RequireAdmin

	router.Route("/api", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator, loginLimiter)
		accountHandler.RegisterRoutes(r, authenticator)
		hwidHandler.RegisterRoutes(r, authenticator, adminOnly)
		licenseHandler.RegisterRoutes(r, authenticator, adminOnly)
		vouchHandler.RegisterRoutes(r, authenticator, submitLimiter)
		vouchHandler.RegisterAdminRoutes(r, authenticator, adminOnly)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)

		if cfg.Stripe.WebhookSecret == "" {
			logger.Warn("stripe webhook secret not set, webhook route disabled")
			return
		}
		verifier := webhook.NewVerifier(
			cfg.Stripe.WebhookSecret,
			cfg.Stripe.WebhookTolerance,
		)
		webhook.NewHandler(verifier, processor, logger).RegisterRoutes(r)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
