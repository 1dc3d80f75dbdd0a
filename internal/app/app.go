package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/advocatedir/internal/cache"
	"github.com/simp-lee/advocatedir/internal/config"
	"github.com/simp-lee/advocatedir/internal/middleware"
	"github.com/simp-lee/advocatedir/internal/module/advocate"
)

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine      *gin.Engine
	db          *gorm.DB
	cacheCloser io.Closer
	logger      *logger.Logger
	cfg         *config.Config
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, database, cache, metrics, the advocate module,
// middleware, and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}

	// 2. Setup database.
	db, err := config.SetupDatabase(&cfg.Database, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if success {
			return
		}
		closeDB(db)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Database.AutoMigrate {
		if err := config.AutoMigrate(ctx, db); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("auto migration completed")
	}

	// 3. Cache store and metrics.
	store, cacheCloser, err := config.SetupCache(ctx, cfg, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup cache: %w", err)
	}
	defer func() {
		if success {
			return
		}
		_ = cacheCloser.Close()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cacheMetrics, err := cache.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register cache metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}
	queryCache := cache.New(store, cache.WithMetrics(cacheMetrics), cache.WithLogger(log.Logger))

	// 4. Manual dependency injection: repository → service → handler.
	repo := advocate.NewAdvocateRepository(db)
	svc := advocate.NewAdvocateService(repo, queryCache, cfg.Cache.TTLs(), log.Logger)
	handler := advocate.NewAdvocateHandler(svc)
	module := advocate.NewModule(handler, resolveAdminAuth(cfg.Auth, log.Logger))

	// 5. Create Gin engine with custom middleware (not gin.Default()).
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	engine.Use(
		middleware.Recovery(log.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: cfg.Server.TrustRequestID,
		}),
		middleware.LoggerWithConfig(log.Logger, middleware.LoggerConfig{
			SkipPaths: []string{"/health", "/metrics"},
		}),
		httpMetrics.Middleware(),
		middleware.CORSWithConfig(resolveCORSConfig(cfg.Server.Mode, cfg.Server.CORS)),
	)

	apiMiddleware := []gin.HandlerFunc{middleware.Timeout(serverTimeout(cfg.Server.Timeout))}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RPS:        rl.RPS,
			Burst:      rl.Burst,
			MaxClients: rl.MaxClients,
			IdleTTL:    rl.IdleTTLDuration(),
		})
		apiMiddleware = append(apiMiddleware, limiter.Middleware())
	}

	// 6. Register all routes.
	if err := RegisterRoutes(engine, &RouteDeps{
		Modules:       []Module{module},
		DB:            db,
		Cache:         queryCache,
		Gatherer:      reg,
		APIMiddleware: apiMiddleware,
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine:      engine,
		db:          db,
		cacheCloser: cacheCloser,
		logger:      log,
		cfg:         cfg,
	}, nil
}

// Handler exposes the configured engine, mainly for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.engine
}

// resolveAdminAuth returns the bearer guard for admin routes. With auth
// disabled every admin request is rejected.
func resolveAdminAuth(cfg config.AuthConfig, log *slog.Logger) gin.HandlerFunc {
	if !cfg.Enabled {
		log.Info("admin api disabled")
		return middleware.DenyAll()
	}
	return middleware.AdminAuth(middleware.AuthConfig{
		Secret: cfg.JWTSecret,
		Issuer: cfg.Issuer,
	})
}

func resolveCORSConfig(mode string, cfg config.CORSConfig) middleware.CORSConfig {
	corsConfig := middleware.CORSFromConfig(cfg)

	// In release mode, with no allowlist configured, deny cross-origin requests.
	if len(cfg.AllowOrigins) == 0 && mode == gin.ReleaseMode {
		corsConfig.AllowOrigins = []string{}
	}

	return corsConfig
}

func serverTimeout(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		slog.Error("database close error", slog.Any("error", err))
	}
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// It performs graceful shutdown with a 5-second timeout and then releases the
// cache backend and the database connection.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := slog.Default()
	if a.logger != nil {
		log = a.logger.Logger
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine)

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	if runErr == nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.Any("error", err))
		}
	}

	if a.cacheCloser != nil {
		if err := a.cacheCloser.Close(); err != nil {
			log.Error("cache close error", slog.Any("error", err))
		}
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Error("database close error", slog.Any("error", err))
			} else {
				log.Info("database connection closed")
			}
		}
	}

	log.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}
