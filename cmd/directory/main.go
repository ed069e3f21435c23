// Package main runs the directory HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/waypoint-tourism/directory/internal/analytics"
	"github.com/waypoint-tourism/directory/internal/cache"
	"github.com/waypoint-tourism/directory/internal/config"
	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/httpapi"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/metrics"
	"github.com/waypoint-tourism/directory/internal/middleware"
	"github.com/waypoint-tourism/directory/internal/moderation"
	"github.com/waypoint-tourism/directory/internal/notify"
	"github.com/waypoint-tourism/directory/internal/onboarding"
	"github.com/waypoint-tourism/directory/internal/profile"
	"github.com/waypoint-tourism/directory/internal/storage/postgres"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logging.Default().WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New(httpapi.ServiceName, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(httpapi.ServiceName)

	// Backend client with retries and circuit breaking reported to metrics.
	resilience := supabase.ResilienceConfig{
		Retry:          supabase.DefaultRetryConfig(),
		CircuitBreaker: supabase.DefaultCircuitBreakerConfig(),
		OnRetry: func(method string, attempt int, reason string) {
			m.RecordRetry(method, reason)
			logger.WithContext(ctx).WithField("attempt", attempt).Debugf("retrying %s: %s", method, reason)
		},
	}
	resilience.CircuitBreaker.OnStateChange = func(from, to supabase.CircuitState) {
		m.SetCircuitState(int(to))
		logger.WithContext(ctx).Warnf("backend circuit %s -> %s", from, to)
	}
	client, err := supabase.New(supabase.Config{
		URL:        cfg.SupabaseURL,
		AnonKey:    cfg.SupabaseAnonKey,
		ServiceKey: cfg.SupabaseServiceKey,
		Resilience: &resilience,
	})
	if err != nil {
		logger.WithContext(ctx).WithError(err).Fatal("Failed to create backend client")
	}

	repo := database.NewRepository(client)
	// Moderation checks the admin role itself; with a service key it writes
	// past row-level security.
	adminRepo := repo
	if client.HasServiceKey() {
		adminRepo = repo.AsAdmin()
	}

	feed := notify.NewFeed(500)
	notifier := notify.Multi(notify.NewLogNotifier(logger), feed)

	profileCache, closeCache := newCache(ctx, cfg, logger)
	defer closeCache()

	var profiles database.ProfileRepository = repo
	if cfg.DatabaseURL != "" {
		db, err := sqlx.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.WithContext(ctx).WithError(err).Fatal("Failed to open database")
		}
		defer db.Close()
		profiles = postgres.NewProfileStore(db)
		logger.WithContext(ctx).Info("Profiles stored directly in Postgres")
	}

	loader, err := profile.NewLoader(profile.Config{
		Repository: profiles,
		Cache:      profileCache,
		CacheTTL:   cfg.Cache.TTL,
		Notifier:   notifier,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		logger.WithContext(ctx).WithError(err).Fatal("Failed to create profile loader")
	}

	var jwtSecret []byte
	if cfg.JWTSecret != "" {
		jwtSecret = []byte(cfg.JWTSecret)
	} else {
		logger.WithContext(ctx).Warn("SUPABASE_JWT_SECRET not set; tokens are verified against the auth server")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	limiter.StartCleanup(time.Minute, stopCleanup)

	srv, err := httpapi.NewServer(httpapi.Config{
		Auth:          client.Auth(),
		Repository:    repo,
		Profiles:      loader,
		Moderation:    moderation.NewService(adminRepo, notifier, m, logger),
		Onboarding:    onboarding.NewService(repo, client.Storage(), cfg.Storage, notifier, m, logger),
		Analytics:     analytics.NewService(repo),
		Feed:          feed,
		Notifier:      notify.NewLogNotifier(logger),
		Metrics:       m,
		Logger:        logger,
		Authenticator: middleware.NewAuthMiddleware(jwtSecret, client.Auth(), logger, []string{"/health", "/metrics"}),
		CORS:          middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins),
		RateLimiter:   limiter,
	})
	if err != nil {
		logger.WithContext(ctx).WithError(err).Fatal("Failed to create server")
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.WithContext(ctx).WithField("addr", cfg.HTTPAddr).Info("Directory API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithContext(ctx).WithError(err).Fatal("Server error")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.WithContext(ctx).Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Shutdown error")
	}
}

// newCache returns Redis when REDIS_ADDR is set and reachable, otherwise an
// in-memory cache.
func newCache(ctx context.Context, cfg *config.Config, logger *logging.Logger) (cache.Cache, func()) {
	addrs := cfg.RedisAddrs()
	if len(addrs) == 0 {
		return cache.NewMemory(), func() {}
	}

	rc, err := cache.NewRedis(cache.RedisConfig{
		Addrs:     addrs,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		Namespace: cfg.Cache.Namespace,
	})
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = rc.Ping(pingCtx)
		cancel()
		if err == nil {
			return rc, func() { _ = rc.Close() }
		}
		_ = rc.Close()
	}
	logger.WithContext(ctx).WithError(err).Warn("Redis unavailable; using in-memory profile cache")
	return cache.NewMemory(), func() {}
}
