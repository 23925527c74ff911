package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/auth"
	"github.com/capiorg/backend-auth/internal/cache"
	"github.com/capiorg/backend-auth/internal/config"
	"github.com/capiorg/backend-auth/internal/db"
	"github.com/capiorg/backend-auth/internal/geo"
	httpserver "github.com/capiorg/backend-auth/internal/http"
	"github.com/capiorg/backend-auth/internal/http/handlers"
	"github.com/capiorg/backend-auth/internal/logging"
	"github.com/capiorg/backend-auth/internal/middleware"
	"github.com/capiorg/backend-auth/internal/notify"
	"github.com/capiorg/backend-auth/internal/repo"
	"github.com/capiorg/backend-auth/internal/users"
)

func main() {
	// Env vars override values from .env
	cfg, err := config.Load(".env")
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.DevMode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}
	logger.Info("migrations applied")

	var identityCache cache.Cache = cache.Nop{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, logger)
		if err != nil {
			return err
		}
		defer rc.Close()
		identityCache = rc
	} else {
		logger.Warn("REDIS_URL not set, identity cache disabled")
	}
	invalidator := cache.NewInvalidator(identityCache, 2*time.Second, logger).WithRepeat(cfg.CacheInvalidateRepeat)

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTAlgorithm)
	if err != nil {
		return err
	}

	var sender notify.Sender
	if cfg.DevMode {
		logger.Warn("dev mode: codes are logged, not sent")
		sender = notify.NewLogSender(logger)
	} else {
		sender = notify.NewSMSAero(notify.SMSAeroConfig{
			BaseURL: cfg.SMSAeroURL,
			Email:   cfg.SMSAeroEmail,
			APIKey:  cfg.SMSAeroAPIKey,
			Sign:    cfg.SMSAeroSign,
			Timeout: 5 * time.Second,
		}, logger)
	}
	locator := geo.NewIPWhois(cfg.IPWhoisURL, cfg.IPWhoisAPIKey, logger)

	store := repo.NewStore(database)
	authService := auth.NewService(store, tokens, sender, locator, invalidator, auth.Config{
		AccessTokenTTL:        cfg.AccessTokenTTL,
		RefreshTokenTTL:       cfg.RefreshTokenTTL,
		CodeSalt:              cfg.CodeSalt,
		CodeTTL:               cfg.CodeTTL,
		CodeMaxAttempts:       cfg.CodeMaxAttempts,
		CodeRequestsPerWindow: cfg.CodeRequestsPerWindow,
		CodeRequestWindow:     cfg.CodeRequestWindow,
		DevMode:               cfg.DevMode,
	}, logger)
	userService := users.NewService(store, auth.DefaultProfilePolicy(cfg.AdminCanViewAdmin), invalidator, logger)
	gate := auth.NewGate(tokens, store.Repos().Users, logger, auth.WithCache(identityCache, cfg.IdentityCacheTTL))

	limiter := middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst, 10*time.Minute)
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	go limiter.Run(time.Minute, stopCleanup)

	health := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"postgres": store,
		"redis":    identityCache,
	}, logger)

	router := httpserver.NewRouter(httpserver.Deps{
		Auth:    handlers.NewAuthHandler(authService, userService, logger),
		Users:   handlers.NewUsersHandler(userService, logger),
		Health:  health,
		Gate:    gate,
		Limiter: limiter,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.Bool("dev_mode", cfg.DevMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	invalidator.Wait()
	return nil
}
