package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "linkforge-backend/docs"
	"linkforge-backend/session-service/handlers"
	"linkforge-backend/session-service/middleware"
	"linkforge-backend/session-service/routes"
	"linkforge-backend/session-service/services"
	"linkforge-backend/shared/config"
	"linkforge-backend/shared/database"
	"linkforge-backend/shared/logger"
	utils "linkforge-backend/shared/utils/auth"
	"linkforge-backend/shared/utils/cache"
	"linkforge-backend/shared/utils/storage"
)

func main() {
	// Load configuration
	envFile := config.LoadConfig()
	cfg := config.GetConfig()

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	logger.EnvSource(log, envFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	if err := database.InitDatabase(log); err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.CloseDatabase()
	db := database.GetDB()

	sessions := services.NewSessionManager(db, services.SessionManagerConfig{
		SessionDuration:          cfg.SessionDuration(),
		MaxImpersonationDuration: cfg.ImpersonationMaxDuration(),
	}, log)
	hub := services.NewEventHub([]string{cfg.FrontendURL}, log)
	impersonation := services.NewImpersonationService(db, sessions, nil, hub, services.ImpersonationConfig{
		RestrictedActions: cfg.ImpersonationRestrictedActions,
	}, log)

	// Distributed locks when Redis is configured, in-process otherwise
	var locker services.Locker = cache.NewLocalLocker()
	if cfg.RedisHost != "" {
		cacheManager, err := cache.NewCacheManager(ctx, cfg)
		if err != nil {
			log.Warn("redis unavailable, janitor locks are process local", zap.Error(err))
		} else {
			defer cacheManager.Close()
			locker = cacheManager
		}
	}

	var archiver *services.AuditArchiver
	if cfg.AuditArchiveEnabled {
		store, err := storage.NewMinIOStore(ctx, cfg, log)
		if err != nil {
			log.Warn("audit archive disabled", zap.Error(err))
		} else {
			archiver = services.NewAuditArchiver(db, store, cfg.AuditArchiveBatchSize, log)
		}
	}

	reconciler := services.NewReconciler(db, services.DefaultReconcileGrace, nil, log)
	janitor := services.NewJanitor(cfg.CleanupInterval(), locker, log,
		services.MaintenanceTasks(sessions, reconciler, archiver)...)
	janitor.Start(ctx)

	rateLimiter := middleware.NewRateLimiter(ctx, 30*time.Minute)

	gin.SetMode(gin.ReleaseMode)
	router := routes.NewRouter(routes.Dependencies{
		Sessions:      sessions,
		Impersonation: impersonation,
		Hub:           hub,
		Tokens:        utils.NewTokenIssuer(cfg.JWTSecret),
		RateLimiter:   rateLimiter,
		Cookie: handlers.CookieConfig{
			Name:   cfg.SessionCookieName,
			Secure: cfg.SessionCookieSecure,
		},
		AllowedOrigins: []string{cfg.FrontendURL},
		ImpersonationStartLimit: middleware.RateLimitConfig{
			MaxRequests:   cfg.ImpersonationStartMaxPerHour,
			TimeWindow:    time.Hour,
			BlockDuration: time.Hour,
		},
		WebSocketConnectLimit: middleware.RateLimitConfig{
			MaxRequests:   cfg.WebSocketConnectMaxPerMinute,
			TimeWindow:    time.Minute,
			BlockDuration: 5 * time.Minute,
		},
		Logger: log,
	})

	port := cfg.ServicePort()
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("session service starting", zap.String("port", port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down session service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Shutdown(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	janitor.Wait()
}
