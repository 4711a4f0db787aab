package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"linkforge-backend/session-service/services"
	"linkforge-backend/shared/config"
	"linkforge-backend/shared/database"
	"linkforge-backend/shared/logger"
	"linkforge-backend/shared/utils/cache"
	"linkforge-backend/shared/utils/storage"
)

// One-shot run of the janitor tasks, for cron or manual repair
func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "abort the run after this long")
	archive := flag.Bool("archive", false, "also archive ended impersonation logs to object storage")
	flag.Parse()

	envFile := config.LoadConfig()
	cfg := config.GetConfig()

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	logger.EnvSource(log, envFile)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := database.InitDatabase(log); err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.CloseDatabase()
	db := database.GetDB()

	sessions := services.NewSessionManager(db, services.SessionManagerConfig{
		SessionDuration:          cfg.SessionDuration(),
		MaxImpersonationDuration: cfg.ImpersonationMaxDuration(),
	}, log)
	reconciler := services.NewReconciler(db, services.DefaultReconcileGrace, nil, log)

	var archiver *services.AuditArchiver
	if *archive {
		store, err := storage.NewMinIOStore(ctx, cfg, log)
		if err != nil {
			log.Fatal("failed to connect to object storage", zap.Error(err))
		}
		archiver = services.NewAuditArchiver(db, store, cfg.AuditArchiveBatchSize, log)
	}

	var locker services.Locker = cache.NewLocalLocker()
	if cfg.RedisHost != "" {
		cacheManager, err := cache.NewCacheManager(ctx, cfg)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer cacheManager.Close()
		locker = cacheManager
	}

	services.NewJanitor(cfg.CleanupInterval(), locker, log,
		services.MaintenanceTasks(sessions, reconciler, archiver)...).RunOnce(ctx)

	stats := sessions.GetSessionStats(ctx)
	log.Info("maintenance run finished",
		zap.Int64("sessions_active", stats.Active),
		zap.Int64("sessions_impersonating", stats.Impersonating),
	)
}
