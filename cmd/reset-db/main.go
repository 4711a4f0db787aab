package main

import (
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"linkforge-backend/shared/config"
	"linkforge-backend/shared/database"
	"linkforge-backend/shared/logger"
)

func main() {
	envFile := config.LoadConfig()
	cfg := config.GetConfig()

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	logger.EnvSource(log, envFile)

	log.Info("starting database reset")

	db, err := gorm.Open(postgres.Open(database.DSN(cfg)), database.GormConfig(gormlogger.Silent))
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}

	// Drop in reverse dependency order
	tables := []string{
		"impersonation_actions",
		"impersonation_logs",
		"user_sessions",
		"publishers",
		"accounts",
		"internal_users",
	}

	for _, table := range tables {
		log.Info("dropping table", zap.String("table", table))
		if err := db.Exec("DROP TABLE IF EXISTS " + table + " CASCADE;").Error; err != nil {
			log.Fatal("failed to drop table", zap.String("table", table), zap.Error(err))
		}
	}

	log.Info("database reset completed; run the seed command to recreate tables")
}
