package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"linkforge-backend/shared/config"
	"linkforge-backend/shared/database/models"
	"linkforge-backend/shared/database/models/audit"
	"linkforge-backend/shared/database/models/auth"
)

var DB *gorm.DB

// getLogLevel returns appropriate log level based on environment
func getLogLevel(cfg *config.Config) logger.LogLevel {
	if cfg.DBHost == "localhost" || cfg.DBHost == "127.0.0.1" {
		return logger.Warn
	}
	return logger.Error
}

// GormConfig is shared by every connection so timestamps are always written in UTC
func GormConfig(level logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// DSN builds the Postgres connection string
func DSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBPort,
		cfg.DBSSLMode,
	)
}

// InitDatabase initializes the database connection and runs migrations
func InitDatabase(log *zap.Logger) error {
	cfg := config.GetConfig()

	var err error
	DB, err = gorm.Open(postgres.Open(DSN(cfg)), GormConfig(getLogLevel(cfg)))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connection established", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))

	if err := runMigrations(DB, log); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Models lists every table owned or read by the session service
func Models() []interface{} {
	return []interface{}{
		&models.InternalUser{},
		&models.Account{},
		&models.Publisher{},
		&auth.UserSession{},
		&audit.ImpersonationLog{},
		&audit.ImpersonationAction{},
	}
}

// Migrate auto-migrates all models without the table existence shortcut
func Migrate(db *gorm.DB) error {
	for _, model := range Models() {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return nil
}

// runMigrations runs all database migrations
func runMigrations(db *gorm.DB, log *zap.Logger) error {
	migrator := db.Migrator()
	allTablesExist := true

	for _, model := range Models() {
		if !migrator.HasTable(model) {
			allTablesExist = false
			break
		}
	}

	// If all tables exist, skip migration
	if allTablesExist {
		log.Info("database schema is up to date, skipping migration")
		return nil
	}

	migratedCount := 0
	for _, model := range Models() {
		if !migrator.HasTable(model) {
			log.Info("creating table", zap.String("model", fmt.Sprintf("%T", model)))
			migratedCount++
		}
	}

	if err := Migrate(db); err != nil {
		return err
	}

	log.Info("database migrations completed", zap.Int("tables_created", migratedCount))
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// CloseDatabase closes the database connection
func CloseDatabase() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
