package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"linkforge-backend/session-service/services"
	"linkforge-backend/shared/config"
	"linkforge-backend/shared/database"
	"linkforge-backend/shared/database/models/auth"
	"linkforge-backend/shared/logger"
	utils "linkforge-backend/shared/utils/auth"
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

	ctx := context.Background()

	// Initialize database
	if err := database.InitDatabase(log); err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.CloseDatabase()

	seeded, err := database.SeedDatabase(ctx, database.GetDB(), database.DefaultSeedOptions(), log)
	if err != nil {
		log.Fatal("failed to seed database", zap.Error(err))
	}

	// Open a session for the admin so the API can be exercised right away
	sessions := services.NewSessionManager(database.GetDB(), services.SessionManagerConfig{
		SessionDuration:          cfg.SessionDuration(),
		MaxImpersonationDuration: cfg.ImpersonationMaxDuration(),
	}, log)
	admin := seeded.Admin
	sessionID, err := sessions.CreateSession(ctx, auth.SessionUser{
		UserID:   admin.ID.String(),
		Email:    admin.Email,
		Name:     admin.Name,
		UserType: auth.UserTypeInternal,
		Role:     auth.RoleAdmin,
		Status:   admin.Status,
	}, "127.0.0.1", "seed")
	if err != nil {
		log.Fatal("failed to create admin session", zap.Error(err))
	}

	state := sessions.GetSession(ctx, sessionID)
	if state == nil {
		log.Fatal("admin session vanished after creation", zap.String("session_id", sessionID))
	}
	token, err := utils.NewTokenIssuer(cfg.JWTSecret).GenerateSessionToken(sessionID, admin.ID.String(), state.ExpiresAt)
	if err != nil {
		log.Fatal("failed to sign session token", zap.Error(err))
	}

	fmt.Printf("admin:      %s (%s)\n", admin.Email, admin.ID)
	fmt.Printf("account:    %s (%s)\n", seeded.Account.Email, seeded.Account.ID)
	fmt.Printf("publisher:  %s (%s)\n", seeded.Publisher.Email, seeded.Publisher.ID)
	fmt.Printf("session:    %s\n", sessionID)
	fmt.Printf("token:      %s\n", token)
}
