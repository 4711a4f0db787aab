package database

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"linkforge-backend/shared/database/models"
	"linkforge-backend/shared/logger"
)

// SeedOptions names the identities created by SeedDatabase
type SeedOptions struct {
	AdminEmail     string
	AdminName      string
	AccountEmail   string
	PublisherEmail string
}

// DefaultSeedOptions returns the development fixtures
func DefaultSeedOptions() SeedOptions {
	return SeedOptions{
		AdminEmail:     "admin@linkforge.io",
		AdminName:      "Platform Admin",
		AccountEmail:   "demo-account@linkforge.io",
		PublisherEmail: "demo-publisher@linkforge.io",
	}
}

// SeedResult holds the seeded rows
type SeedResult struct {
	Admin     models.InternalUser
	Account   models.Account
	Publisher models.Publisher
	Created   int
}

// SeedDatabase creates an internal admin plus one account and one publisher to
// impersonate. Existing rows with the same email are reused.
func SeedDatabase(ctx context.Context, db *gorm.DB, opts SeedOptions, log *zap.Logger) (*SeedResult, error) {
	log = logger.OrNop(log)
	result := &SeedResult{}
	tx := db.WithContext(ctx)

	created, err := ensureByEmail(tx, &result.Admin, opts.AdminEmail, func() interface{} {
		return &models.InternalUser{Email: opts.AdminEmail, Name: opts.AdminName, Role: models.InternalRoleAdmin, Status: "active"}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed admin: %w", err)
	}
	result.Created += created

	created, err = ensureByEmail(tx, &result.Account, opts.AccountEmail, func() interface{} {
		return &models.Account{Email: opts.AccountEmail, ContactName: "Demo Advertiser", CompanyName: "Demo Shop Ltd", Status: models.AccountStatusActive}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed account: %w", err)
	}
	result.Created += created

	created, err = ensureByEmail(tx, &result.Publisher, opts.PublisherEmail, func() interface{} {
		return &models.Publisher{Email: opts.PublisherEmail, ContactName: "Demo Editor", CompanyName: "Demo News", Status: models.PublisherStatusPending}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed publisher: %w", err)
	}
	result.Created += created

	if result.Created > 0 {
		log.Info("database seeded", zap.Int("created", result.Created))
	} else {
		log.Info("database seed data is up to date")
	}
	return result, nil
}

// ensureByEmail loads the row with email into dest, creating it from build when missing.
// It returns 1 when a row was created.
func ensureByEmail(tx *gorm.DB, dest interface{}, email string, build func() interface{}) (int, error) {
	err := tx.Where("email = ?", email).First(dest).Error
	if err == nil {
		return 0, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	row := build()
	if err := tx.Create(row).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("email = ?", email).First(dest).Error; err != nil {
		return 0, err
	}
	return 1, nil
}
