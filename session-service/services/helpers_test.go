package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"linkforge-backend/shared/database/dbtest"
	"linkforge-backend/shared/database/models"
	"linkforge-backend/shared/database/models/auth"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSessionManager(t *testing.T, db *gorm.DB, clock *testClock) *SessionManager {
	t.Helper()
	return NewSessionManager(db, SessionManagerConfig{
		SessionDuration:          24 * time.Hour,
		MaxImpersonationDuration: 2 * time.Hour,
		Now:                      clock.Now,
	}, nil)
}

func adminUser(id string) auth.SessionUser {
	return auth.SessionUser{
		UserID:   id,
		Email:    "ops@linkforge.io",
		Name:     "Ops Admin",
		UserType: auth.UserTypeInternal,
		Role:     auth.RoleAdmin,
	}
}

func seedAdmin(t *testing.T, db *gorm.DB) models.InternalUser {
	t.Helper()
	admin := models.InternalUser{Email: uniqueEmail("ops", "linkforge.io"), Name: "Ops Admin", Role: models.InternalRoleAdmin, Status: "active"}
	require.NoError(t, db.Create(&admin).Error)
	return admin
}

func seedAccount(t *testing.T, db *gorm.DB, status string) models.Account {
	t.Helper()
	account := models.Account{
		Email:       uniqueEmail("billing", "acme.test"),
		ContactName: "Ada Acme",
		CompanyName: "Acme Corp",
		Status:      status,
	}
	require.NoError(t, db.Create(&account).Error)
	return account
}

func seedPublisher(t *testing.T, db *gorm.DB, status string) models.Publisher {
	t.Helper()
	publisher := models.Publisher{
		Email:       uniqueEmail("editor", "dailynews.test"),
		ContactName: "Pat Press",
		CompanyName: "Daily News",
		Status:      status,
	}
	require.NoError(t, db.Create(&publisher).Error)
	return publisher
}

func newTestDB(t *testing.T) *gorm.DB {
	return dbtest.New(t)
}

func uniqueEmail(local, domain string) string {
	return fmt.Sprintf("%s+%s@%s", local, uuid.NewString()[:8], domain)
}
