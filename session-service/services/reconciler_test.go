package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkforge-backend/shared/database/models"
	"linkforge-backend/shared/database/models/audit"
)

func TestReconciler_ClosesOrphanedLogs(t *testing.T) {
	ctx := context.Background()
	f := newImpersonationFixture(t, nil)
	reconciler := NewReconciler(f.db, time.Minute, f.clock.Now, nil)

	live, err := f.service.StartImpersonation(ctx, f.sessionID, seedAccount(t, f.db, models.AccountStatusActive).ID.String(), "live")
	require.NoError(t, err)

	deletedSession, err := f.sessions.CreateSession(ctx, adminUser(f.admin.ID.String()), "", "")
	require.NoError(t, err)
	deleted, err := f.service.StartImpersonation(ctx, deletedSession, seedAccount(t, f.db, models.AccountStatusActive).ID.String(), "deleted")
	require.NoError(t, err)
	require.NoError(t, f.sessions.DeleteSession(ctx, deletedSession))

	detached := audit.ImpersonationLog{
		SessionID:      uuid.MustParse(f.sessionID),
		AdminUserID:    f.admin.ID,
		TargetUserID:   uuid.New(),
		TargetUserType: "account",
		StartedAt:      f.clock.Now(),
		Status:         audit.LogStatusActive,
	}
	require.NoError(t, f.db.Create(&detached).Error)

	closed, err := reconciler.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed, "logs inside the grace period are left alone")

	f.clock.Advance(2 * time.Minute)
	closed, err = reconciler.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	assert.Equal(t, audit.LogStatusActive, f.loadLog(t, live.ID).Status)
	for _, id := range []uuid.UUID{deleted.ID, detached.ID} {
		entry := f.loadLog(t, id)
		assert.Equal(t, audit.LogStatusEnded, entry.Status)
		assert.Equal(t, audit.EndReasonReconciled, entry.EndReason)
		require.NotNil(t, entry.EndedAt)
	}

	closed, err = reconciler.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
}

func TestReconciler_ClosesLogOfExpiredSession(t *testing.T) {
	ctx := context.Background()
	f := newImpersonationFixture(t, nil)
	reconciler := NewReconciler(f.db, 0, f.clock.Now, nil)

	entry, err := f.service.StartImpersonation(ctx, f.sessionID, seedAccount(t, f.db, models.AccountStatusActive).ID.String(), "x")
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)
	closed, err := reconciler.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Equal(t, audit.EndReasonReconciled, f.loadLog(t, entry.ID).EndReason)
}

func TestReconciler_ReportsDatabaseErrors(t *testing.T) {
	f := newImpersonationFixture(t, nil)
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = NewReconciler(f.db, 0, nil, nil).Run(context.Background())
	assert.Error(t, err)
}
