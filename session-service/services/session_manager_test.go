package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkforge-backend/shared/database/dbtest"
	"linkforge-backend/shared/database/models/auth"
	"linkforge-backend/shared/metrics"
)

func TestSessionManager_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	manager := newTestSessionManager(t, newTestDB(t), clock)

	user := adminUser(uuid.NewString())
	id, err := manager.CreateSession(ctx, user, "10.0.0.7", "Mozilla/5.0")
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	state := manager.GetSession(ctx, id)
	require.NotNil(t, state)
	assert.Equal(t, id, state.SessionID)
	assert.Equal(t, user, state.CurrentUser)
	assert.Equal(t, "10.0.0.7", state.IPAddress)
	assert.Equal(t, "Mozilla/5.0", state.UserAgent)
	assert.Nil(t, state.Impersonation)
	assert.True(t, state.CreatedAt.Equal(clock.Now()))
	assert.True(t, state.ExpiresAt.Equal(clock.Now().Add(24*time.Hour)))
	assert.True(t, state.ExpiresAt.After(state.CreatedAt))
}

func TestSessionManager_CreateRequiresUserID(t *testing.T) {
	manager := newTestSessionManager(t, newTestDB(t), newTestClock())

	_, err := manager.CreateSession(context.Background(), auth.SessionUser{}, "", "")
	assert.Error(t, err)
}

func TestSessionManager_GetMissingSession(t *testing.T) {
	ctx := context.Background()
	manager := newTestSessionManager(t, newTestDB(t), newTestClock())

	assert.Nil(t, manager.GetSession(ctx, ""))
	assert.Nil(t, manager.GetSession(ctx, "not-a-uuid"))
	assert.Nil(t, manager.GetSession(ctx, uuid.NewString()))
}

func TestSessionManager_GetRefreshesActivity(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	manager := newTestSessionManager(t, newTestDB(t), clock)

	id, err := manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	state := manager.GetSession(ctx, id)
	require.NotNil(t, state)
	assert.True(t, state.LastActivity.Equal(clock.Now()))

	clock.Advance(time.Minute)
	again := manager.GetSession(ctx, id)
	require.NotNil(t, again)
	assert.True(t, again.LastActivity.After(state.LastActivity))
}

func TestSessionManager_ExpiredSessionIsInvisible(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	manager := newTestSessionManager(t, newTestDB(t), clock)

	id, err := manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	assert.Nil(t, manager.GetSession(ctx, id))

	name := "renamed"
	user := adminUser("x")
	user.Name = name
	err = manager.UpdateSession(ctx, id, SessionUpdate{CurrentUser: &user})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_UpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	manager := newTestSessionManager(t, newTestDB(t), clock)

	original := adminUser(uuid.NewString())
	id, err := manager.CreateSession(ctx, original, "10.0.0.1", "curl/8.0")
	require.NoError(t, err)

	ip := "10.0.0.2"
	require.NoError(t, manager.UpdateSession(ctx, id, SessionUpdate{IPAddress: &ip}))

	state := manager.GetSession(ctx, id)
	require.NotNil(t, state)
	assert.Equal(t, "10.0.0.2", state.IPAddress)
	assert.Equal(t, "curl/8.0", state.UserAgent)
	assert.Equal(t, original, state.CurrentUser)
}

func TestSessionManager_UpdateAdvancesActivityWithFrozenClock(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	manager := newTestSessionManager(t, newTestDB(t), clock)

	id, err := manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)

	before := manager.GetSession(ctx, id)
	require.NotNil(t, before)

	agent := "agent-1"
	require.NoError(t, manager.UpdateSession(ctx, id, SessionUpdate{UserAgent: &agent}))
	first := manager.GetSession(ctx, id)
	require.NotNil(t, first)
	assert.True(t, first.LastActivity.After(before.LastActivity))

	agent = "agent-2"
	require.NoError(t, manager.UpdateSession(ctx, id, SessionUpdate{UserAgent: &agent}))
	second := manager.GetSession(ctx, id)
	require.NotNil(t, second)
	assert.True(t, second.LastActivity.After(first.LastActivity))
}

func TestSessionManager_UpdateSetsAndClearsImpersonation(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	manager := newTestSessionManager(t, newTestDB(t), clock)

	id, err := manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)

	imp := &auth.Impersonation{
		IsActive:          true,
		StartedAt:         clock.Now(),
		Reason:            "ticket 4411",
		LogID:             uuid.NewString(),
		RestrictedActions: []string{"/api/billing/*"},
	}
	require.NoError(t, manager.UpdateSession(ctx, id, SessionUpdate{Impersonation: imp}))

	state := manager.GetSession(ctx, id)
	require.NotNil(t, state)
	require.True(t, state.IsImpersonating())
	assert.Equal(t, imp.LogID, state.Impersonation.LogID)
	assert.Equal(t, []string{"/api/billing/*"}, state.Impersonation.RestrictedActions)

	require.NoError(t, manager.UpdateSession(ctx, id, SessionUpdate{ClearImpersonation: true}))
	state = manager.GetSession(ctx, id)
	require.NotNil(t, state)
	assert.False(t, state.IsImpersonating())
	assert.Nil(t, state.Impersonation)
}

func TestSessionManager_UpdateMissingSession(t *testing.T) {
	manager := newTestSessionManager(t, newTestDB(t), newTestClock())

	err := manager.UpdateSession(context.Background(), uuid.NewString(), SessionUpdate{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	manager := newTestSessionManager(t, newTestDB(t), newTestClock())

	id, err := manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)

	require.NoError(t, manager.DeleteSession(ctx, id))
	assert.Nil(t, manager.GetSession(ctx, id))
	require.NoError(t, manager.DeleteSession(ctx, id))
	require.NoError(t, manager.DeleteSession(ctx, "garbage"))
}

func TestSessionManager_GetUserSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	manager := newTestSessionManager(t, newTestDB(t), clock)

	userID := uuid.NewString()
	first, err := manager.CreateSession(ctx, adminUser(userID), "", "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := manager.CreateSession(ctx, adminUser(userID), "", "")
	require.NoError(t, err)
	_, err = manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)

	sessions := manager.GetUserSessions(ctx, userID)
	require.Len(t, sessions, 2)
	assert.Equal(t, second, sessions[0].SessionID)
	assert.Equal(t, first, sessions[1].SessionID)

	assert.Empty(t, manager.GetUserSessions(ctx, uuid.NewString()))
	assert.NotNil(t, manager.GetUserSessions(ctx, ""))
}

func TestSessionManager_CleanupExpiredSessions(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	manager := newTestSessionManager(t, newTestDB(t), clock)

	old, err := manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)
	clock.Advance(12 * time.Hour)
	fresh, err := manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)

	removed, err := manager.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	clock.Advance(12 * time.Hour)
	removed, err = manager.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	assert.Nil(t, manager.GetSession(ctx, old))
	assert.NotNil(t, manager.GetSession(ctx, fresh))
}

func TestSessionManager_GetSessionStats(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	manager := newTestSessionManager(t, newTestDB(t), clock)

	_, err := manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)
	clock.Advance(20 * time.Hour)

	impersonating, err := manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)
	require.NoError(t, manager.UpdateSession(ctx, impersonating, SessionUpdate{
		Impersonation: &auth.Impersonation{IsActive: true, StartedAt: clock.Now(), LogID: uuid.NewString()},
	}))
	_, err = manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)

	stats := manager.GetSessionStats(ctx)
	assert.Equal(t, SessionStats{Total: 3, Active: 3, Impersonating: 1, Expired: 0}, stats)

	clock.Advance(5 * time.Hour)
	stats = manager.GetSessionStats(ctx)
	assert.Equal(t, SessionStats{Total: 3, Active: 2, Impersonating: 1, Expired: 1}, stats)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SessionsByState.WithLabelValues("active")))
}

func TestSessionManager_ValidateSessionFlagsOverdueImpersonation(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	manager := newTestSessionManager(t, newTestDB(t), clock)

	id, err := manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)
	require.NoError(t, manager.UpdateSession(ctx, id, SessionUpdate{
		Impersonation: &auth.Impersonation{IsActive: true, StartedAt: clock.Now(), LogID: uuid.NewString()},
	}))

	before := testutil.ToFloat64(metrics.ImpersonationOverdue)

	clock.Advance(time.Hour)
	require.NotNil(t, manager.ValidateSession(ctx, id))
	assert.Equal(t, before, testutil.ToFloat64(metrics.ImpersonationOverdue))

	clock.Advance(90 * time.Minute)
	state := manager.ValidateSession(ctx, id)
	require.NotNil(t, state)
	assert.True(t, state.IsImpersonating(), "overdue impersonation is reported, not ended")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ImpersonationOverdue))

	assert.Nil(t, manager.ValidateSession(ctx, uuid.NewString()))
}

func TestSessionManager_PersistenceFailures(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	manager := newTestSessionManager(t, db, newTestClock())

	id, err := manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	require.NoError(t, err)

	dbtest.Break(t, db)

	assert.Nil(t, manager.GetSession(ctx, id))
	assert.Empty(t, manager.GetUserSessions(ctx, "someone"))
	assert.Equal(t, SessionStats{}, manager.GetSessionStats(ctx))

	_, err = manager.CreateSession(ctx, adminUser(uuid.NewString()), "", "")
	assert.Error(t, err)
	err = manager.UpdateSession(ctx, id, SessionUpdate{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
	assert.Error(t, manager.DeleteSession(ctx, id))
	_, err = manager.CleanupExpiredSessions(ctx)
	assert.Error(t, err)
}
