package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"linkforge-backend/shared/database/models"
	"linkforge-backend/shared/database/models/audit"
	"linkforge-backend/shared/database/models/auth"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (p *recordingPublisher) Publish(sessionID string, event SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type stubResolver struct {
	target *TargetUser
	err    error
	hook   func()
}

func (r *stubResolver) ResolveTarget(ctx context.Context, userID string) (*TargetUser, error) {
	if r.hook != nil {
		r.hook()
	}
	return r.target, r.err
}

type impersonationFixture struct {
	db        *gorm.DB
	clock     *testClock
	sessions  *SessionManager
	service   *ImpersonationService
	events    *recordingPublisher
	admin     models.InternalUser
	sessionID string
}

func newImpersonationFixture(t *testing.T, resolver IdentityResolver) *impersonationFixture {
	t.Helper()
	db := newTestDB(t)
	clock := newTestClock()
	sessions := newTestSessionManager(t, db, clock)
	events := &recordingPublisher{}
	service := NewImpersonationService(db, sessions, resolver, events, ImpersonationConfig{Now: clock.Now}, nil)

	admin := seedAdmin(t, db)
	sessionID, err := sessions.CreateSession(context.Background(), adminUser(admin.ID.String()), "192.0.2.10", "Mozilla/5.0 (Macintosh)")
	require.NoError(t, err)

	return &impersonationFixture{
		db:        db,
		clock:     clock,
		sessions:  sessions,
		service:   service,
		events:    events,
		admin:     admin,
		sessionID: sessionID,
	}
}

func (f *impersonationFixture) loadLog(t *testing.T, id uuid.UUID) audit.ImpersonationLog {
	t.Helper()
	var entry audit.ImpersonationLog
	require.NoError(t, f.db.First(&entry, "id = ?", id).Error)
	return entry
}

func TestImpersonation_StartAndEndAccount(t *testing.T) {
	ctx := context.Background()
	f := newImpersonationFixture(t, nil)
	account := seedAccount(t, f.db, models.AccountStatusActive)

	entry, err := f.service.StartImpersonation(ctx, f.sessionID, account.ID.String(), "customer cannot see invoices")
	require.NoError(t, err)
	require.NotNil(t, entry)

	stored := f.loadLog(t, entry.ID)
	assert.Equal(t, audit.LogStatusActive, stored.Status)
	assert.Equal(t, f.admin.ID, stored.AdminUserID)
	assert.Equal(t, account.ID, stored.TargetUserID)
	assert.Equal(t, auth.UserTypeAccount, stored.TargetUserType)
	assert.Equal(t, "customer cannot see invoices", stored.Reason)
	assert.Equal(t, "192.0.2.10", stored.IPAddress)
	assert.Nil(t, stored.EndedAt)

	state := f.sessions.GetSession(ctx, f.sessionID)
	require.NotNil(t, state)
	require.True(t, state.IsImpersonating())
	assert.Equal(t, account.ID.String(), state.CurrentUser.UserID)
	assert.Equal(t, auth.UserTypeAccount, state.CurrentUser.UserType)
	assert.Equal(t, auth.RoleUser, state.CurrentUser.Role)
	require.NotNil(t, state.CurrentUser.AccountID)
	assert.Equal(t, account.ID.String(), *state.CurrentUser.AccountID)
	assert.Equal(t, "Acme Corp", state.CurrentUser.CompanyName)
	assert.Equal(t, f.admin.ID.String(), state.Impersonation.OriginalUser.UserID)
	assert.Equal(t, state.CurrentUser, state.Impersonation.ImpersonatedUser)
	assert.Equal(t, entry.ID.String(), state.Impersonation.LogID)
	assert.True(t, f.service.IsActionRestricted(state, "/api/admin/users/delete"))
	assert.True(t, f.service.IsActionRestricted(state, "/api/billing/invoices"))
	assert.False(t, f.service.IsActionRestricted(state, "/api/links"))

	f.clock.Advance(15 * time.Minute)
	require.NoError(t, f.service.EndImpersonation(ctx, f.sessionID))

	stored = f.loadLog(t, entry.ID)
	assert.Equal(t, audit.LogStatusEnded, stored.Status)
	assert.Equal(t, audit.EndReasonAdmin, stored.EndReason)
	require.NotNil(t, stored.EndedAt)
	assert.True(t, stored.EndedAt.Equal(f.clock.Now()))

	state = f.sessions.GetSession(ctx, f.sessionID)
	require.NotNil(t, state)
	assert.False(t, state.IsImpersonating())
	assert.Nil(t, state.Impersonation)
	assert.Equal(t, f.admin.ID.String(), state.CurrentUser.UserID)
	assert.Equal(t, auth.RoleAdmin, state.CurrentUser.Role)
	assert.True(t, state.CurrentUser.IsInternalAdmin())
	assert.False(t, f.service.IsActionRestricted(state, "/api/admin/users/delete"))

	assert.Equal(t, []string{EventImpersonationStarted, EventImpersonationEnded}, f.events.types())
}

func TestImpersonation_PendingPublisher(t *testing.T) {
	ctx := context.Background()
	f := newImpersonationFixture(t, nil)
	publisher := seedPublisher(t, f.db, models.PublisherStatusPending)

	entry, err := f.service.StartImpersonation(ctx, f.sessionID, publisher.ID.String(), "onboarding help")
	require.NoError(t, err)
	assert.Equal(t, auth.UserTypePublisher, entry.TargetUserType)

	state := f.sessions.GetSession(ctx, f.sessionID)
	require.NotNil(t, state)
	assert.Equal(t, auth.RolePublisher, state.CurrentUser.Role)
	require.NotNil(t, state.CurrentUser.PublisherID)
	assert.Equal(t, publisher.ID.String(), *state.CurrentUser.PublisherID)
	assert.Nil(t, state.CurrentUser.AccountID)
}

func TestImpersonation_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("suspended account", func(t *testing.T) {
		f := newImpersonationFixture(t, nil)
		account := seedAccount(t, f.db, models.AccountStatusSuspended)
		_, err := f.service.StartImpersonation(ctx, f.sessionID, account.ID.String(), "x")
		assert.ErrorIs(t, err, ErrImpersonationNotAllowed)
		assert.ErrorIs(t, err, ErrTargetNotFound)
	})

	t.Run("rejected publisher", func(t *testing.T) {
		f := newImpersonationFixture(t, nil)
		publisher := seedPublisher(t, f.db, models.PublisherStatusRejected)
		_, err := f.service.StartImpersonation(ctx, f.sessionID, publisher.ID.String(), "x")
		assert.ErrorIs(t, err, ErrImpersonationNotAllowed)
	})

	t.Run("unknown target", func(t *testing.T) {
		f := newImpersonationFixture(t, nil)
		_, err := f.service.StartImpersonation(ctx, f.sessionID, uuid.NewString(), "x")
		assert.ErrorIs(t, err, ErrTargetNotFound)
		_, err = f.service.StartImpersonation(ctx, f.sessionID, "not-a-uuid", "x")
		assert.ErrorIs(t, err, ErrTargetNotFound)
	})

	t.Run("internal target", func(t *testing.T) {
		internal := &models.InternalUser{ID: uuid.New(), Email: "other@linkforge.io", Role: models.InternalRoleSupport}
		f := newImpersonationFixture(t, &stubResolver{target: &TargetUser{Internal: internal}})
		_, err := f.service.StartImpersonation(ctx, f.sessionID, internal.ID.String(), "x")
		assert.ErrorIs(t, err, ErrImpersonationNotAllowed)
	})

	t.Run("non admin session", func(t *testing.T) {
		f := newImpersonationFixture(t, nil)
		account := seedAccount(t, f.db, models.AccountStatusActive)
		support := adminUser(uuid.NewString())
		support.Role = models.InternalRoleSupport
		sessionID, err := f.sessions.CreateSession(ctx, support, "", "")
		require.NoError(t, err)

		_, err = f.service.StartImpersonation(ctx, sessionID, account.ID.String(), "x")
		assert.ErrorIs(t, err, ErrImpersonationNotAllowed)
	})

	t.Run("already impersonating", func(t *testing.T) {
		f := newImpersonationFixture(t, nil)
		first := seedAccount(t, f.db, models.AccountStatusActive)
		second := seedAccount(t, f.db, models.AccountStatusActive)

		_, err := f.service.StartImpersonation(ctx, f.sessionID, first.ID.String(), "x")
		require.NoError(t, err)
		_, err = f.service.StartImpersonation(ctx, f.sessionID, second.ID.String(), "x")
		assert.ErrorIs(t, err, ErrImpersonationNotAllowed)

		state := f.sessions.GetSession(ctx, f.sessionID)
		require.NotNil(t, state)
		assert.Equal(t, first.ID.String(), state.CurrentUser.UserID)
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newImpersonationFixture(t, nil)
		account := seedAccount(t, f.db, models.AccountStatusActive)
		_, err := f.service.StartImpersonation(ctx, uuid.NewString(), account.ID.String(), "x")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("no log written", func(t *testing.T) {
		f := newImpersonationFixture(t, nil)
		_, err := f.service.StartImpersonation(ctx, f.sessionID, uuid.NewString(), "x")
		require.Error(t, err)
		var count int64
		require.NoError(t, f.db.Model(&audit.ImpersonationLog{}).Count(&count).Error)
		assert.Zero(t, count)
		assert.Empty(t, f.events.types())
	})
}

func TestImpersonation_CanImpersonate(t *testing.T) {
	ctx := context.Background()
	f := newImpersonationFixture(t, nil)
	account := seedAccount(t, f.db, models.AccountStatusActive)
	session := f.sessions.GetSession(ctx, f.sessionID)
	require.NotNil(t, session)

	assert.True(t, f.service.CanImpersonate(ctx, session, account.ID.String()))
	assert.False(t, f.service.CanImpersonate(ctx, nil, account.ID.String()))
	assert.False(t, f.service.CanImpersonate(ctx, session, f.admin.ID.String()))

	failing := NewImpersonationService(f.db, f.sessions, &stubResolver{err: errors.New("lookup failed")}, nil, ImpersonationConfig{}, nil)
	assert.False(t, failing.CanImpersonate(ctx, session, account.ID.String()))
}

func TestImpersonation_EndWithoutImpersonation(t *testing.T) {
	ctx := context.Background()
	f := newImpersonationFixture(t, nil)

	assert.ErrorIs(t, f.service.EndImpersonation(ctx, f.sessionID), ErrNoActiveImpersonation)
	assert.ErrorIs(t, f.service.EndImpersonation(ctx, uuid.NewString()), ErrSessionNotFound)
}

func TestImpersonation_SessionLostDuringStartLeavesActiveLog(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	clock := newTestClock()
	sessions := newTestSessionManager(t, db, clock)
	account := seedAccount(t, db, models.AccountStatusActive)
	admin := seedAdmin(t, db)

	sessionID, err := sessions.CreateSession(ctx, adminUser(admin.ID.String()), "", "")
	require.NoError(t, err)

	resolver := &stubResolver{
		target: &TargetUser{Account: &account},
		hook: func() {
			require.NoError(t, sessions.DeleteSession(ctx, sessionID))
		},
	}
	service := NewImpersonationService(db, sessions, resolver, nil, ImpersonationConfig{Now: clock.Now}, nil)

	_, err = service.StartImpersonation(ctx, sessionID, account.ID.String(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	active := service.GetActiveSessions(ctx)
	require.Len(t, active, 1, "the log is left for the reconciler")
	assert.Equal(t, audit.LogStatusActive, active[0].Status)
}

func TestImpersonation_LogAction(t *testing.T) {
	ctx := context.Background()
	f := newImpersonationFixture(t, nil)
	account := seedAccount(t, f.db, models.AccountStatusActive)

	entry, err := f.service.StartImpersonation(ctx, f.sessionID, account.ID.String(), "x")
	require.NoError(t, err)

	f.service.LogAction(ctx, entry.ID.String(), ActionRecord{
		ActionType:     "modify",
		Endpoint:       "/api/links/42",
		Method:         "PUT",
		RequestPayload: []byte(`{"anchor":"shoes"}`),
		ResponseStatus: 200,
	})
	f.service.LogAction(ctx, entry.ID.String(), ActionRecord{
		ActionType:     "modify",
		Endpoint:       "/api/links",
		Method:         "POST",
		RequestPayload: []byte(`not json`),
		ResponseStatus: 400,
	})
	f.service.LogAction(ctx, "bogus", ActionRecord{Endpoint: "/ignored"})

	assert.Equal(t, 2, f.loadLog(t, entry.ID).ActionsCount)

	var actions []audit.ImpersonationAction
	require.NoError(t, f.db.Where("log_id = ?", entry.ID).Order("endpoint DESC").Find(&actions).Error)
	require.Len(t, actions, 2)
	assert.Equal(t, "/api/links/42", actions[0].Endpoint)
	assert.JSONEq(t, `{"anchor":"shoes"}`, string(actions[0].RequestPayload))
	assert.JSONEq(t, `"not json"`, string(actions[1].RequestPayload))
	assert.Equal(t, 400, actions[1].ResponseStatus)
}

func TestImpersonation_LogViews(t *testing.T) {
	ctx := context.Background()
	f := newImpersonationFixture(t, nil)
	account := seedAccount(t, f.db, models.AccountStatusActive)
	publisher := seedPublisher(t, f.db, models.PublisherStatusActive)

	first, err := f.service.StartImpersonation(ctx, f.sessionID, account.ID.String(), "first")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	require.NoError(t, f.service.EndImpersonation(ctx, f.sessionID))
	f.clock.Advance(time.Minute)
	second, err := f.service.StartImpersonation(ctx, f.sessionID, publisher.ID.String(), "second")
	require.NoError(t, err)

	active := f.service.GetActiveSessions(ctx)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, "Ops Admin", active[0].AdminName)
	assert.Equal(t, f.admin.Email, active[0].AdminEmail)
	assert.Equal(t, "Daily News", active[0].TargetCompany)
	assert.Equal(t, publisher.Email, active[0].TargetEmail)

	logs := f.service.GetRecentLogs(ctx, f.admin.ID.String(), 10)
	require.Len(t, logs, 2)
	assert.Equal(t, second.ID, logs[0].ID)
	assert.Equal(t, first.ID, logs[1].ID)
	assert.Equal(t, "Ada Acme", logs[1].TargetName)
	assert.Equal(t, audit.LogStatusEnded, logs[1].Status)
	require.NotNil(t, logs[1].EndedAt)

	assert.Len(t, f.service.GetRecentLogs(ctx, f.admin.ID.String(), 1), 1)
	assert.Len(t, f.service.GetRecentLogs(ctx, "", 0), 2)
	assert.Empty(t, f.service.GetRecentLogs(ctx, uuid.NewString(), 10))
	assert.Empty(t, f.service.GetRecentLogs(ctx, "nope", 10))
}

func TestImpersonation_CustomRestrictedActions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	clock := newTestClock()
	sessions := newTestSessionManager(t, db, clock)
	service := NewImpersonationService(db, sessions, nil, nil, ImpersonationConfig{
		RestrictedActions: []string{"/api/exports/*"},
		Now:               clock.Now,
	}, nil)
	admin := seedAdmin(t, db)
	account := seedAccount(t, db, models.AccountStatusActive)

	sessionID, err := sessions.CreateSession(ctx, adminUser(admin.ID.String()), "", "")
	require.NoError(t, err)
	_, err = service.StartImpersonation(ctx, sessionID, account.ID.String(), "x")
	require.NoError(t, err)

	state := sessions.GetSession(ctx, sessionID)
	require.NotNil(t, state)
	assert.Equal(t, []string{"/api/exports/*"}, state.Impersonation.RestrictedActions)
	assert.True(t, service.IsActionRestricted(state, "/api/exports/csv"))
	assert.False(t, service.IsActionRestricted(state, "/api/billing/x"))
	assert.False(t, service.IsActionRestricted(nil, "/api/exports/csv"))

	pattern, ok := service.RestrictedPattern(state, "/api/exports/csv")
	assert.True(t, ok)
	assert.Equal(t, "/api/exports/*", pattern)
	_, ok = service.RestrictedPattern(nil, "/api/exports/csv")
	assert.False(t, ok)
}

func TestImpersonation_ReadPathsSurviveBrokenDatabase(t *testing.T) {
	f := newImpersonationFixture(t, nil)
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	assert.NotNil(t, f.service.GetActiveSessions(context.Background()))
	assert.Empty(t, f.service.GetRecentLogs(context.Background(), "", 10))
	assert.NotPanics(t, func() {
		f.service.LogAction(context.Background(), uuid.NewString(), ActionRecord{Endpoint: "/x"})
	})
}
