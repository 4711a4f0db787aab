package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"linkforge-backend/shared/database/models/auth"
	"linkforge-backend/shared/logger"
	"linkforge-backend/shared/metrics"
)

// ErrSessionNotFound is returned by write paths that require a live session
var ErrSessionNotFound = errors.New("session not found")

// SessionManagerConfig holds the session lifetime settings
type SessionManagerConfig struct {
	SessionDuration          time.Duration
	MaxImpersonationDuration time.Duration
	// Now overrides the clock; defaults to time.Now in UTC.
	Now func() time.Time
}

// SessionStats is an aggregate snapshot of the session table
type SessionStats struct {
	Total         int64 `json:"total"`
	Active        int64 `json:"active"`
	Impersonating int64 `json:"impersonating"`
	Expired       int64 `json:"expired"`
}

// SessionUpdate is a shallow partial update. Nil fields are left untouched.
// ClearImpersonation removes the impersonation sub-record and takes precedence
// over Impersonation.
type SessionUpdate struct {
	CurrentUser        *auth.SessionUser
	Impersonation      *auth.Impersonation
	ClearImpersonation bool
	ExpiresAt          *time.Time
	IPAddress          *string
	UserAgent          *string
}

func (u SessionUpdate) apply(state *auth.SessionState) {
	if u.CurrentUser != nil {
		state.CurrentUser = *u.CurrentUser
	}
	if u.ClearImpersonation {
		state.Impersonation = nil
	} else if u.Impersonation != nil {
		state.Impersonation = u.Impersonation
	}
	if u.ExpiresAt != nil {
		state.ExpiresAt = *u.ExpiresAt
	}
	if u.IPAddress != nil {
		state.IPAddress = *u.IPAddress
	}
	if u.UserAgent != nil {
		state.UserAgent = *u.UserAgent
	}
}

// SessionManager owns the lifecycle of server side session rows. It keeps no
// copy of a session between calls; every operation reads the table.
type SessionManager struct {
	db  *gorm.DB
	cfg SessionManagerConfig
	log *zap.Logger
}

// NewSessionManager creates a SessionManager
func NewSessionManager(db *gorm.DB, cfg SessionManagerConfig, log *zap.Logger) *SessionManager {
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = 24 * time.Hour
	}
	if cfg.MaxImpersonationDuration <= 0 {
		cfg.MaxImpersonationDuration = 2 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &SessionManager{
		db:  db,
		cfg: cfg,
		log: logger.OrNop(log).Named("sessions"),
	}
}

func (m *SessionManager) now() time.Time {
	return m.cfg.Now()
}

// CreateSession stores a new session for user and returns its id
func (m *SessionManager) CreateSession(ctx context.Context, user auth.SessionUser, ipAddress, userAgent string) (string, error) {
	timer := metrics.TrackSessionOperation("create")
	defer timer.ObserveDuration()

	if user.UserID == "" {
		return "", errors.New("failed to create session: user id is required")
	}

	now := m.now()
	id := uuid.New()
	state := auth.SessionState{
		SessionID:    id.String(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.cfg.SessionDuration),
		LastActivity: now,
		CurrentUser:  user,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
	}

	row := auth.UserSession{
		ID:             id,
		UserID:         user.UserID,
		SessionData:    datatypes.NewJSONType(state),
		ExpiresAt:      state.ExpiresAt,
		LastActivityAt: now,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
	}

	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		metrics.TrackSessionError("create")
		m.log.Error("failed to create session", zap.String("user_id", user.UserID), zap.Error(err))
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	m.log.Info("session created",
		zap.String("session_id", state.SessionID),
		zap.String("user_id", user.UserID),
		zap.Time("expires_at", state.ExpiresAt),
	)
	return state.SessionID, nil
}

// loadLive returns the non-expired row for sessionID, or nil when there is none
func (m *SessionManager) loadLive(ctx context.Context, sessionID string) (*auth.UserSession, error) {
	if sessionID == "" {
		return nil, nil
	}
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, nil
	}

	var row auth.UserSession
	err = m.db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", id, m.now()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetSession returns the live session or nil. A hit refreshes the activity
// timestamp on a best-effort basis.
func (m *SessionManager) GetSession(ctx context.Context, sessionID string) *auth.SessionState {
	timer := metrics.TrackSessionOperation("get")
	defer timer.ObserveDuration()

	row, err := m.loadLive(ctx, sessionID)
	if err != nil {
		metrics.TrackSessionError("get")
		m.log.Error("failed to fetch session", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	if row == nil {
		return nil
	}

	now := m.now()
	err = m.db.WithContext(ctx).
		Model(&auth.UserSession{}).
		Where("id = ?", row.ID).
		UpdateColumn("last_activity_at", now).Error
	if err != nil {
		metrics.TrackSessionError("touch")
		m.log.Warn("failed to update session activity", zap.String("session_id", sessionID), zap.Error(err))
	} else {
		row.LastActivityAt = now
	}

	state := row.State()
	return &state
}

// UpdateSession merges update into the stored state and writes it back.
// Concurrent updates are last-writer-wins on the whole document.
func (m *SessionManager) UpdateSession(ctx context.Context, sessionID string, update SessionUpdate) error {
	timer := metrics.TrackSessionOperation("update")
	defer timer.ObserveDuration()

	row, err := m.loadLive(ctx, sessionID)
	if err != nil {
		metrics.TrackSessionError("update")
		m.log.Error("failed to load session for update", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to update session: %w", err)
	}
	if row == nil {
		return ErrSessionNotFound
	}

	state := row.State()
	update.apply(&state)

	// Postgres keeps microseconds, so step at least that far to stay monotonic.
	now := m.now()
	if !now.After(state.LastActivity) {
		now = state.LastActivity.Add(time.Microsecond)
	}
	state.LastActivity = now

	result := m.db.WithContext(ctx).
		Model(&auth.UserSession{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"session_data":     datatypes.NewJSONType(state),
			"expires_at":       state.ExpiresAt,
			"last_activity_at": now,
			"ip_address":       state.IPAddress,
			"user_agent":       state.UserAgent,
		})
	if result.Error != nil {
		metrics.TrackSessionError("update")
		m.log.Error("failed to write session", zap.String("session_id", sessionID), zap.Error(result.Error))
		return fmt.Errorf("failed to update session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// DeleteSession removes the session. Deleting an unknown id is not an error.
func (m *SessionManager) DeleteSession(ctx context.Context, sessionID string) error {
	timer := metrics.TrackSessionOperation("delete")
	defer timer.ObserveDuration()

	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil
	}

	if err := m.db.WithContext(ctx).Where("id = ?", id).Delete(&auth.UserSession{}).Error; err != nil {
		metrics.TrackSessionError("delete")
		m.log.Error("failed to delete session", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.log.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

// GetUserSessions lists the user's live sessions, newest first
func (m *SessionManager) GetUserSessions(ctx context.Context, userID string) []auth.SessionState {
	timer := metrics.TrackSessionOperation("list")
	defer timer.ObserveDuration()

	if userID == "" {
		return []auth.SessionState{}
	}

	var rows []auth.UserSession
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, m.now()).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		metrics.TrackSessionError("list")
		m.log.Error("failed to list user sessions", zap.String("user_id", userID), zap.Error(err))
		return []auth.SessionState{}
	}

	states := make([]auth.SessionState, 0, len(rows))
	for i := range rows {
		states = append(states, rows[i].State())
	}
	return states
}

// CleanupExpiredSessions deletes every session past its expiry
func (m *SessionManager) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	timer := metrics.TrackSessionOperation("cleanup")
	defer timer.ObserveDuration()

	result := m.db.WithContext(ctx).
		Where("expires_at <= ?", m.now()).
		Delete(&auth.UserSession{})
	if result.Error != nil {
		metrics.TrackSessionError("cleanup")
		m.log.Error("failed to clean up expired sessions", zap.Error(result.Error))
		return 0, fmt.Errorf("failed to clean up expired sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		m.log.Info("expired sessions removed", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// ValidateSession returns the live session like GetSession and reports an
// impersonation that has run past the maximum duration. It does not end it.
func (m *SessionManager) ValidateSession(ctx context.Context, sessionID string) *auth.SessionState {
	state := m.GetSession(ctx, sessionID)
	if state == nil {
		return nil
	}

	if state.IsImpersonating() {
		elapsed := m.now().Sub(state.Impersonation.StartedAt)
		if elapsed > m.cfg.MaxImpersonationDuration {
			metrics.ImpersonationOverdue.Inc()
			m.log.Warn("impersonation exceeded maximum duration",
				zap.String("session_id", sessionID),
				zap.String("log_id", state.Impersonation.LogID),
				zap.String("admin_user_id", state.Impersonation.OriginalUser.UserID),
				zap.Duration("elapsed", elapsed),
				zap.Duration("max", m.cfg.MaxImpersonationDuration),
			)
		}
	}

	return state
}

// GetSessionStats counts sessions by state. Failures yield zero counts.
func (m *SessionManager) GetSessionStats(ctx context.Context) SessionStats {
	timer := metrics.TrackSessionOperation("stats")
	defer timer.ObserveDuration()

	now := m.now()
	db := m.db.WithContext(ctx)
	var stats SessionStats

	if err := db.Model(&auth.UserSession{}).Count(&stats.Total).Error; err != nil {
		return m.statsFailed(err)
	}
	if err := db.Model(&auth.UserSession{}).Where("expires_at > ?", now).Count(&stats.Active).Error; err != nil {
		return m.statsFailed(err)
	}
	err := db.Model(&auth.UserSession{}).
		Where("expires_at > ?", now).
		Where(datatypes.JSONQuery("session_data").Equals(true, "impersonation", "isActive")).
		Count(&stats.Impersonating).Error
	if err != nil {
		return m.statsFailed(err)
	}
	stats.Expired = stats.Total - stats.Active

	metrics.SessionsByState.WithLabelValues("total").Set(float64(stats.Total))
	metrics.SessionsByState.WithLabelValues("active").Set(float64(stats.Active))
	metrics.SessionsByState.WithLabelValues("impersonating").Set(float64(stats.Impersonating))
	metrics.SessionsByState.WithLabelValues("expired").Set(float64(stats.Expired))

	return stats
}

func (m *SessionManager) statsFailed(err error) SessionStats {
	metrics.TrackSessionError("stats")
	m.log.Error("failed to compute session stats", zap.Error(err))
	return SessionStats{}
}
