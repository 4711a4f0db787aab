package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"linkforge-backend/shared/database/models/audit"
	"linkforge-backend/shared/database/models/auth"
	"linkforge-backend/shared/logger"
	"linkforge-backend/shared/metrics"
	"linkforge-backend/shared/utils/restriction"
)

var (
	// ErrImpersonationNotAllowed is returned when the eligibility rules reject a start
	ErrImpersonationNotAllowed = errors.New("impersonation not allowed")
	// ErrTargetNotFound is returned when no eligible identity has the target id
	ErrTargetNotFound = errors.New("target user not found")
	// ErrNoActiveImpersonation is returned when ending a session that is not impersonating
	ErrNoActiveImpersonation = errors.New("no active impersonation")
)

// ImpersonationConfig configures an ImpersonationService
type ImpersonationConfig struct {
	// RestrictedActions is copied into every new impersonation. Empty means the defaults.
	RestrictedActions []string
	Now               func() time.Time
}

// ActionRecord describes one request made while impersonating
type ActionRecord struct {
	ActionType     string
	Endpoint       string
	Method         string
	RequestPayload json.RawMessage
	ResponseStatus int
}

// ImpersonationLogView is an audit log row joined with display names
type ImpersonationLogView struct {
	audit.ImpersonationLog
	AdminName     string `json:"admin_name" gorm:"column:admin_name"`
	AdminEmail    string `json:"admin_email" gorm:"column:admin_email"`
	TargetName    string `json:"target_name" gorm:"column:target_name"`
	TargetEmail   string `json:"target_email" gorm:"column:target_email"`
	TargetCompany string `json:"target_company" gorm:"column:target_company"`
}

// ImpersonationService starts and ends impersonations on top of SessionManager
// and keeps the audit trail. Starting writes the log before the session and
// the two are not atomic; Reconciler closes logs left behind by a failure.
type ImpersonationService struct {
	db         *gorm.DB
	sessions   *SessionManager
	resolver   IdentityResolver
	events     EventPublisher
	restricted []string
	now        func() time.Time
	log        *zap.Logger
}

// NewImpersonationService creates an ImpersonationService. A nil resolver
// resolves targets from db, a nil publisher drops events.
func NewImpersonationService(db *gorm.DB, sessions *SessionManager, resolver IdentityResolver, events EventPublisher, cfg ImpersonationConfig, log *zap.Logger) *ImpersonationService {
	if resolver == nil {
		resolver = NewTableIdentityResolver(db)
	}
	if events == nil {
		events = NopPublisher{}
	}
	restricted := cfg.RestrictedActions
	if len(restricted) == 0 {
		restricted = restriction.Defaults()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ImpersonationService{
		db:         db,
		sessions:   sessions,
		resolver:   resolver,
		events:     events,
		restricted: append([]string(nil), restricted...),
		now:        now,
		log:        logger.OrNop(log).Named("impersonation"),
	}
}

// eligibleTarget applies the impersonation rules in order and returns the
// resolved target when all of them pass
func (s *ImpersonationService) eligibleTarget(ctx context.Context, session *auth.SessionState, targetUserID string) (*TargetUser, error) {
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.CurrentUser.IsInternalAdmin() {
		return nil, fmt.Errorf("%w: only internal admins may impersonate", ErrImpersonationNotAllowed)
	}
	if session.IsImpersonating() {
		return nil, fmt.Errorf("%w: session is already impersonating", ErrImpersonationNotAllowed)
	}

	target, err := s.resolver.ResolveTarget(ctx, targetUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target user: %w", err)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %w", ErrImpersonationNotAllowed, ErrTargetNotFound)
	}

	switch target.UserType() {
	case auth.UserTypeAccount, auth.UserTypePublisher:
		return target, nil
	default:
		return nil, fmt.Errorf("%w: internal users cannot be impersonated", ErrImpersonationNotAllowed)
	}
}

// CanImpersonate reports whether the admin session may impersonate the target.
// Lookup failures count as a refusal.
func (s *ImpersonationService) CanImpersonate(ctx context.Context, adminSession *auth.SessionState, targetUserID string) bool {
	_, err := s.eligibleTarget(ctx, adminSession, targetUserID)
	if err != nil && !errors.Is(err, ErrImpersonationNotAllowed) && !errors.Is(err, ErrSessionNotFound) {
		s.log.Error("impersonation eligibility check failed", zap.String("target_user_id", targetUserID), zap.Error(err))
	}
	return err == nil
}

// StartImpersonation records an audit log and switches the session to the
// target identity
func (s *ImpersonationService) StartImpersonation(ctx context.Context, adminSessionID, targetUserID, reason string) (*audit.ImpersonationLog, error) {
	session := s.sessions.GetSession(ctx, adminSessionID)
	if session == nil {
		return nil, ErrSessionNotFound
	}

	target, err := s.eligibleTarget(ctx, session, targetUserID)
	if err != nil {
		metrics.ImpersonationEvents.WithLabelValues("rejected").Inc()
		s.log.Warn("impersonation rejected",
			zap.String("session_id", adminSessionID),
			zap.String("admin_user_id", session.CurrentUser.UserID),
			zap.String("target_user_id", targetUserID),
			zap.Error(err),
		)
		return nil, err
	}

	sessionUUID, err := uuid.Parse(session.SessionID)
	if err != nil {
		return nil, fmt.Errorf("invalid session id: %w", err)
	}
	adminUUID, err := uuid.Parse(session.CurrentUser.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid admin user id: %w", err)
	}

	now := s.now()
	entry := audit.ImpersonationLog{
		SessionID:      sessionUUID,
		AdminUserID:    adminUUID,
		TargetUserID:   target.ID(),
		TargetUserType: target.UserType(),
		StartedAt:      now,
		Reason:         reason,
		Status:         audit.LogStatusActive,
		IPAddress:      session.IPAddress,
		UserAgent:      session.UserAgent,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Error("failed to create impersonation log", zap.String("session_id", adminSessionID), zap.Error(err))
		return nil, fmt.Errorf("failed to create impersonation log: %w", err)
	}

	impersonated := target.Snapshot()
	err = s.sessions.UpdateSession(ctx, adminSessionID, SessionUpdate{
		CurrentUser: &impersonated,
		Impersonation: &auth.Impersonation{
			IsActive:          true,
			OriginalUser:      session.CurrentUser,
			ImpersonatedUser:  impersonated,
			StartedAt:         now,
			Reason:            reason,
			LogID:             entry.ID.String(),
			RestrictedActions: append([]string(nil), s.restricted...),
		},
	})
	if err != nil {
		s.log.Error("impersonation log left active after session update failed",
			zap.String("session_id", adminSessionID),
			zap.String("log_id", entry.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to update session for impersonation: %w", err)
	}

	metrics.ImpersonationEvents.WithLabelValues("started").Inc()
	s.log.Info("impersonation started",
		zap.String("session_id", adminSessionID),
		zap.String("log_id", entry.ID.String()),
		zap.String("admin_user_id", adminUUID.String()),
		zap.String("target_user_id", entry.TargetUserID.String()),
		zap.String("target_user_type", entry.TargetUserType),
	)
	s.events.Publish(adminSessionID, SessionEvent{
		Type:         EventImpersonationStarted,
		SessionID:    adminSessionID,
		LogID:        entry.ID.String(),
		TargetUserID: entry.TargetUserID.String(),
		Timestamp:    now,
	})

	return &entry, nil
}

// EndImpersonation closes the audit log and restores the admin identity
func (s *ImpersonationService) EndImpersonation(ctx context.Context, sessionID string) error {
	session := s.sessions.GetSession(ctx, sessionID)
	if session == nil {
		return ErrSessionNotFound
	}
	if !session.IsImpersonating() {
		return ErrNoActiveImpersonation
	}
	imp := session.Impersonation
	now := s.now()

	if logID, err := uuid.Parse(imp.LogID); err != nil {
		s.log.Warn("session carries an invalid impersonation log id", zap.String("session_id", sessionID), zap.String("log_id", imp.LogID))
	} else {
		result := s.db.WithContext(ctx).
			Model(&audit.ImpersonationLog{}).
			Where("id = ? AND status = ?", logID, audit.LogStatusActive).
			Updates(map[string]interface{}{
				"status":     audit.LogStatusEnded,
				"ended_at":   now,
				"end_reason": audit.EndReasonAdmin,
			})
		if result.Error != nil {
			s.log.Error("failed to close impersonation log", zap.String("log_id", imp.LogID), zap.Error(result.Error))
			return fmt.Errorf("failed to close impersonation log: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			s.log.Warn("impersonation log was already closed", zap.String("log_id", imp.LogID))
		}
	}

	restored := imp.OriginalUser
	restored.Role = auth.RoleAdmin
	err := s.sessions.UpdateSession(ctx, sessionID, SessionUpdate{
		CurrentUser:        &restored,
		ClearImpersonation: true,
	})
	if err != nil {
		s.log.Error("failed to restore admin session", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to restore session: %w", err)
	}

	metrics.ImpersonationEvents.WithLabelValues("ended").Inc()
	s.log.Info("impersonation ended",
		zap.String("session_id", sessionID),
		zap.String("log_id", imp.LogID),
		zap.String("admin_user_id", restored.UserID),
		zap.Duration("duration", now.Sub(imp.StartedAt)),
	)
	s.events.Publish(sessionID, SessionEvent{
		Type:         EventImpersonationEnded,
		SessionID:    sessionID,
		LogID:        imp.LogID,
		TargetUserID: imp.ImpersonatedUser.UserID,
		Timestamp:    now,
	})

	return nil
}

// LogAction appends an action to the audit log and bumps its counter.
// Failures are logged and never reach the caller.
func (s *ImpersonationService) LogAction(ctx context.Context, logID string, action ActionRecord) {
	id, err := uuid.Parse(logID)
	if err != nil {
		s.log.Warn("cannot record action for invalid log id", zap.String("log_id", logID))
		return
	}

	var payload datatypes.JSON
	if len(action.RequestPayload) > 0 {
		if json.Valid(action.RequestPayload) {
			payload = datatypes.JSON(action.RequestPayload)
		} else if quoted, err := json.Marshal(string(action.RequestPayload)); err == nil {
			payload = datatypes.JSON(quoted)
		}
	}

	entry := audit.ImpersonationAction{
		LogID:          id,
		ActionType:     action.ActionType,
		Endpoint:       action.Endpoint,
		Method:         action.Method,
		RequestPayload: payload,
		ResponseStatus: action.ResponseStatus,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return tx.Model(&audit.ImpersonationLog{}).
			Where("id = ?", id).
			UpdateColumn("actions_count", gorm.Expr("actions_count + ?", 1)).Error
	})
	if err != nil {
		s.log.Error("failed to record impersonation action",
			zap.String("log_id", logID),
			zap.String("endpoint", action.Endpoint),
			zap.Error(err),
		)
	}
}

func (s *ImpersonationService) logViews(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("impersonation_logs AS l").
		Select(`l.*,
			COALESCE(a.name, '') AS admin_name,
			COALESCE(a.email, '') AS admin_email,
			COALESCE(ac.contact_name, p.contact_name, '') AS target_name,
			COALESCE(ac.email, p.email, '') AS target_email,
			COALESCE(ac.company_name, p.company_name, '') AS target_company`).
		Joins("LEFT JOIN internal_users a ON a.id = l.admin_user_id").
		Joins("LEFT JOIN accounts ac ON l.target_user_type = ? AND ac.id = l.target_user_id", auth.UserTypeAccount).
		Joins("LEFT JOIN publishers p ON l.target_user_type = ? AND p.id = l.target_user_id", auth.UserTypePublisher)
}

// GetActiveSessions lists open audit logs, newest first
func (s *ImpersonationService) GetActiveSessions(ctx context.Context) []ImpersonationLogView {
	views := []ImpersonationLogView{}
	err := s.logViews(ctx).
		Where("l.status = ?", audit.LogStatusActive).
		Order("l.started_at DESC").
		Scan(&views).Error
	if err != nil {
		s.log.Error("failed to list active impersonations", zap.Error(err))
		return []ImpersonationLogView{}
	}
	return views
}

// GetRecentLogs lists audit logs newest first, optionally for one admin
func (s *ImpersonationService) GetRecentLogs(ctx context.Context, adminUserID string, limit int) []ImpersonationLogView {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := s.logViews(ctx)
	if adminUserID != "" {
		id, err := uuid.Parse(adminUserID)
		if err != nil {
			return []ImpersonationLogView{}
		}
		query = query.Where("l.admin_user_id = ?", id)
	}

	views := []ImpersonationLogView{}
	if err := query.Order("l.started_at DESC").Limit(limit).Scan(&views).Error; err != nil {
		s.log.Error("failed to list impersonation logs", zap.String("admin_user_id", adminUserID), zap.Error(err))
		return []ImpersonationLogView{}
	}
	return views
}

// IsActionRestricted reports whether endpoint is blocked for the session
func (s *ImpersonationService) IsActionRestricted(session *auth.SessionState, endpoint string) bool {
	_, restricted := s.RestrictedPattern(session, endpoint)
	return restricted
}

// RestrictedPattern returns the first restriction of the session that blocks endpoint
func (s *ImpersonationService) RestrictedPattern(session *auth.SessionState, endpoint string) (string, bool) {
	if !session.IsImpersonating() {
		return "", false
	}
	return restriction.FirstMatch(session.Impersonation.RestrictedActions, endpoint)
}
