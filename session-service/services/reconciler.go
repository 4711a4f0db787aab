package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"linkforge-backend/shared/database/models/audit"
	"linkforge-backend/shared/database/models/auth"
	"linkforge-backend/shared/logger"
	"linkforge-backend/shared/metrics"
)

// DefaultReconcileGrace is how old an active log must be before it is checked
const DefaultReconcileGrace = time.Minute

// Reconciler closes audit logs that are still active although no live
// session is impersonating under them: the session was deleted or expired,
// or a failed start never attached the log to the session.
type Reconciler struct {
	db    *gorm.DB
	grace time.Duration
	now   func() time.Time
	log   *zap.Logger
}

// NewReconciler creates a Reconciler. Logs younger than grace are skipped so
// a start that is still writing its session is not closed underneath it.
func NewReconciler(db *gorm.DB, grace time.Duration, now func() time.Time, log *zap.Logger) *Reconciler {
	if grace < 0 {
		grace = DefaultReconcileGrace
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		db:    db,
		grace: grace,
		now:   now,
		log:   logger.OrNop(log).Named("reconciler"),
	}
}

// Run closes orphaned logs and returns how many it closed
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	now := r.now()
	db := r.db.WithContext(ctx)

	var candidates []audit.ImpersonationLog
	err := db.Where("status = ? AND started_at <= ?", audit.LogStatusActive, now.Add(-r.grace)).
		Order("started_at ASC").
		Find(&candidates).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load active impersonation logs: %w", err)
	}

	closed := 0
	for _, entry := range candidates {
		orphaned, why, err := r.isOrphaned(ctx, entry, now)
		if err != nil {
			return closed, err
		}
		if !orphaned {
			continue
		}

		result := db.Model(&audit.ImpersonationLog{}).
			Where("id = ? AND status = ?", entry.ID, audit.LogStatusActive).
			Updates(map[string]interface{}{
				"status":     audit.LogStatusEnded,
				"ended_at":   now,
				"end_reason": audit.EndReasonReconciled,
			})
		if result.Error != nil {
			return closed, fmt.Errorf("failed to close impersonation log %s: %w", entry.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}

		closed++
		metrics.ImpersonationEvents.WithLabelValues("reconciled").Inc()
		r.log.Info("closed orphaned impersonation log",
			zap.String("log_id", entry.ID.String()),
			zap.String("session_id", entry.SessionID.String()),
			zap.String("cause", why),
		)
	}

	return closed, nil
}

func (r *Reconciler) isOrphaned(ctx context.Context, entry audit.ImpersonationLog, now time.Time) (bool, string, error) {
	var row auth.UserSession
	err := r.db.WithContext(ctx).Where("id = ?", entry.SessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, "session deleted", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to load session %s: %w", entry.SessionID, err)
	}

	if !row.ExpiresAt.After(now) {
		return true, "session expired", nil
	}

	state := row.State()
	if !state.IsImpersonating() || state.Impersonation.LogID != entry.ID.String() {
		return true, "session not impersonating under this log", nil
	}
	return false, "", nil
}
