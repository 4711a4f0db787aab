package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"linkforge-backend/shared/database/models/audit"
	"linkforge-backend/shared/logger"
	"linkforge-backend/shared/metrics"
)

// ObjectStore is where archived audit documents are written
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// ArchiveDocument is the JSON written for one ended impersonation
type ArchiveDocument struct {
	Log        audit.ImpersonationLog      `json:"log"`
	Actions    []audit.ImpersonationAction `json:"actions"`
	ArchivedAt time.Time                   `json:"archived_at"`
}

// ArchiveKey returns the object key for a log
func ArchiveKey(entry audit.ImpersonationLog) string {
	return fmt.Sprintf("impersonation/%s/%s.json", entry.StartedAt.UTC().Format("2006/01/02"), entry.ID)
}

// AuditArchiver copies ended impersonation logs and their actions to object
// storage and stamps them archived. Rows stay in the database.
type AuditArchiver struct {
	db        *gorm.DB
	store     ObjectStore
	batchSize int
	now       func() time.Time
	log       *zap.Logger
}

// NewAuditArchiver creates an AuditArchiver
func NewAuditArchiver(db *gorm.DB, store ObjectStore, batchSize int, log *zap.Logger) *AuditArchiver {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &AuditArchiver{
		db:        db,
		store:     store,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.OrNop(log).Named("archiver"),
	}
}

// Run archives one batch and returns how many logs were written. A log whose
// upload fails is left for the next run.
func (a *AuditArchiver) Run(ctx context.Context) (int, error) {
	db := a.db.WithContext(ctx)

	var pending []audit.ImpersonationLog
	err := db.Where("status = ? AND archived_at IS NULL", audit.LogStatusEnded).
		Order("ended_at ASC").
		Limit(a.batchSize).
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load logs to archive: %w", err)
	}

	archived := 0
	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			return archived, err
		}

		var actions []audit.ImpersonationAction
		if err := db.Where("log_id = ?", entry.ID).Order("created_at ASC").Find(&actions).Error; err != nil {
			a.log.Error("failed to load impersonation actions", zap.String("log_id", entry.ID.String()), zap.Error(err))
			continue
		}

		now := a.now()
		data, err := json.Marshal(ArchiveDocument{Log: entry, Actions: actions, ArchivedAt: now})
		if err != nil {
			a.log.Error("failed to encode archive document", zap.String("log_id", entry.ID.String()), zap.Error(err))
			continue
		}

		key := ArchiveKey(entry)
		if err := a.store.PutObject(ctx, key, data, "application/json"); err != nil {
			a.log.Warn("failed to upload archive document", zap.String("key", key), zap.Error(err))
			continue
		}

		err = db.Model(&audit.ImpersonationLog{}).
			Where("id = ?", entry.ID).
			UpdateColumn("archived_at", now).Error
		if err != nil {
			a.log.Error("failed to mark log archived", zap.String("log_id", entry.ID.String()), zap.Error(err))
			continue
		}

		archived++
		metrics.ImpersonationEvents.WithLabelValues("archived").Inc()
	}

	if archived > 0 {
		a.log.Info("impersonation logs archived", zap.Int("count", archived))
	}
	return archived, nil
}
