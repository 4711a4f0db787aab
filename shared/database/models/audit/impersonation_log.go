package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Impersonation log statuses
const (
	LogStatusActive = "active"
	LogStatusEnded  = "ended"
)

// Reasons recorded when a log is closed
const (
	EndReasonAdmin      = "admin_ended"
	EndReasonReconciled = "reconciled"
)

// ImpersonationLog is one audit row per impersonation episode
type ImpersonationLog struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	SessionID      uuid.UUID  `json:"session_id" gorm:"type:uuid;not null;index"`
	AdminUserID    uuid.UUID  `json:"admin_user_id" gorm:"type:uuid;not null;index"`
	TargetUserID   uuid.UUID  `json:"target_user_id" gorm:"type:uuid;not null;index"`
	TargetUserType string     `json:"target_user_type" gorm:"type:varchar(20);not null"`
	StartedAt      time.Time  `json:"started_at" gorm:"not null;index"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Reason         string     `json:"reason" gorm:"type:text"`
	Status         string     `json:"status" gorm:"type:varchar(20);not null;index"`
	EndReason      string     `json:"end_reason,omitempty" gorm:"type:varchar(30)"`
	IPAddress      string     `json:"ip_address" gorm:"type:varchar(45)"`
	UserAgent      string     `json:"user_agent" gorm:"type:text"`
	ActionsCount   int        `json:"actions_count" gorm:"not null;default:0"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty" gorm:"index"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName returns the table name for ImpersonationLog
func (ImpersonationLog) TableName() string {
	return "impersonation_logs"
}

// BeforeCreate assigns a random id when the caller did not set one
func (l *ImpersonationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
