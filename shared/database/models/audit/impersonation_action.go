package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImpersonationAction represents one request made while impersonating
type ImpersonationAction struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	LogID          uuid.UUID      `json:"log_id" gorm:"type:uuid;not null;index"`
	ActionType     string         `json:"action_type" gorm:"type:varchar(50);not null"`
	Endpoint       string         `json:"endpoint" gorm:"type:varchar(500);not null"`
	Method         string         `json:"method" gorm:"type:varchar(10);not null"`
	RequestPayload datatypes.JSON `json:"request_payload,omitempty"`
	ResponseStatus int            `json:"response_status" gorm:"not null"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName returns the table name for ImpersonationAction
func (ImpersonationAction) TableName() string {
	return "impersonation_actions"
}

// BeforeCreate assigns a random id when the caller did not set one
func (a *ImpersonationAction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
