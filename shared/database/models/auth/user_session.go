package auth

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserSession - server side session row. SessionData is the authoritative
// state; the remaining columns mirror it for indexing and expiry queries.
type UserSession struct {
	ID             uuid.UUID                        `json:"id" gorm:"type:uuid;primaryKey"`
	UserID         string                           `json:"user_id" gorm:"size:64;not null;index"`
	SessionData    datatypes.JSONType[SessionState] `json:"session_data" gorm:"not null"`
	ExpiresAt      time.Time                        `json:"expires_at" gorm:"not null;index"`
	LastActivityAt time.Time                        `json:"last_activity_at" gorm:"not null"`
	IPAddress      string                           `json:"ip_address" gorm:"size:50"`
	UserAgent      string                           `json:"user_agent" gorm:"size:500"`
	CreatedAt      time.Time                        `json:"created_at"`
	UpdatedAt      time.Time                        `json:"updated_at"`
}

// TableName returns the table name for UserSession
func (UserSession) TableName() string {
	return "user_sessions"
}

// BeforeCreate assigns a random id when the caller did not set one
func (s *UserSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// State returns the stored session state with the row-level activity timestamp applied
func (s *UserSession) State() SessionState {
	state := s.SessionData.Data()
	if s.LastActivityAt.After(state.LastActivity) {
		state.LastActivity = s.LastActivityAt
	}
	return state
}
