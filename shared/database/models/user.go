package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Internal staff roles
const (
	InternalRoleAdmin   = "admin"
	InternalRoleSupport = "support"
)

// InternalUser is a staff member of the platform (support, ops, admins)
type InternalUser struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Name      string    `json:"name" gorm:"size:200"`
	Role      string    `json:"role" gorm:"size:50;not null;default:'support'"`
	Status    string    `json:"status" gorm:"size:20;default:'active'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (InternalUser) TableName() string {
	return "internal_users"
}

func (u *InternalUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
