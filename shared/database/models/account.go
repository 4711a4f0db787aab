package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account statuses
const (
	AccountStatusActive    = "active"
	AccountStatusSuspended = "suspended"
)

// Account is a customer buying link placements
type Account struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email       string    `json:"email" gorm:"uniqueIndex;not null"`
	ContactName string    `json:"contact_name" gorm:"size:200"`
	CompanyName string    `json:"company_name" gorm:"size:200"`
	Status      string    `json:"status" gorm:"size:20;not null;default:'active';index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
