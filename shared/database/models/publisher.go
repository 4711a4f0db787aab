package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Publisher statuses
const (
	PublisherStatusPending  = "pending"
	PublisherStatusActive   = "active"
	PublisherStatusRejected = "rejected"
)

// Publisher is a website owner selling placements; onboarding leaves it pending until approved
type Publisher struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email       string    `json:"email" gorm:"uniqueIndex;not null"`
	ContactName string    `json:"contact_name" gorm:"size:200"`
	CompanyName string    `json:"company_name" gorm:"size:200"`
	Status      string    `json:"status" gorm:"size:20;not null;default:'pending';index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Publisher) TableName() string {
	return "publishers"
}

func (p *Publisher) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
