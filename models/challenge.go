package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Challenge is a daily photo/video challenge users can join.
// Type is either "mandatory" (once per calendar day) or "open" (unlimited).
type Challenge struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	Title             string     `gorm:"size:255;not null" json:"title"`
	Description       string     `gorm:"type:text" json:"description"`
	Type              string     `gorm:"size:16;not null;default:'mandatory'" json:"type"`
	ParticipantsCount int64      `gorm:"not null;default:0" json:"participants_count"`
	EndDate           *time.Time `gorm:"index" json:"end_date"`
	Closed            bool       `gorm:"not null;default:false;index" json:"closed"`
	CreatedBy         string     `gorm:"size:36" json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (c *Challenge) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
