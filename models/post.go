package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post is a photo/video submission for a challenge.
type Post struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	ChallengeID string     `gorm:"size:36;index;not null" json:"challenge_id"`
	UserID      string     `gorm:"size:36;index;not null" json:"user_id"`
	Caption     string     `gorm:"type:text" json:"caption"`
	MediaURL    string     `gorm:"size:1024;not null" json:"media_url"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	User        User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Comments    []Comment  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments,omitempty"`
	Reactions   []Reaction `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"reactions,omitempty"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
