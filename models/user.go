package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an app user. Passwords are stored as bcrypt hashes only.
type User struct {
	ID                 string         `gorm:"primaryKey;size:36" json:"id"`
	Username           string         `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email              string         `gorm:"size:255" json:"email"`
	PasswordHash       string         `gorm:"size:255" json:"-"`
	AvatarURL          string         `gorm:"size:512" json:"avatar_url"`
	Bio                string         `gorm:"size:255" json:"bio"`
	ConsecutiveDays    int            `gorm:"default:0;index" json:"consecutive_days"`
	LastParticipatedAt *time.Time     `json:"last_participated_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
	Posts              []Post         `json:"-"`
}

// BeforeCreate hook assigns an id and ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
