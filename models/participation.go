package models

import "time"

// Participation is a timestamped fact that a user joined a challenge.
// Rows are append-only; the timestamp is assigned by the store, never by the client.
type Participation struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"size:36;not null;index:idx_participations_user_ts,priority:1;index:idx_participations_user_challenge_ts,priority:1" json:"user_id"`
	ChallengeID string    `gorm:"size:36;not null;index:idx_participations_user_challenge_ts,priority:2" json:"challenge_id"`
	Timestamp   time.Time `gorm:"not null;index:idx_participations_user_ts,priority:2;index:idx_participations_user_challenge_ts,priority:3" json:"timestamp"`
}
