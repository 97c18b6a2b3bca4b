package ledger

import (
	"context"
	"time"
)

// ChallengeType controls how often a user may join a challenge.
type ChallengeType string

const (
	// Mandatory challenges allow one participation per user per calendar day.
	Mandatory ChallengeType = "mandatory"
	// Open challenges allow unlimited participations.
	Open ChallengeType = "open"
)

// ParseChallengeType validates a stored or requested type string.
func ParseChallengeType(s string) (ChallengeType, error) {
	switch ChallengeType(s) {
	case Mandatory, Open:
		return ChallengeType(s), nil
	default:
		return "", ErrUnknownChallengeType
	}
}

// Participation is one recorded join.
type Participation struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// Store is the document store the ledger reads from and writes to.
type Store interface {
	// CountSince counts the user's participations in challengeID at or after since.
	CountSince(ctx context.Context, userID, challengeID string, since time.Time) (int64, error)
	// ChallengeIDs lists challenge ids the user participated in at or after since.
	// A zero since means all history. Duplicates are allowed.
	ChallengeIDs(ctx context.Context, userID string, since time.Time) ([]string, error)
	// Timestamps lists every participation timestamp of the user across all challenges.
	Timestamps(ctx context.Context, userID string) ([]time.Time, error)
	// RecordParticipation atomically increments the challenge's participant counter
	// and inserts rec with a generated id and a store-assigned timestamp.
	// When dedupSince is non-nil the write is refused with ErrAlreadyParticipatedToday
	// if a participation for the same user and challenge exists at or after it.
	RecordParticipation(ctx context.Context, rec Participation, dedupSince *time.Time) (Participation, error)
}
