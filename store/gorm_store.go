package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/bemechallenge/ledger"
	"github.com/cppla/bemechallenge/models"
)

// GormStore persists participations in SQL through gorm.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ ledger.Store = (*GormStore)(nil)

// NewGormStore creates a store over db. Participation timestamps come from the wall clock.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// WithClock overrides the clock used to stamp new participations.
func (s *GormStore) WithClock(now func() time.Time) *GormStore {
	s.now = now
	return s
}

// CountSince counts the user's participations in a challenge at or after since.
func (s *GormStore) CountSince(ctx context.Context, userID, challengeID string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Participation{}).
		Where("user_id = ? AND challenge_id = ? AND timestamp >= ?", userID, challengeID, since.UTC()).
		Count(&n).Error
	return n, err
}

// ChallengeIDs returns the distinct challenge ids the user joined at or after since.
func (s *GormStore) ChallengeIDs(ctx context.Context, userID string, since time.Time) ([]string, error) {
	q := s.db.WithContext(ctx).Model(&models.Participation{}).Where("user_id = ?", userID)
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since.UTC())
	}
	var ids []string
	if err := q.Distinct("challenge_id").Pluck("challenge_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Timestamps returns every participation time of the user, oldest first.
func (s *GormStore) Timestamps(ctx context.Context, userID string) ([]time.Time, error) {
	var ts []time.Time
	err := s.db.WithContext(ctx).Model(&models.Participation{}).
		Where("user_id = ?", userID).
		Order("timestamp ASC").
		Pluck("timestamp", &ts).Error
	if err != nil {
		return nil, err
	}
	return ts, nil
}

// RecordParticipation locks the user row, re-checks the same-day rule when
// dedupSince is set, bumps the challenge counter server-side and inserts the
// record, all in one transaction.
func (s *GormStore) RecordParticipation(ctx context.Context, rec ledger.Participation, dedupSince *time.Time) (ledger.Participation, error) {
	row := models.Participation{
		ID:          uuid.NewString(),
		UserID:      rec.UserID,
		ChallengeID: rec.ChallengeID,
		Timestamp:   s.now().UTC().Truncate(time.Millisecond),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serializes joins of one user across sessions. SQLite has no row locks
		// but already serializes writers.
		lockQ := tx
		if tx.Dialector.Name() != "sqlite" {
			lockQ = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var user models.User
		if err := lockQ.Select("id").First(&user, "id = ?", rec.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrNotAuthenticated
			}
			return err
		}

		var challenge models.Challenge
		if err := tx.Select("id", "closed", "end_date").First(&challenge, "id = ?", rec.ChallengeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrChallengeNotFound
			}
			return err
		}
		// Past end_date counts as closed before the expiry job flips the flag.
		if challenge.Closed || (challenge.EndDate != nil && !challenge.EndDate.After(row.Timestamp)) {
			return ledger.ErrChallengeClosed
		}

		if dedupSince != nil {
			var n int64
			if err := tx.Model(&models.Participation{}).
				Where("user_id = ? AND challenge_id = ? AND timestamp >= ?", rec.UserID, rec.ChallengeID, dedupSince.UTC()).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ledger.ErrAlreadyParticipatedToday
			}
		}

		res := tx.Model(&models.Challenge{}).
			Where("id = ? AND closed = ?", rec.ChallengeID, false).
			Where("(end_date IS NULL OR end_date > ?)", row.Timestamp).
			UpdateColumn("participants_count", gorm.Expr("participants_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ledger.ErrChallengeClosed
		}

		return tx.Create(&row).Error
	})
	if err != nil {
		return ledger.Participation{}, err
	}

	return ledger.Participation{
		ID:          row.ID,
		UserID:      row.UserID,
		ChallengeID: row.ChallengeID,
		Timestamp:   row.Timestamp,
	}, nil
}
