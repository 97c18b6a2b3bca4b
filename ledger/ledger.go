package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ledger gates and records challenge joins and answers membership queries.
type Ledger struct {
	store  Store
	cal    *Calendar
	logger *zap.Logger

	mu        sync.Mutex
	snapshots map[string]*snapshot
	sweptDay  time.Time
}

// snapshot holds the sets the client renders "joined" state from.
type snapshot struct {
	all   IDSet
	today IDSet
	day   time.Time

	// fetching counts store reads in flight; joined collects the joins
	// committed meanwhile so a stale read cannot drop them.
	fetching int
	joined   IDSet
}

// New creates a Ledger. A nil logger is replaced with a no-op logger.
func New(store Store, cal *Calendar, logger *zap.Logger) *Ledger {
	if cal == nil {
		cal = NewCalendar(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:     store,
		cal:       cal,
		logger:    logger,
		snapshots: map[string]*snapshot{},
	}
}

// Calendar exposes the calendar the ledger computes day boundaries with.
func (l *Ledger) Calendar() *Calendar { return l.cal }

// HasParticipatedToday reports whether the user joined challengeID since local midnight.
func (l *Ledger) HasParticipatedToday(ctx context.Context, userID, challengeID string) (bool, error) {
	if userID == "" {
		return false, ErrNotAuthenticated
	}
	n, err := l.store.CountSince(ctx, userID, challengeID, l.cal.StartOfToday())
	if err != nil {
		return false, storeFailure("count participations", err)
	}
	return n > 0, nil
}

// Join records one participation. Mandatory challenges are refused when the
// user already joined today; open challenges are always recorded.
// The counter increment and the insert commit together or not at all.
func (l *Ledger) Join(ctx context.Context, userID, challengeID string, typ ChallengeType) (Participation, error) {
	if userID == "" {
		return Participation{}, ErrNotAuthenticated
	}

	var dedupSince *time.Time
	switch typ {
	case Mandatory:
		joined, err := l.HasParticipatedToday(ctx, userID, challengeID)
		if err != nil {
			return Participation{}, err
		}
		if joined {
			return Participation{}, ErrAlreadyParticipatedToday
		}
		since := l.cal.StartOfToday()
		dedupSince = &since
	case Open:
	default:
		return Participation{}, ErrUnknownChallengeType
	}

	rec, err := l.store.RecordParticipation(ctx, Participation{UserID: userID, ChallengeID: challengeID}, dedupSince)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotAuthenticated),
			errors.Is(err, ErrAlreadyParticipatedToday),
			errors.Is(err, ErrChallengeNotFound),
			errors.Is(err, ErrChallengeClosed):
			l.logger.Info("join refused",
				zap.String("user_id", userID),
				zap.String("challenge_id", challengeID),
				zap.Error(err))
			return Participation{}, err
		}
		l.logger.Warn("join failed",
			zap.String("user_id", userID),
			zap.String("challenge_id", challengeID),
			zap.Error(err))
		return Participation{}, storeFailure("record participation", err)
	}

	l.mu.Lock()
	snap := l.snapshotLocked(userID)
	snap.all.Add(challengeID)
	snap.today.Add(challengeID)
	if snap.fetching > 0 {
		snap.joined.Add(challengeID)
	}
	l.mu.Unlock()

	l.logger.Info("join recorded",
		zap.String("user_id", userID),
		zap.String("challenge_id", challengeID),
		zap.String("type", string(typ)),
		zap.String("participation_id", rec.ID))
	return rec, nil
}

// FetchAllParticipatedChallengeIDs returns every challenge the user ever joined.
func (l *Ledger) FetchAllParticipatedChallengeIDs(ctx context.Context, userID string) (IDSet, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	snap, _ := l.beginFetch(userID)
	ids, err := l.store.ChallengeIDs(ctx, userID, time.Time{})
	set := NewIDSet(ids...)
	l.endFetch(userID, snap, set, err == nil, func(s *snapshot) { s.all = set.clone() })
	if err != nil {
		return nil, storeFailure("list participated challenges", err)
	}
	return set, nil
}

// FetchTodayParticipatedChallengeIDs returns the challenges the user joined since local midnight.
func (l *Ledger) FetchTodayParticipatedChallengeIDs(ctx context.Context, userID string) (IDSet, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	snap, day := l.beginFetch(userID)
	ids, err := l.store.ChallengeIDs(ctx, userID, day)
	set := NewIDSet(ids...)
	l.endFetch(userID, snap, set, err == nil, func(s *snapshot) {
		if s.day.Equal(day) {
			s.today = set.clone()
		}
	})
	if err != nil {
		return nil, storeFailure("list today's challenges", err)
	}
	return set, nil
}

// Streak computes the user's current streak over all challenges.
func (l *Ledger) Streak(ctx context.Context, userID string) (StreakStatus, error) {
	if userID == "" {
		return StreakStatus{}, ErrNotAuthenticated
	}
	ts, err := l.store.Timestamps(ctx, userID)
	if err != nil {
		return StreakStatus{}, storeFailure("list participation timestamps", err)
	}
	return ComputeStreakStatus(l.cal, ts), nil
}

// Snapshot returns copies of the user's in-memory sets as last observed by
// this ledger. The today set is empty once the calendar day has rolled over.
// Users idle since before today are evicted at the first access of a new day
// and start again from empty sets until their next fetch or join.
func (l *Ledger) Snapshot(userID string) (all, today IDSet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := l.snapshotLocked(userID)
	return snap.all.clone(), snap.today.clone()
}

// Forget drops the user's in-memory sets, e.g. on logout.
func (l *Ledger) Forget(userID string) {
	l.mu.Lock()
	delete(l.snapshots, userID)
	l.mu.Unlock()
}

// beginFetch registers a store read and returns the snapshot with its day.
func (l *Ledger) beginFetch(userID string) (*snapshot, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := l.snapshotLocked(userID)
	if snap.fetching == 0 {
		snap.joined = IDSet{}
	}
	snap.fetching++
	return snap, snap.day
}

// endFetch merges joins committed during the read into set and, when ok,
// stores it through apply. A snapshot dropped by Forget meanwhile is left alone.
func (l *Ledger) endFetch(userID string, snap *snapshot, set IDSet, ok bool, apply func(*snapshot)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range snap.joined {
		set.Add(id)
	}
	snap.fetching--
	if snap.fetching == 0 {
		snap.joined = nil
	}
	if !ok || l.snapshots[userID] != snap {
		return
	}
	apply(l.snapshotLocked(userID))
}

func (l *Ledger) snapshotLocked(userID string) *snapshot {
	day := l.cal.StartOfToday()
	if !l.sweptDay.Equal(day) {
		for id, s := range l.snapshots {
			if s.day.Before(day) && s.fetching == 0 && id != userID {
				delete(l.snapshots, id)
			}
		}
		l.sweptDay = day
	}
	snap, ok := l.snapshots[userID]
	if !ok {
		snap = &snapshot{all: IDSet{}, today: IDSet{}, day: day}
		l.snapshots[userID] = snap
	}
	if !snap.day.Equal(day) {
		snap.today = IDSet{}
		snap.day = day
	}
	return snap
}
