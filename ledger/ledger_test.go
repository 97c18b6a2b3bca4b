package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type memStore struct {
	mu       sync.Mutex
	now      func() time.Time
	records  []Participation
	counters map[string]int64
	closed   map[string]bool
	seq      int

	countErr  error
	recordErr error
	reads     int
}

func newMemStore(now func() time.Time, challenges ...string) *memStore {
	s := &memStore{now: now, counters: map[string]int64{}, closed: map[string]bool{}}
	for _, id := range challenges {
		s.counters[id] = 0
	}
	return s
}

func (s *memStore) CountSince(_ context.Context, userID, challengeID string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.countLocked(userID, challengeID, since), nil
}

func (s *memStore) countLocked(userID, challengeID string, since time.Time) int64 {
	var n int64
	for _, r := range s.records {
		if r.UserID == userID && r.ChallengeID == challengeID && !r.Timestamp.Before(since) {
			n++
		}
	}
	return n
}

func (s *memStore) ChallengeIDs(_ context.Context, userID string, since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	var ids []string
	for _, r := range s.records {
		if r.UserID == userID && !r.Timestamp.Before(since) {
			ids = append(ids, r.ChallengeID)
		}
	}
	return ids, nil
}

func (s *memStore) Timestamps(_ context.Context, userID string) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ts []time.Time
	for _, r := range s.records {
		if r.UserID == userID {
			ts = append(ts, r.Timestamp)
		}
	}
	return ts, nil
}

func (s *memStore) RecordParticipation(_ context.Context, rec Participation, dedupSince *time.Time) (Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return Participation{}, s.recordErr
	}
	if _, ok := s.counters[rec.ChallengeID]; !ok {
		return Participation{}, ErrChallengeNotFound
	}
	if s.closed[rec.ChallengeID] {
		return Participation{}, ErrChallengeClosed
	}
	if dedupSince != nil && s.countLocked(rec.UserID, rec.ChallengeID, *dedupSince) > 0 {
		return Participation{}, ErrAlreadyParticipatedToday
	}
	s.seq++
	rec.ID = fmt.Sprintf("p-%d", s.seq)
	rec.Timestamp = s.now()
	s.counters[rec.ChallengeID]++
	s.records = append(s.records, rec)
	return rec, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLedger(t *testing.T, challenges ...string) (*Ledger, *memStore, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	store := newMemStore(clock.Now, challenges...)
	cal := &Calendar{Location: time.UTC, Clock: clock.Now}
	return New(store, cal, nil), store, clock
}

func TestJoinMandatoryRejectsSecondSameDay(t *testing.T) {
	l, store, clock := newTestLedger(t, "c1")
	ctx := context.Background()

	first, err := l.Join(ctx, "u1", "c1", Mandatory)
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	if first.ID == "" || first.UserID != "u1" || first.ChallengeID != "c1" {
		t.Fatalf("unexpected record: %+v", first)
	}

	clock.Advance(10 * time.Hour)
	if _, err := l.Join(ctx, "u1", "c1", Mandatory); !errors.Is(err, ErrAlreadyParticipatedToday) {
		t.Fatalf("expected ErrAlreadyParticipatedToday, got %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(store.records))
	}
	if store.counters["c1"] != 1 {
		t.Fatalf("expected counter 1, got %d", store.counters["c1"])
	}
}

func TestJoinMandatoryAllowedNextDay(t *testing.T) {
	l, store, clock := newTestLedger(t, "c1")
	ctx := context.Background()

	if _, err := l.Join(ctx, "u1", "c1", Mandatory); err != nil {
		t.Fatalf("first join: %v", err)
	}
	clock.Advance(24 * time.Hour)
	if _, err := l.Join(ctx, "u1", "c1", Mandatory); err != nil {
		t.Fatalf("next day join: %v", err)
	}
	if len(store.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(store.records))
	}
}

func TestJoinMandatoryIsPerUserAndChallenge(t *testing.T) {
	l, _, _ := newTestLedger(t, "c1", "c2")
	ctx := context.Background()

	for _, tc := range []struct{ user, challenge string }{{"u1", "c1"}, {"u1", "c2"}, {"u2", "c1"}} {
		if _, err := l.Join(ctx, tc.user, tc.challenge, Mandatory); err != nil {
			t.Fatalf("join %s/%s: %v", tc.user, tc.challenge, err)
		}
	}
}

func TestJoinOpenAllowsRepeats(t *testing.T) {
	l, store, _ := newTestLedger(t, "c1")
	ctx := context.Background()

	a, err := l.Join(ctx, "u1", "c1", Open)
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	b, err := l.Join(ctx, "u1", "c1", Open)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct records, both %q", a.ID)
	}
	if store.reads != 0 {
		t.Fatalf("open join must not run the dedup check, saw %d reads", store.reads)
	}
}

func TestJoinCounterIncreasesByN(t *testing.T) {
	l, store, clock := newTestLedger(t, "open", "daily")
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := l.Join(ctx, "u1", "open", Open); err != nil {
			t.Fatalf("open join %d: %v", i, err)
		}
		if _, err := l.Join(ctx, fmt.Sprintf("u%d", i), "daily", Mandatory); err != nil {
			t.Fatalf("mandatory join %d: %v", i, err)
		}
		clock.Advance(time.Minute)
	}
	if store.counters["open"] != n || store.counters["daily"] != n {
		t.Fatalf("expected counters %d, got open=%d daily=%d", n, store.counters["open"], store.counters["daily"])
	}
}

func TestJoinErrors(t *testing.T) {
	l, store, _ := newTestLedger(t, "c1")
	ctx := context.Background()

	if _, err := l.Join(ctx, "", "c1", Mandatory); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := l.Join(ctx, "u1", "missing", Open); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
	if _, err := l.Join(ctx, "u1", "c1", ChallengeType("weekly")); !errors.Is(err, ErrUnknownChallengeType) {
		t.Fatalf("expected ErrUnknownChallengeType, got %v", err)
	}

	store.closed["c1"] = true
	if _, err := l.Join(ctx, "u1", "c1", Open); !errors.Is(err, ErrChallengeClosed) {
		t.Fatalf("expected ErrChallengeClosed, got %v", err)
	}
	store.closed["c1"] = false

	cause := errors.New("quota exceeded")
	store.recordErr = cause
	_, err := l.Join(ctx, "u1", "c1", Open)
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StoreError, got %T %v", err, err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	store.recordErr = nil

	store.countErr = cause
	if _, err := l.Join(ctx, "u1", "c1", Mandatory); !errors.Is(err, cause) || !errors.As(err, &se) {
		t.Fatalf("expected store failure from dedup check, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatalf("no record expected after failures, got %d", len(store.records))
	}
	all, today := l.Snapshot("u1")
	if len(all) != 0 || len(today) != 0 {
		t.Fatalf("failed joins must not touch snapshot, got all=%v today=%v", all, today)
	}
}

func TestJoinUpdatesSnapshot(t *testing.T) {
	l, _, clock := newTestLedger(t, "c1", "c2")
	ctx := context.Background()

	if _, err := l.Join(ctx, "u1", "c1", Mandatory); err != nil {
		t.Fatalf("join: %v", err)
	}
	all, today := l.Snapshot("u1")
	if !all.Has("c1") || !today.Has("c1") {
		t.Fatalf("expected c1 in both sets, got all=%v today=%v", all, today)
	}

	clock.Advance(24 * time.Hour)
	all, today = l.Snapshot("u1")
	if !all.Has("c1") {
		t.Fatal("all-time set must survive day rollover")
	}
	if len(today) != 0 {
		t.Fatalf("today set must reset on rollover, got %v", today)
	}

	l.Forget("u1")
	all, _ = l.Snapshot("u1")
	if len(all) != 0 {
		t.Fatalf("expected empty set after Forget, got %v", all)
	}
}

func TestFetchParticipatedChallengeIDs(t *testing.T) {
	l, _, clock := newTestLedger(t, "c1", "c2", "c3")
	ctx := context.Background()

	mustJoin := func(user, challenge string, typ ChallengeType) {
		t.Helper()
		if _, err := l.Join(ctx, user, challenge, typ); err != nil {
			t.Fatalf("join %s: %v", challenge, err)
		}
	}
	mustJoin("u1", "c1", Mandatory)
	mustJoin("u1", "c2", Open)
	clock.Advance(24 * time.Hour)
	mustJoin("u1", "c2", Open)
	mustJoin("u1", "c2", Open)
	mustJoin("u2", "c3", Open)

	all, err := l.FetchAllParticipatedChallengeIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if got := all.Sorted(); len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Fatalf("unexpected all-time set %v", got)
	}

	today, err := l.FetchTodayParticipatedChallengeIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("fetch today: %v", err)
	}
	if got := today.Sorted(); len(got) != 1 || got[0] != "c2" {
		t.Fatalf("unexpected today set %v", got)
	}

	// Repeated reads without joins return identical sets.
	for i := 0; i < 3; i++ {
		again, err := l.FetchAllParticipatedChallengeIDs(ctx, "u1")
		if err != nil {
			t.Fatalf("fetch all again: %v", err)
		}
		if fmt.Sprint(again.Sorted()) != fmt.Sprint(all.Sorted()) {
			t.Fatalf("fetch all not idempotent: %v vs %v", again.Sorted(), all.Sorted())
		}
		againToday, err := l.FetchTodayParticipatedChallengeIDs(ctx, "u1")
		if err != nil {
			t.Fatalf("fetch today again: %v", err)
		}
		if fmt.Sprint(againToday.Sorted()) != fmt.Sprint(today.Sorted()) {
			t.Fatalf("fetch today not idempotent: %v vs %v", againToday.Sorted(), today.Sorted())
		}
	}

	if _, err := l.FetchAllParticipatedChallengeIDs(ctx, ""); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

// blockingStore parks ChallengeIDs after reading until release is closed.
type blockingStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) ChallengeIDs(ctx context.Context, userID string, since time.Time) ([]string, error) {
	ids, err := s.memStore.ChallengeIDs(ctx, userID, since)
	close(s.entered)
	<-s.release
	return ids, err
}

func TestFetchKeepsJoinsCommittedDuringRead(t *testing.T) {
	for _, tc := range []struct {
		name  string
		fetch func(*Ledger, context.Context, string) (IDSet, error)
	}{
		{"all", (*Ledger).FetchAllParticipatedChallengeIDs},
		{"today", (*Ledger).FetchTodayParticipatedChallengeIDs},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clock := &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
			store := &blockingStore{
				memStore: newMemStore(clock.Now, "c1"),
				entered:  make(chan struct{}),
				release:  make(chan struct{}),
			}
			l := New(store, &Calendar{Location: time.UTC, Clock: clock.Now}, nil)
			ctx := context.Background()

			type result struct {
				set IDSet
				err error
			}
			done := make(chan result, 1)
			go func() {
				set, err := tc.fetch(l, ctx, "u1")
				done <- result{set, err}
			}()

			<-store.entered
			if _, err := l.Join(ctx, "u1", "c1", Open); err != nil {
				t.Fatalf("join: %v", err)
			}
			close(store.release)

			res := <-done
			if res.err != nil {
				t.Fatalf("fetch: %v", res.err)
			}
			if !res.set.Has("c1") {
				t.Fatalf("fetched set lost committed join: %v", res.set)
			}
			all, today := l.Snapshot("u1")
			if !all.Has("c1") || !today.Has("c1") {
				t.Fatalf("snapshot lost committed join: all=%v today=%v", all, today)
			}
		})
	}
}

func TestSnapshotsOfIdleUsersAreEvicted(t *testing.T) {
	l, _, clock := newTestLedger(t, "c1")
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3"} {
		if _, err := l.Join(ctx, u, "c1", Open); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	if n := len(l.snapshots); n != 3 {
		t.Fatalf("expected 3 snapshots, got %d", n)
	}

	clock.Advance(24 * time.Hour)
	all, _ := l.Snapshot("u1")
	if !all.Has("c1") {
		t.Fatal("the accessed user's all-time set must survive the sweep")
	}
	if n := len(l.snapshots); n != 1 {
		t.Fatalf("expected idle users evicted, %d snapshots remain", n)
	}

	if _, err := l.Join(ctx, "u2", "c1", Open); err != nil {
		t.Fatalf("join u2: %v", err)
	}
	if n := len(l.snapshots); n != 2 {
		t.Fatalf("same-day access must not sweep again, got %d snapshots", n)
	}
}

func TestHasParticipatedToday(t *testing.T) {
	l, _, clock := newTestLedger(t, "c1")
	ctx := context.Background()

	joined, err := l.HasParticipatedToday(ctx, "u1", "c1")
	if err != nil || joined {
		t.Fatalf("expected false before join, got %v %v", joined, err)
	}
	if _, err := l.Join(ctx, "u1", "c1", Open); err != nil {
		t.Fatalf("join: %v", err)
	}
	joined, err = l.HasParticipatedToday(ctx, "u1", "c1")
	if err != nil || !joined {
		t.Fatalf("expected true after join, got %v %v", joined, err)
	}
	clock.Advance(24 * time.Hour)
	joined, err = l.HasParticipatedToday(ctx, "u1", "c1")
	if err != nil || joined {
		t.Fatalf("expected false next day, got %v %v", joined, err)
	}
}

func TestStreakSpansAllChallenges(t *testing.T) {
	l, _, clock := newTestLedger(t, "c1", "c2", "c3")
	ctx := context.Background()

	for _, c := range []string{"c1", "c2", "c3"} {
		if _, err := l.Join(ctx, "u1", c, Mandatory); err != nil {
			t.Fatalf("join %s: %v", c, err)
		}
		clock.Advance(24 * time.Hour)
	}

	status, err := l.Streak(ctx, "u1")
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if status.Current != 3 {
		t.Fatalf("expected streak 3 across challenges, got %d", status.Current)
	}
	if status.Stale {
		t.Fatal("last join was yesterday; streak should not be stale")
	}
}

func TestConcurrentMandatoryJoinsRecordOnce(t *testing.T) {
	l, store, _ := newTestLedger(t, "c1")
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Join(ctx, "u1", "c1", Mandatory)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyParticipatedToday):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != workers-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", workers-1, ok, dup)
	}
	if len(store.records) != 1 || store.counters["c1"] != 1 {
		t.Fatalf("expected one record and counter 1, got %d and %d", len(store.records), store.counters["c1"])
	}
}
