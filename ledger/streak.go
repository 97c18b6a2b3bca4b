package ledger

import (
	"sort"
	"time"
)

// StreakStatus is the derived streak metric for one user.
type StreakStatus struct {
	Current    int        `json:"current"`
	LastActive *time.Time `json:"last_active,omitempty"`
	// Stale reports that the most recent participation is older than yesterday.
	// Current is left as computed.
	Stale bool `json:"stale"`
}

// ComputeStreak counts consecutive calendar days walking back from the most
// recent timestamp. Same-day entries count once; the walk stops at the first gap.
// The input slice is not modified.
func ComputeStreak(cal *Calendar, timestamps []time.Time) int {
	if len(timestamps) == 0 {
		return 0
	}

	sorted := make([]time.Time, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	streak := 1
	previous := sorted[len(sorted)-1]
	for i := len(sorted) - 2; i >= 0; i-- {
		current := sorted[i]
		switch cal.DayDistance(current, previous) {
		case 0:
			continue
		case 1:
			streak++
			previous = current
		default:
			return streak
		}
	}
	return streak
}

// ComputeStreakStatus wraps ComputeStreak with the last activity and staleness flag.
func ComputeStreakStatus(cal *Calendar, timestamps []time.Time) StreakStatus {
	status := StreakStatus{Current: ComputeStreak(cal, timestamps)}
	if len(timestamps) == 0 {
		return status
	}

	last := timestamps[0]
	for _, ts := range timestamps[1:] {
		if ts.After(last) {
			last = ts
		}
	}
	status.LastActive = &last
	status.Stale = cal.DayDistance(last, cal.Now()) > 1
	return status
}
