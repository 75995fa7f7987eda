package carpark

import "time"

// DefaultFreshnessThreshold is how old a reading may be before it is no
// longer trusted as current.
const DefaultFreshnessThreshold = 15 * time.Minute

// IsFresh reports whether a record's live data is recent enough to trust
// at the given reference time. Records with no live data are never
// fresh, and neither are readings stamped in the future.
func IsFresh(rec MergedRecord, now time.Time, threshold time.Duration) bool {
	if !rec.HasLiveData() || rec.ObservedAt.IsZero() {
		return false
	}
	if rec.ObservedAt.After(now) {
		return false
	}
	return now.Sub(rec.ObservedAt) <= threshold
}
