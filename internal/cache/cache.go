package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yongjie-lim/carpark-availability/internal/carpark"
)

// LookupStatus classifies the outcome of a cache lookup.
type LookupStatus int

const (
	// StatusFound means the carpark is known and its data is within the
	// freshness threshold.
	StatusFound LookupStatus = iota
	// StatusStale means the carpark is known but its data is older than
	// the threshold, or it has no live data at all.
	StatusStale
	// StatusNotFound means no snapshot has ever contained this carpark.
	StatusNotFound
	// StatusNoSnapshot means no reload has succeeded yet; the caller
	// should trigger one.
	StatusNoSnapshot
)

func (s LookupStatus) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusStale:
		return "stale"
	case StatusNotFound:
		return "not_found"
	case StatusNoSnapshot:
		return "no_snapshot"
	default:
		return "unknown"
	}
}

// LookupResult is the structured outcome of Lookup. Record is populated
// only for StatusFound and StatusStale; Age only when the record carries
// live data.
type LookupResult struct {
	Status LookupStatus
	Record carpark.MergedRecord
	Age    time.Duration
}

// Cache owns the current merged snapshot. Reloads are serialized and
// swap the snapshot atomically; lookups never block on I/O and always
// read one complete snapshot.
type Cache struct {
	metadata     carpark.MetadataSource
	availability carpark.AvailabilitySource
	threshold    time.Duration
	now          func() time.Time
	log          *zap.Logger

	reloadMu sync.Mutex // serializes Reload callers

	mu       sync.RWMutex
	snapshot *carpark.Snapshot // nil until the first successful reload
}

// New creates an empty Cache. A non-positive threshold falls back to
// carpark.DefaultFreshnessThreshold; a nil logger disables logging.
func New(metadata carpark.MetadataSource, availability carpark.AvailabilitySource, threshold time.Duration, log *zap.Logger) *Cache {
	if threshold <= 0 {
		threshold = carpark.DefaultFreshnessThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		metadata:     metadata,
		availability: availability,
		threshold:    threshold,
		now:          time.Now,
		log:          log,
	}
}

// Reload fetches both upstream snapshots, merges them, and replaces the
// current snapshot. On any failure the previous snapshot is kept and the
// error is returned to the caller.
func (c *Cache) Reload(ctx context.Context) error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	reloadID := uuid.NewString()
	log := c.log.With(zap.String("reload_id", reloadID))

	metadata, err := c.metadata.FetchMetadata(ctx)
	if err != nil {
		log.Warn("metadata fetch failed; keeping previous snapshot", zap.Error(err))
		return err
	}

	availability, err := c.availability.FetchAvailability(ctx)
	if err != nil {
		log.Warn("availability fetch failed; keeping previous snapshot", zap.Error(err))
		return err
	}

	records, stats := carpark.Merge(metadata, availability)
	snapshot := &carpark.Snapshot{
		Records:   records,
		FetchedAt: c.now(),
	}

	c.mu.Lock()
	c.snapshot = snapshot
	c.mu.Unlock()

	log.Info("snapshot reloaded",
		zap.Int("carparks", stats.Carparks),
		zap.Int("with_live_data", stats.WithLiveData),
		zap.Int("unmatched_samples", stats.UnmatchedSamples),
	)
	return nil
}

// Lookup answers a query against the current snapshot. Freshness is
// evaluated at call time, so the same snapshot can go stale as real time
// advances between reloads.
func (c *Cache) Lookup(number string) LookupResult {
	c.mu.RLock()
	snapshot := c.snapshot
	c.mu.RUnlock()

	if snapshot == nil {
		return LookupResult{Status: StatusNoSnapshot}
	}

	rec, ok := snapshot.Records[carpark.NormalizeNumber(number)]
	if !ok {
		return LookupResult{Status: StatusNotFound}
	}

	result := LookupResult{Record: copyRecord(rec)}

	now := c.now()
	if rec.HasLiveData() {
		result.Age = now.Sub(rec.ObservedAt)
	}
	if carpark.IsFresh(rec, now, c.threshold) {
		result.Status = StatusFound
	} else {
		result.Status = StatusStale
	}
	return result
}

// SnapshotInfo reports the size and fetch time of the current snapshot.
// ok is false while the cache is empty.
func (c *Cache) SnapshotInfo() (carparks int, fetchedAt time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snapshot == nil {
		return 0, time.Time{}, false
	}
	return len(c.snapshot.Records), c.snapshot.FetchedAt, true
}

// Threshold returns the freshness threshold the cache applies.
func (c *Cache) Threshold() time.Duration {
	return c.threshold
}

// copyRecord returns a read-only view: callers must never receive a
// handle into the live snapshot's slices.
func copyRecord(rec carpark.MergedRecord) carpark.MergedRecord {
	out := rec
	if len(rec.Availability) > 0 {
		out.Availability = append([]carpark.AvailabilitySample(nil), rec.Availability...)
	}
	return out
}
