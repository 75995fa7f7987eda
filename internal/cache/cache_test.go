package cache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/yongjie-lim/carpark-availability/internal/carpark"
)

// stubSource serves canned data for both fetch operations and can be
// flipped into a failure mode between reloads.
type stubSource struct {
	mu           sync.Mutex
	metadata     []carpark.CarparkMetadata
	availability []carpark.AvailabilitySample
	err          error
}

func (s *stubSource) FetchMetadata(context.Context) ([]carpark.CarparkMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]carpark.CarparkMetadata(nil), s.metadata...), nil
}

func (s *stubSource) FetchAvailability(context.Context) ([]carpark.AvailabilitySample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]carpark.AvailabilitySample(nil), s.availability...), nil
}

func (s *stubSource) setError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func newTestCache(src *stubSource, now time.Time) *Cache {
	c := New(src, src, carpark.DefaultFreshnessThreshold, nil)
	c.now = func() time.Time { return now }
	return c
}

func TestLookupFreshReading(t *testing.T) {
	now := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	src := &stubSource{
		metadata: []carpark.CarparkMetadata{{CarparkNumber: "A1", Address: "X"}},
		availability: []carpark.AvailabilitySample{
			{CarparkNumber: "A1", LotType: "C", TotalLots: 10, LotsAvailable: 3, UpdatedAt: now.Add(-2 * time.Minute)},
		},
	}
	c := newTestCache(src, now)

	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	result := c.Lookup("a1")
	if result.Status != StatusFound {
		t.Fatalf("status = %v, want found", result.Status)
	}
	if got := result.Record.Availability[0].LotsAvailable; got != 3 {
		t.Fatalf("lots available = %d, want 3", got)
	}
	if result.Age != 2*time.Minute {
		t.Fatalf("age = %v, want 2m", result.Age)
	}
}

func TestLookupStaleReadingIsReportedNotOmitted(t *testing.T) {
	now := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	src := &stubSource{
		metadata: []carpark.CarparkMetadata{{CarparkNumber: "A1", Address: "X"}},
		availability: []carpark.AvailabilitySample{
			{CarparkNumber: "A1", LotType: "C", TotalLots: 10, LotsAvailable: 3, UpdatedAt: now.Add(-20 * time.Minute)},
		},
	}
	c := newTestCache(src, now)

	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	result := c.Lookup("A1")
	if result.Status != StatusStale {
		t.Fatalf("status = %v, want stale", result.Status)
	}
	if got := result.Record.Availability[0].LotsAvailable; got != 3 {
		t.Fatalf("stale result must still carry the reading, got %d", got)
	}
	if result.Age != 20*time.Minute {
		t.Fatalf("age = %v, want 20m", result.Age)
	}
}

func TestLookupNoLiveDataIsDistinctFromNotFound(t *testing.T) {
	now := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	src := &stubSource{
		metadata: []carpark.CarparkMetadata{{CarparkNumber: "B2", Address: "Y"}},
	}
	c := newTestCache(src, now)

	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	result := c.Lookup("B2")
	if result.Status != StatusStale {
		t.Fatalf("status = %v, want stale (no live data)", result.Status)
	}
	if result.Record.HasLiveData() {
		t.Fatal("record should carry the no-live-data marker")
	}
	if result.Age != 0 {
		t.Fatalf("age should be zero without live data, got %v", result.Age)
	}

	if other := c.Lookup("C3"); other.Status != StatusNotFound {
		t.Fatalf("unknown carpark status = %v, want not_found", other.Status)
	}
}

func TestLookupBeforeFirstReload(t *testing.T) {
	c := newTestCache(&stubSource{}, time.Now())

	if result := c.Lookup("A1"); result.Status != StatusNoSnapshot {
		t.Fatalf("status = %v, want no_snapshot", result.Status)
	}
}

func TestFailedReloadKeepsPreviousSnapshot(t *testing.T) {
	now := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	src := &stubSource{
		metadata: []carpark.CarparkMetadata{{CarparkNumber: "A1", Address: "X"}},
		availability: []carpark.AvailabilitySample{
			{CarparkNumber: "A1", LotType: "C", TotalLots: 10, LotsAvailable: 3, UpdatedAt: now.Add(-time.Minute)},
		},
	}
	c := newTestCache(src, now)

	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("first reload failed: %v", err)
	}

	src.setError(fmt.Errorf("%w: connection refused", carpark.ErrSourceUnavailable))

	err := c.Reload(context.Background())
	if !errors.Is(err, carpark.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}

	if result := c.Lookup("A1"); result.Status != StatusFound {
		t.Fatalf("previous snapshot should still answer queries, got %v", result.Status)
	}
}

func TestFailedFirstReloadStaysEmpty(t *testing.T) {
	src := &stubSource{}
	src.setError(fmt.Errorf("%w: timeout", carpark.ErrSourceUnavailable))
	c := newTestCache(src, time.Now())

	if err := c.Reload(context.Background()); !errors.Is(err, carpark.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if result := c.Lookup("A1"); result.Status != StatusNoSnapshot {
		t.Fatalf("cache should remain empty after failed first reload, got %v", result.Status)
	}
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	now := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	src := &stubSource{
		metadata: []carpark.CarparkMetadata{{CarparkNumber: "ABC1", Address: "X"}},
		availability: []carpark.AvailabilitySample{
			{CarparkNumber: "abc1", LotType: "C", TotalLots: 10, LotsAvailable: 4, UpdatedAt: now.Add(-time.Minute)},
		},
	}
	c := newTestCache(src, now)

	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	first := c.Lookup("abc1")
	for _, q := range []string{"ABC1", "AbC1", " abc1 "} {
		got := c.Lookup(q)
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("lookup(%q) = %+v, want same as lookup(abc1) = %+v", q, got, first)
		}
	}
	if first.Status != StatusFound {
		t.Fatalf("status = %v, want found", first.Status)
	}
}

func TestReloadIsIdempotentForUnchangedUpstream(t *testing.T) {
	now := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	src := &stubSource{
		metadata: []carpark.CarparkMetadata{
			{CarparkNumber: "A1", Address: "X"},
			{CarparkNumber: "B2", Address: "Y"},
		},
		availability: []carpark.AvailabilitySample{
			{CarparkNumber: "A1", LotType: "C", TotalLots: 10, LotsAvailable: 3, UpdatedAt: now.Add(-time.Minute)},
		},
	}
	c := newTestCache(src, now)

	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("first reload failed: %v", err)
	}
	before := []LookupResult{c.Lookup("A1"), c.Lookup("B2"), c.Lookup("C3")}

	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("second reload failed: %v", err)
	}
	after := []LookupResult{c.Lookup("A1"), c.Lookup("B2"), c.Lookup("C3")}

	if !reflect.DeepEqual(before, after) {
		t.Fatalf("lookup results changed across idempotent reloads:\nbefore: %+v\nafter:  %+v", before, after)
	}
}

func TestLookupResultIsACopy(t *testing.T) {
	now := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	src := &stubSource{
		metadata: []carpark.CarparkMetadata{{CarparkNumber: "A1", Address: "X"}},
		availability: []carpark.AvailabilitySample{
			{CarparkNumber: "A1", LotType: "C", TotalLots: 10, LotsAvailable: 3, UpdatedAt: now.Add(-time.Minute)},
		},
	}
	c := newTestCache(src, now)

	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	result := c.Lookup("A1")
	result.Record.Availability[0].LotsAvailable = 999

	if got := c.Lookup("A1").Record.Availability[0].LotsAvailable; got != 3 {
		t.Fatalf("mutating a lookup result leaked into the snapshot: %d", got)
	}
}

// TestSnapshotSwapAtomicity drives concurrent lookups against
// alternating reloads. Each generation's availability count matches its
// metadata address, so a mixed snapshot would surface as a mismatch.
func TestSnapshotSwapAtomicity(t *testing.T) {
	now := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)

	generation := func(n int) ([]carpark.CarparkMetadata, []carpark.AvailabilitySample) {
		return []carpark.CarparkMetadata{
				{CarparkNumber: "A1", Address: fmt.Sprintf("GEN-%d", n)},
			}, []carpark.AvailabilitySample{
				{CarparkNumber: "A1", LotType: "C", TotalLots: 100, LotsAvailable: n, UpdatedAt: now.Add(-time.Minute)},
			}
	}

	src := &stubSource{}
	src.metadata, src.availability = generation(0)
	c := newTestCache(src, now)

	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("initial reload failed: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}

				result := c.Lookup("A1")
				if result.Status != StatusFound {
					t.Errorf("unexpected status %v", result.Status)
					return
				}
				want := fmt.Sprintf("GEN-%d", result.Record.Availability[0].LotsAvailable)
				if result.Record.Metadata.Address != want {
					t.Errorf("mixed snapshot observed: address %q with lots %d",
						result.Record.Metadata.Address, result.Record.Availability[0].LotsAvailable)
					return
				}
			}
		}()
	}

	for n := 1; n <= 50; n++ {
		src.mu.Lock()
		src.metadata, src.availability = generation(n)
		src.mu.Unlock()
		if err := c.Reload(context.Background()); err != nil {
			t.Fatalf("reload %d failed: %v", n, err)
		}
	}

	close(done)
	wg.Wait()
}
