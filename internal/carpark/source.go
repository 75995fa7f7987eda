package carpark

import (
	"context"
	"errors"
)

var (
	// ErrSourceUnavailable wraps transport-level failures talking to an
	// upstream source. Retrying the reload later may succeed.
	ErrSourceUnavailable = errors.New("carpark source unavailable")

	// ErrMalformedResponse wraps responses whose shape cannot be
	// interpreted. The previous snapshot should be retained.
	ErrMalformedResponse = errors.New("malformed carpark source response")
)

// MetadataSource fetches the static carpark reference dataset.
type MetadataSource interface {
	FetchMetadata(ctx context.Context) ([]CarparkMetadata, error)
}

// AvailabilitySource fetches the live availability snapshot.
type AvailabilitySource interface {
	FetchAvailability(ctx context.Context) ([]AvailabilitySample, error)
}
