package carpark

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// sgt is the zone of upstream update_datetime values, which carry no
// zone designator of their own.
var sgt = time.FixedZone("SGT", 8*60*60)

// NormalizeNumber canonicalizes a carpark number so that lookups and
// joins are case-insensitive.
func NormalizeNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

// ParseUpdateTime parses an upstream update_datetime value
// (e.g. "2026-08-25T10:45:32", Singapore local time).
func ParseUpdateTime(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02T15:04:05", s, sgt)
}

// CarparkMetadata holds the static attributes of one carpark. It is
// immutable once fetched and replaced wholesale on reload.
type CarparkMetadata struct {
	CarparkNumber    string  `json:"carparkNumber" validate:"required"`
	Address          string  `json:"address" validate:"required"`
	CarparkType      string  `json:"carparkType"`
	ParkingSystem    string  `json:"parkingSystem"`
	ShortTermParking string  `json:"shortTermParking"`
	FreeParking      string  `json:"freeParking"`
	NightParking     string  `json:"nightParking"`
	Decks            int     `json:"decks"`
	GantryHeightM    float64 `json:"gantryHeightM"`
	Basement         bool    `json:"basement"`
	XCoord           float64 `json:"xCoord"`
	YCoord           float64 `json:"yCoord"`
}

// Validate reports whether the record is usable. Callers drop invalid
// records at ingestion rather than letting them into a snapshot.
func (m CarparkMetadata) Validate() error {
	return validate.Struct(m)
}

// AvailabilitySample is one live lot-count reading. A carpark may have
// several samples, one per lot type.
type AvailabilitySample struct {
	CarparkNumber string `json:"carparkNumber" validate:"required"`
	LotType       string `json:"lotType" validate:"required"`
	TotalLots     int    `json:"totalLots" validate:"gte=0"`
	LotsAvailable int    `json:"lotsAvailable" validate:"gte=0"`
	// UpdatedAt is the time the upstream system recorded the reading,
	// not the time we fetched it.
	UpdatedAt time.Time `json:"updatedAt" validate:"required"`
}

// Validate reports whether the sample is usable.
func (s AvailabilitySample) Validate() error {
	return validate.Struct(s)
}

// MergedRecord joins a carpark's availability samples onto its metadata.
// ObservedAt is the freshest UpdatedAt among the samples; it is the zero
// time when the carpark has no live data.
type MergedRecord struct {
	Metadata     CarparkMetadata      `json:"metadata"`
	Availability []AvailabilitySample `json:"availability,omitempty"`
	ObservedAt   time.Time            `json:"observedAt,omitempty"`
}

// HasLiveData reports whether any availability sample was joined onto
// this record.
func (r MergedRecord) HasLiveData() bool {
	return len(r.Availability) > 0
}

// Snapshot is the complete merged dataset at one point in time, keyed by
// normalized carpark number.
type Snapshot struct {
	Records   map[string]MergedRecord
	FetchedAt time.Time
}
