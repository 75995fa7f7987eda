// Package hdbcsv reads carpark metadata from a local copy of the HDB
// Carpark Information CSV, as an alternative to the datastore API.
package hdbcsv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yongjie-lim/carpark-availability/internal/carpark"
)

// Source implements carpark.MetadataSource on top of a CSV file.
type Source struct {
	path string
	log  *zap.Logger
}

// New creates a Source reading from the given file path.
func New(path string, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{path: path, log: log}
}

// FetchMetadata reads and validates the whole file on every call, so a
// replaced file takes effect on the next reload.
func (s *Source) FetchMetadata(ctx context.Context) ([]carpark.CarparkMetadata, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", carpark.ErrSourceUnavailable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading CSV header: %v", carpark.ErrMalformedResponse, err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"car_park_no", "address"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%w: CSV missing column %q", carpark.ErrMalformedResponse, required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var metadata []carpark.CarparkMetadata
	var dropped int

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading CSV row: %v", carpark.ErrMalformedResponse, err)
		}

		meta := carpark.CarparkMetadata{
			CarparkNumber:    carpark.NormalizeNumber(field(row, "car_park_no")),
			Address:          field(row, "address"),
			CarparkType:      field(row, "car_park_type"),
			ParkingSystem:    field(row, "type_of_parking_system"),
			ShortTermParking: field(row, "short_term_parking"),
			FreeParking:      field(row, "free_parking"),
			NightParking:     field(row, "night_parking"),
			Basement:         strings.EqualFold(field(row, "car_park_basement"), "Y"),
		}
		if n, err := strconv.Atoi(field(row, "car_park_decks")); err == nil {
			meta.Decks = n
		}
		if v, err := strconv.ParseFloat(field(row, "gantry_height"), 64); err == nil {
			meta.GantryHeightM = v
		}
		if v, err := strconv.ParseFloat(field(row, "x_coord"), 64); err == nil {
			meta.XCoord = v
		}
		if v, err := strconv.ParseFloat(field(row, "y_coord"), 64); err == nil {
			meta.YCoord = v
		}

		if err := meta.Validate(); err != nil {
			dropped++
			continue
		}
		metadata = append(metadata, meta)
	}

	if dropped > 0 {
		s.log.Warn("dropped malformed CSV rows", zap.Int("dropped", dropped), zap.String("path", s.path))
	}
	if len(metadata) == 0 {
		return nil, fmt.Errorf("%w: CSV contained no usable rows", carpark.ErrMalformedResponse)
	}
	return metadata, nil
}
