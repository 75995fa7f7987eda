// Package datagovsg talks to the data.gov.sg carpark endpoints: the
// live availability feed and the HDB Carpark Information dataset served
// through the datastore_search API.
package datagovsg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/yongjie-lim/carpark-availability/internal/carpark"
)

const (
	DefaultAvailabilityURL = "https://api.data.gov.sg/v1/transport/carpark-availability"
	DefaultDatastoreURL    = "https://data.gov.sg/api/action/datastore_search"

	// DefaultCarparkInfoResourceID is the datastore resource holding the
	// HDB Carpark Information dataset.
	DefaultCarparkInfoResourceID = "d_23f946fa557947f93a8043bbef41dd09"

	DefaultPageSize = 1000
)

// Client implements carpark.AvailabilitySource and
// carpark.MetadataSource against data.gov.sg.
type Client struct {
	availabilityURL string
	datastoreURL    string
	resourceID      string
	pageSize        int

	httpCfg      HTTPClientConfig
	availCircuit *gobreaker.CircuitBreaker
	metaCircuit  *gobreaker.CircuitBreaker
	log          *zap.Logger
}

// Options overrides the default endpoints. Zero values keep defaults.
type Options struct {
	AvailabilityURL string
	DatastoreURL    string
	ResourceID      string
	PageSize        int
}

// NewClient creates a Client with per-endpoint circuit breakers.
func NewClient(httpClient *http.Client, opts Options, log *zap.Logger) *Client {
	if opts.AvailabilityURL == "" {
		opts.AvailabilityURL = DefaultAvailabilityURL
	}
	if opts.DatastoreURL == "" {
		opts.DatastoreURL = DefaultDatastoreURL
	}
	if opts.ResourceID == "" {
		opts.ResourceID = DefaultCarparkInfoResourceID
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		availabilityURL: opts.AvailabilityURL,
		datastoreURL:    opts.DatastoreURL,
		resourceID:      opts.ResourceID,
		pageSize:        opts.PageSize,
		httpCfg: HTTPClientConfig{
			Client: httpClient,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		availCircuit: newEndpointBreaker("carpark-availability"),
		metaCircuit:  newEndpointBreaker("carpark-info"),
		log:          log,
	}
}

// FetchAvailability retrieves the live availability snapshot. Malformed
// individual entries are dropped and counted; an undecodable envelope is
// carpark.ErrMalformedResponse.
func (c *Client) FetchAvailability(ctx context.Context) ([]carpark.AvailabilitySample, error) {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.availabilityURL, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.availCircuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", carpark.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Items []struct {
			Timestamp   string `json:"timestamp"`
			CarparkData []struct {
				CarparkNumber  string `json:"carpark_number"`
				UpdateDatetime string `json:"update_datetime"`
				CarparkInfo    []struct {
					TotalLots     string `json:"total_lots"`
					LotType       string `json:"lot_type"`
					LotsAvailable string `json:"lots_available"`
				} `json:"carpark_info"`
			} `json:"carpark_data"`
		} `json:"items"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", carpark.ErrMalformedResponse, err)
	}
	if len(payload.Items) == 0 {
		return nil, fmt.Errorf("%w: no items in availability feed", carpark.ErrMalformedResponse)
	}

	var samples []carpark.AvailabilitySample
	var dropped int

	for _, item := range payload.Items {
		for _, cp := range item.CarparkData {
			updatedAt, err := carpark.ParseUpdateTime(cp.UpdateDatetime)
			if err != nil {
				dropped += len(cp.CarparkInfo)
				continue
			}

			for _, info := range cp.CarparkInfo {
				total, errTotal := strconv.Atoi(strings.TrimSpace(info.TotalLots))
				avail, errAvail := strconv.Atoi(strings.TrimSpace(info.LotsAvailable))
				if errTotal != nil || errAvail != nil {
					dropped++
					continue
				}

				sample := carpark.AvailabilitySample{
					CarparkNumber: carpark.NormalizeNumber(cp.CarparkNumber),
					LotType:       info.LotType,
					TotalLots:     total,
					LotsAvailable: avail,
					UpdatedAt:     updatedAt,
				}
				if err := sample.Validate(); err != nil {
					dropped++
					continue
				}
				samples = append(samples, sample)
			}
		}
	}

	if dropped > 0 {
		c.log.Warn("dropped malformed availability entries", zap.Int("dropped", dropped))
	}
	return samples, nil
}

// FetchMetadata retrieves the full HDB Carpark Information dataset,
// following datastore_search pagination until all records are read.
func (c *Client) FetchMetadata(ctx context.Context) ([]carpark.CarparkMetadata, error) {
	var metadata []carpark.CarparkMetadata
	var dropped int

	offset := 0
	for {
		page, total, err := c.fetchMetadataPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, rec := range page {
			meta, ok := rec.toMetadata()
			if !ok {
				dropped++
				continue
			}
			metadata = append(metadata, meta)
		}

		offset += len(page)
		if offset >= total {
			break
		}
	}

	if dropped > 0 {
		c.log.Warn("dropped malformed metadata records", zap.Int("dropped", dropped))
	}
	if len(metadata) == 0 {
		return nil, fmt.Errorf("%w: datastore returned no usable records", carpark.ErrMalformedResponse)
	}
	return metadata, nil
}

// datastoreRecord mirrors one row of the HDB Carpark Information
// dataset; all fields arrive as strings.
type datastoreRecord struct {
	CarParkNo        string `json:"car_park_no"`
	Address          string `json:"address"`
	XCoord           string `json:"x_coord"`
	YCoord           string `json:"y_coord"`
	CarParkType      string `json:"car_park_type"`
	ParkingSystem    string `json:"type_of_parking_system"`
	ShortTermParking string `json:"short_term_parking"`
	FreeParking      string `json:"free_parking"`
	NightParking     string `json:"night_parking"`
	CarParkDecks     string `json:"car_park_decks"`
	GantryHeight     string `json:"gantry_height"`
	CarParkBasement  string `json:"car_park_basement"`
}

func (r datastoreRecord) toMetadata() (carpark.CarparkMetadata, bool) {
	meta := carpark.CarparkMetadata{
		CarparkNumber:    carpark.NormalizeNumber(r.CarParkNo),
		Address:          strings.TrimSpace(r.Address),
		CarparkType:      r.CarParkType,
		ParkingSystem:    r.ParkingSystem,
		ShortTermParking: r.ShortTermParking,
		FreeParking:      r.FreeParking,
		NightParking:     r.NightParking,
		Basement:         strings.EqualFold(strings.TrimSpace(r.CarParkBasement), "Y"),
	}

	// Numeric attributes are best-effort; a blank deck count should not
	// disqualify an otherwise usable record.
	if n, err := strconv.Atoi(strings.TrimSpace(r.CarParkDecks)); err == nil {
		meta.Decks = n
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(r.GantryHeight), 64); err == nil {
		meta.GantryHeightM = f
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(r.XCoord), 64); err == nil {
		meta.XCoord = f
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(r.YCoord), 64); err == nil {
		meta.YCoord = f
	}

	if err := meta.Validate(); err != nil {
		return carpark.CarparkMetadata{}, false
	}
	return meta, true
}

func (c *Client) fetchMetadataPage(ctx context.Context, offset int) ([]datastoreRecord, int, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("resource_id", c.resourceID)
		values.Set("limit", strconv.Itoa(c.pageSize))
		values.Set("offset", strconv.Itoa(offset))

		u := fmt.Sprintf("%s?%s", c.datastoreURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.metaCircuit, buildRequest)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", carpark.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Success bool `json:"success"`
		Result  struct {
			Total   int               `json:"total"`
			Records []datastoreRecord `json:"records"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", carpark.ErrMalformedResponse, err)
	}
	if !payload.Success {
		return nil, 0, fmt.Errorf("%w: datastore_search reported failure", carpark.ErrMalformedResponse)
	}

	return payload.Result.Records, payload.Result.Total, nil
}
