package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/yongjie-lim/carpark-availability/internal/carpark"
	"github.com/yongjie-lim/carpark-availability/internal/datagovsg"
)

// MetadataSourceAPI and MetadataSourceCSV select where static carpark
// metadata comes from.
const (
	MetadataSourceAPI = "api"
	MetadataSourceCSV = "csv"
)

type AppConfig struct {
	AvailabilityURL       string
	DatastoreURL          string
	CarparkInfoResourceID string
	DatastorePageSize     int

	// MetadataSource is "api" (datastore_search) or "csv" (local file).
	MetadataSource  string
	MetadataCSVPath string

	// HTTPTimeout bounds each outbound upstream call.
	HTTPTimeout time.Duration

	// FreshnessThreshold is how old a reading may be before lookups
	// report it as stale.
	FreshnessThreshold time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.AvailabilityURL = getenvDefault("CARPARK_AVAILABILITY_URL", datagovsg.DefaultAvailabilityURL)
	cfg.DatastoreURL = getenvDefault("DATAGOVSG_DATASTORE_URL", datagovsg.DefaultDatastoreURL)
	cfg.CarparkInfoResourceID = getenvDefault("CARPARK_INFO_RESOURCE_ID", datagovsg.DefaultCarparkInfoResourceID)
	cfg.DatastorePageSize = getenvInt("DATASTORE_PAGE_SIZE", datagovsg.DefaultPageSize)

	cfg.MetadataSource = getenvDefault("METADATA_SOURCE", MetadataSourceAPI)
	if cfg.MetadataSource != MetadataSourceAPI && cfg.MetadataSource != MetadataSourceCSV {
		return nil, fmt.Errorf("invalid METADATA_SOURCE %q: must be %q or %q",
			cfg.MetadataSource, MetadataSourceAPI, MetadataSourceCSV)
	}

	cfg.MetadataCSVPath = getenvDefault("METADATA_CSV_PATH", "data/HDBCarparkInformation.csv")

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	thresholdStr := getenvDefault("FRESHNESS_THRESHOLD", carpark.DefaultFreshnessThreshold.String())
	threshold, err := time.ParseDuration(thresholdStr)
	if err != nil {
		return nil, fmt.Errorf("invalid FRESHNESS_THRESHOLD: %w", err)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("FRESHNESS_THRESHOLD must be positive, got %s", threshold)
	}
	cfg.FreshnessThreshold = threshold

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
