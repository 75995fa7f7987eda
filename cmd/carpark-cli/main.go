// Command carpark-cli is an interactive terminal client for the carpark
// cache: type a carpark number to look it up, "r" to reload the
// snapshot, "exit" to quit.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yongjie-lim/carpark-availability/internal/cache"
	"github.com/yongjie-lim/carpark-availability/internal/carpark"
	"github.com/yongjie-lim/carpark-availability/internal/config"
	"github.com/yongjie-lim/carpark-availability/internal/datagovsg"
	"github.com/yongjie-lim/carpark-availability/internal/hdbcsv"
	"github.com/yongjie-lim/carpark-availability/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logging.NewLogger("carpark-cli")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	client := datagovsg.NewClient(httpClient, datagovsg.Options{
		AvailabilityURL: cfg.AvailabilityURL,
		DatastoreURL:    cfg.DatastoreURL,
		ResourceID:      cfg.CarparkInfoResourceID,
		PageSize:        cfg.DatastorePageSize,
	}, zlog)

	var metadataSource carpark.MetadataSource = client
	if cfg.MetadataSource == config.MetadataSourceCSV {
		metadataSource = hdbcsv.New(cfg.MetadataCSVPath, zlog)
	}

	carparkCache := cache.New(metadataSource, client, cfg.FreshnessThreshold, zlog)
	scanner := bufio.NewScanner(os.Stdin)

	// First load. The user may retry on failure; giving up before any
	// snapshot exists is a startup failure and exits non-zero.
	for {
		fmt.Println("\nFetching carpark data...")
		if err := reload(carparkCache); err == nil {
			break
		} else {
			fmt.Printf("Error: could not load carpark data: %v\n", err)
		}

		fmt.Print("Press 'r' to retry or type 'exit' to quit: ")
		if !scanner.Scan() {
			os.Exit(1)
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "exit":
			fmt.Println("Exiting without a loaded snapshot.")
			os.Exit(1)
		case "r":
			continue
		default:
			fmt.Println("Invalid input. Enter 'r' to retry or 'exit' to quit.")
		}
	}

	for {
		fmt.Print("\nEnter a carpark number, 'r' to refresh, or 'exit' to quit: ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		input := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(input) {
		case "":
			fmt.Println("Please enter a carpark number.")
		case "exit":
			fmt.Println("Goodbye.")
			return
		case "r":
			fmt.Println("\nRefreshing the data...")
			if err := reload(carparkCache); err != nil {
				fmt.Printf("Refresh failed, previous data kept: %v\n", err)
			} else if n, _, ok := carparkCache.SnapshotInfo(); ok {
				fmt.Printf("Snapshot refreshed: %d carparks.\n", n)
			}
		default:
			printResult(input, carparkCache.Lookup(input), carparkCache.Threshold())
		}
	}
}

func reload(c *cache.Cache) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return c.Reload(ctx)
}

func printResult(query string, result cache.LookupResult, threshold time.Duration) {
	switch result.Status {
	case cache.StatusNoSnapshot:
		fmt.Println("No data loaded yet. Press 'r' to load the snapshot first.")
		return
	case cache.StatusNotFound:
		fmt.Printf("\nNo carpark %q found.\n", strings.ToUpper(strings.TrimSpace(query)))
		return
	}

	rec := result.Record
	meta := rec.Metadata

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Printf("Carpark %s\n", meta.CarparkNumber)
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Address:            %s\n", meta.Address)
	fmt.Printf("Carpark type:       %s\n", valueOrNA(meta.CarparkType))
	fmt.Printf("Parking system:     %s\n", valueOrNA(meta.ParkingSystem))
	fmt.Printf("Short-term parking: %s\n", valueOrNA(meta.ShortTermParking))
	fmt.Printf("Free parking:       %s\n", valueOrNA(meta.FreeParking))
	fmt.Printf("Night parking:      %s\n", valueOrNA(meta.NightParking))
	fmt.Printf("Decks:              %d\n", meta.Decks)
	fmt.Printf("Gantry height:      %.2fm\n", meta.GantryHeightM)
	fmt.Printf("Basement:           %s\n", yesNo(meta.Basement))
	fmt.Printf("Coordinates:        %.4f, %.4f (SVY21)\n", meta.XCoord, meta.YCoord)

	if !rec.HasLiveData() {
		fmt.Println("\nNo live availability data for this carpark.")
		fmt.Println(strings.Repeat("=", 50))
		return
	}

	fmt.Println("\nAvailability:")
	for _, s := range rec.Availability {
		fmt.Printf("  lot type %-2s %d of %d lots available\n", s.LotType+":", s.LotsAvailable, s.TotalLots)
	}
	fmt.Printf("Updated: %s (%s ago)\n",
		rec.ObservedAt.Format("2006-01-02 15:04:05 MST"), result.Age.Round(time.Second))

	if result.Status == cache.StatusStale {
		fmt.Printf("WARNING: this reading is older than the %s freshness window; treat it as outdated.\n", threshold)
	}
	fmt.Println(strings.Repeat("=", 50))
}

func valueOrNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
