// Command validate runs preflight checks against every external dependency
// the sync job touches: the spatial database, the AWDB metadata service, and
// the ArcGIS Server admin API when configured. It makes no writes.
//
// Usage:
//
//	go run ./cmd/validate
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cascadia-gis/awdb-station-sync/internal/adapter/arcgis"
	"github.com/cascadia-gis/awdb-station-sync/internal/adapter/awdb"
	"github.com/cascadia-gis/awdb-station-sync/internal/config"
	"github.com/cascadia-gis/awdb-station-sync/internal/store"
)

// phase tracks pass/fail for one preflight check.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	if code := run(); code != 0 {
		os.Exit(code)
	}
}

func run() int {
	fmt.Println("=== AWDB Station Sync Preflight ===")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	phases := []*phase{
		checkDatabase(ctx, cfg, logger),
		checkAWDB(ctx, cfg, logger),
		checkArcGIS(ctx, cfg, logger),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll preflight checks passed.")
		return 0
	}
	fmt.Println("\nPreflight FAILED.")
	return 1
}

func checkDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) *phase {
	p := &phase{name: "Database connectivity"}

	st, err := store.New(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.StatementTimeout, logger)
	if err != nil {
		p.errorf("connect: %v", err)
		return p
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		p.errorf("ping: %v", err)
		return p
	}

	for _, network := range cfg.Networks {
		stations, err := st.FetchStations(ctx, network)
		if err != nil {
			p.errorf("%s: read stations: %v", network, err)
			continue
		}
		fmt.Printf("  %s: %d stored stations\n", network, len(stations))
	}
	return p
}

func checkAWDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) *phase {
	p := &phase{name: "AWDB metadata service"}
	if len(cfg.Networks) == 0 {
		p.errorf("no networks configured")
		return p
	}

	// One network is enough to prove the endpoint answers SOAP calls.
	network := cfg.Networks[0]
	client := awdb.NewClient(cfg.AWDBEndpoint, cfg.RequestTimeout, cfg.MaxRequest, logger)
	stations, err := client.FetchStations(ctx, network)
	if err != nil {
		p.errorf("%s: %v", network, err)
		return p
	}
	if len(stations) == 0 {
		p.errorf("%s: remote returned no stations", network)
		return p
	}
	fmt.Printf("  %s: %d remote stations\n", network, len(stations))
	return p
}

func checkArcGIS(ctx context.Context, cfg *config.Config, logger *slog.Logger) *phase {
	p := &phase{name: "ArcGIS admin API"}
	if cfg.ArcGISAdminURL == "" {
		fmt.Println("  service guard disabled, skipping ArcGIS check")
		return p
	}

	client := arcgis.NewClient(cfg.ArcGISAdminURL, cfg.ArcGISUser, cfg.ArcGISPassword, cfg.RequestTimeout, logger)
	for _, network := range cfg.Networks {
		services, err := client.ListServices(ctx, network)
		if err != nil {
			p.errorf("%s: list services: %v", network, err)
			return p
		}
		fmt.Printf("  %s: %d dependent services\n", network, len(services))
	}
	return p
}
