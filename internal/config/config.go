// Package config loads the sync job's settings from environment variables,
// with an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultNetworks is the full set of AWDB network codes synced when NETWORKS
// is unset.
var DefaultNetworks = []string{
	"SNTL", "SNOW", "USGS", "COOP", "SCAN", "SNTLT", "OTHER", "BOR", "MPRC", "MSNT",
}

// Config holds all job settings, populated from environment variables.
type Config struct {
	Networks     []string
	AWDBEndpoint string

	DatabaseURL string
	DBSchema    string

	// ArcGIS Server admin API. Empty admin URL disables the service guard.
	ArcGISAdminURL string
	ArcGISUser     string
	ArcGISPassword string

	// USGS basin-area enrichment (feature-flagged via USGS_ENABLED).
	USGSEnabled   bool
	USGSURL       string
	USGSCacheSize int

	// Kafka change feed. Empty broker list disables publishing.
	KafkaBrokers []string
	KafkaTopic   string

	// Empty archive dir disables snapshots.
	ArchiveDir string

	RequestTimeout   time.Duration
	StatementTimeout time.Duration
	RetryCount       int
	MaxRequest       int

	PushgatewayURL string
	LogLevel       string
	LogFormat      string
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	requestTimeout, err := parseDuration("REQUEST_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	statementTimeout, err := parseDuration("STATEMENT_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	retryCount, err := parseInt("RETRY_COUNT", 2, 0)
	if err != nil {
		return nil, err
	}
	maxRequest, err := parseInt("MAX_REQUEST", 250, 1)
	if err != nil {
		return nil, err
	}
	usgsCacheSize, err := parseInt("USGS_CACHE_SIZE", 1000, 1)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Networks:     parseList(envOrDefault("NETWORKS", strings.Join(DefaultNetworks, ","))),
		AWDBEndpoint: envOrDefault("AWDB_ENDPOINT", "https://wcc.sc.egov.usda.gov/awdbWebService/services"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBSchema:    envOrDefault("DB_SCHEMA", "awdb"),

		ArcGISAdminURL: os.Getenv("ARCGIS_ADMIN_URL"),
		ArcGISUser:     os.Getenv("ARCGIS_USER"),
		ArcGISPassword: os.Getenv("ARCGIS_PASSWORD"),

		USGSEnabled:   os.Getenv("USGS_ENABLED") == "true",
		USGSURL:       envOrDefault("USGS_URL", "https://waterservices.usgs.gov/nwis/site/"),
		USGSCacheSize: usgsCacheSize,

		KafkaBrokers: parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "station-changes"),

		ArchiveDir: os.Getenv("ARCHIVE_DIR"),

		RequestTimeout:   requestTimeout,
		StatementTimeout: statementTimeout,
		RetryCount:       retryCount,
		MaxRequest:       maxRequest,

		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		LogFormat:      envOrDefault("LOG_FORMAT", "json"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if len(cfg.Networks) == 0 {
		return nil, errors.New("NETWORKS must name at least one network code")
	}
	if cfg.ArcGISAdminURL != "" && (cfg.ArcGISUser == "" || cfg.ArcGISPassword == "") {
		return nil, errors.New("ARCGIS_ADMIN_URL is set but ARCGIS_USER or ARCGIS_PASSWORD is not")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseList splits a comma-separated value, trimming whitespace and dropping
// empty entries.
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, min int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
