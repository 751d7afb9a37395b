// Package store persists reconciled station sets in Postgres/PostGIS
// feature tables, one table per network.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cascadia-gis/awdb-station-sync/internal/domain"
)

// lockNotAvailable is the Postgres error code raised when a statement
// exceeds lock_timeout, which is how a dependent service holding the table
// surfaces here.
const lockNotAvailable = "55P03"

var networkCodeRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Store reconciles station sets into per-network feature tables.
type Store struct {
	pool             *pgxpool.Pool
	schema           string
	statementTimeout time.Duration
	lockTimeout      time.Duration
	logger           *slog.Logger
}

// New connects to the database and verifies the connection.
func New(ctx context.Context, databaseURL, schema string, statementTimeout time.Duration, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, &PersistenceError{Op: "connect", Err: err}
	}
	s := &Store{
		pool:             pool,
		schema:           schema,
		statementTimeout: statementTimeout,
		lockTimeout:      statementTimeout,
		logger:           logger,
	}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Ping verifies store connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &PersistenceError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the target schema and the PostGIS extension if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS postgis",
		"CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{s.schema}.Sanitize(),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return &PersistenceError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}

// EnsureNetworkTable creates the feature table for a network if absent, with
// the full attribute schema and a 4326 point geometry.
func (s *Store) EnsureNetworkTable(ctx context.Context, network string) error {
	table, err := s.tableIdent(network)
	if err != nil {
		return &PersistenceError{Network: network, Op: "ensure table", Err: err}
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	station_triplet   text PRIMARY KEY,
	station_id        text NOT NULL,
	state             text NOT NULL,
	network_code      text NOT NULL,
	name              text,
	acton_id          text,
	shef_id           text,
	huc               text,
	county_name       text,
	fips_country_cd   text,
	fips_county_cd    smallint,
	fips_state_number smallint,
	data_time_zone    double precision,
	station_time_zone double precision,
	latitude          double precision NOT NULL,
	longitude         double precision NOT NULL,
	elevation         double precision,
	begin_date        timestamp NOT NULL,
	end_date          timestamp NOT NULL,
	basin_area        double precision,
	usgs_id           text,
	usgs_name         text,
	geom              geometry(PointZ, 4326) NOT NULL,
	synced_at         timestamptz NOT NULL
)`, table)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return &PersistenceError{Network: network, Op: "ensure table", Err: err}
	}
	return nil
}

// FetchStations loads the stored station set for a network, keyed by triplet.
// A missing table yields an empty set, not an error, so first runs and
// reconciliation share one code path.
func (s *Store) FetchStations(ctx context.Context, network string) (map[string]domain.Station, error) {
	table, err := s.tableIdent(network)
	if err != nil {
		return nil, &PersistenceError{Network: network, Op: "fetch", Err: err}
	}

	query := `SELECT station_triplet, station_id, state, network_code, name,
	acton_id, shef_id, huc, county_name, fips_country_cd, fips_county_cd,
	fips_state_number, data_time_zone, station_time_zone, latitude, longitude,
	elevation, begin_date, end_date, basin_area, usgs_id, usgs_name, synced_at
FROM ` + table

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		if isUndefinedTable(err) {
			return map[string]domain.Station{}, nil
		}
		return nil, &PersistenceError{Network: network, Op: "fetch", Err: err}
	}
	defer rows.Close()

	stations := make(map[string]domain.Station)
	for rows.Next() {
		var st domain.Station
		var name, actonID, shefID, huc, county, fipsCountry, usgsID, usgsName *string
		if err := rows.Scan(
			&st.Triplet, &st.StationID, &st.State, &st.NetworkCode, &name,
			&actonID, &shefID, &huc, &county, &fipsCountry, &st.FIPSCountyCode,
			&st.FIPSStateNumber, &st.DataTimeZone, &st.StationTimeZone,
			&st.Latitude, &st.Longitude, &st.Elevation, &st.BeginDate,
			&st.EndDate, &st.BasinArea, &usgsID, &usgsName, &st.SyncedAt,
		); err != nil {
			return nil, &PersistenceError{Network: network, Op: "fetch", Err: err}
		}
		st.Name = deref(name)
		st.ActonID = deref(actonID)
		st.ShefID = deref(shefID)
		st.HUC = deref(huc)
		st.CountyName = deref(county)
		st.FIPSCountryCode = deref(fipsCountry)
		st.USGSID = deref(usgsID)
		st.USGSName = deref(usgsName)
		st.BeginDate = asUTC(st.BeginDate)
		st.EndDate = asUTC(st.EndDate)
		stations[st.Triplet] = st
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Network: network, Op: "fetch", Err: err}
	}
	return stations, nil
}

// Apply writes a change set in a single transaction: all of a network's
// changes commit or none do, so a dependent service never reads a
// partially-updated table. A lock_timeout violation maps to ErrTableLocked.
func (s *Store) Apply(ctx context.Context, network string, cs domain.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	table, err := s.tableIdent(network)
	if err != nil {
		return &PersistenceError{Network: network, Op: "apply", Err: err}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return s.applyError(network, "begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, stmt := range []string{
		fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", s.statementTimeout.Milliseconds()),
		fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds()),
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return s.applyError(network, "apply", err)
		}
	}

	batch := &pgx.Batch{}
	for _, st := range cs.Inserts {
		st = st.Stamp()
		batch.Queue(insertSQL(table), insertArgs(st)...)
	}
	for _, st := range cs.Updates {
		st = st.Stamp()
		batch.Queue(updateSQL(table), insertArgs(st)...)
	}

	res := tx.SendBatch(ctx, batch)
	for i := 0; i < cs.Size(); i++ {
		if _, err := res.Exec(); err != nil {
			res.Close()
			return s.applyError(network, "apply", err)
		}
	}
	if err := res.Close(); err != nil {
		return s.applyError(network, "apply", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return s.applyError(network, "commit", err)
	}

	s.logger.Info("change set applied",
		"network", network,
		"inserted", len(cs.Inserts),
		"updated", len(cs.Updates),
	)
	return nil
}

// applyError wraps a write failure, mapping lock_timeout violations to
// ErrTableLocked so callers can tell "table still held by a service" apart
// from other persistence failures.
func (s *Store) applyError(network, op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		return &PersistenceError{Network: network, Op: op, Err: fmt.Errorf("%w: %s", ErrTableLocked, pgErr.Message)}
	}
	return &PersistenceError{Network: network, Op: op, Err: err}
}

func (s *Store) tableIdent(network string) (string, error) {
	if !networkCodeRe.MatchString(network) {
		return "", fmt.Errorf("invalid network code %q", network)
	}
	return pgx.Identifier{s.schema, "stations_" + strings.ToLower(network)}.Sanitize(), nil
}

func insertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (
	station_triplet, station_id, state, network_code, name, acton_id, shef_id,
	huc, county_name, fips_country_cd, fips_county_cd, fips_state_number,
	data_time_zone, station_time_zone, latitude, longitude, elevation,
	begin_date, end_date, basin_area, usgs_id, usgs_name, geom, synced_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,
	ST_SetSRID(ST_MakePoint($16, $15, COALESCE($17, 0)), 4326), $23
)`, table)
}

func updateSQL(table string) string {
	return fmt.Sprintf(`UPDATE %s SET
	station_id = $2, state = $3, network_code = $4, name = $5, acton_id = $6,
	shef_id = $7, huc = $8, county_name = $9, fips_country_cd = $10,
	fips_county_cd = $11, fips_state_number = $12, data_time_zone = $13,
	station_time_zone = $14, latitude = $15, longitude = $16, elevation = $17,
	begin_date = $18, end_date = $19, basin_area = $20, usgs_id = $21,
	usgs_name = $22,
	geom = ST_SetSRID(ST_MakePoint($16, $15, COALESCE($17, 0)), 4326),
	synced_at = $23
WHERE station_triplet = $1`, table)
}

func insertArgs(st domain.Station) []any {
	return []any{
		st.Triplet, st.StationID, st.State, st.NetworkCode,
		nullable(st.Name), nullable(st.ActonID), nullable(st.ShefID),
		nullable(st.HUC), nullable(st.CountyName), nullable(st.FIPSCountryCode),
		st.FIPSCountyCode, st.FIPSStateNumber, st.DataTimeZone,
		st.StationTimeZone, st.Latitude, st.Longitude, st.Elevation,
		st.BeginDate, st.EndDate, st.BasinArea,
		nullable(st.USGSID), nullable(st.USGSName), st.SyncedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// asUTC reinterprets a timestamp-without-timezone scan as UTC so sentinel
// comparisons hold regardless of the session time zone.
func asUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
