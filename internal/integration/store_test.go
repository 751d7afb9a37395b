//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/cascadia-gis/awdb-station-sync/internal/domain"
	"github.com/cascadia-gis/awdb-station-sync/internal/store"
)

type nopLogger struct{}

func (*nopLogger) Printf(_ string, _ ...any) {}

var _ tclog.Logger = (*nopLogger)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startPostgres runs a PostGIS container and returns its connection string.
func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := postgres.Run(
		ctx,
		"postgis/postgis:16-3.4-alpine",
		postgres.WithDatabase("gis"),
		postgres.WithUsername("awdb"),
		postgres.WithPassword("awdb"),
		postgres.BasicWaitStrategies(),
		tc.WithLogger(&nopLogger{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { tc.CleanupContainer(t, container) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func newStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()

	connStr := startPostgres(ctx, t)
	st, err := store.New(ctx, connStr, "awdb", 30*time.Second, discardLogger())
	require.NoError(t, err)
	t.Cleanup(st.Close)

	require.NoError(t, st.EnsureSchema(ctx))
	return st
}

func testStation(id string) domain.Station {
	tz := -8.0
	elev := 2255.5
	return domain.Station{
		Triplet:      id + ":OR:SNTL",
		StationID:    id,
		State:        "OR",
		NetworkCode:  "SNTL",
		Name:         "Aneroid Lake #2",
		HUC:          "170601050101",
		CountyName:   "Wallowa",
		DataTimeZone: &tz,
		Elevation:    &elev,
		Latitude:     45.21328,
		Longitude:    -117.19258,
		BeginDate:    time.Date(1980, 10, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      domain.ActiveEndDate,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st := newStore(ctx, t)

	// Missing table reads as an empty station set.
	stored, err := st.FetchStations(ctx, "SNTL")
	require.NoError(t, err)
	assert.Empty(t, stored)

	require.NoError(t, st.EnsureNetworkTable(ctx, "SNTL"))

	station := testStation("302")
	cs := domain.ChangeSet{Inserts: []domain.Station{station}}
	require.NoError(t, st.Apply(ctx, "SNTL", cs))

	stored, err = st.FetchStations(ctx, "SNTL")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	got, ok := stored["302:OR:SNTL"]
	require.True(t, ok)
	assert.Equal(t, "Aneroid Lake #2", got.Name)
	assert.Equal(t, "SNTL", got.NetworkCode)
	assert.True(t, got.Active())
	require.NotNil(t, got.Elevation)
	assert.InDelta(t, 2255.5, *got.Elevation, 1e-9)
	assert.InDelta(t, 45.21328, got.Latitude, 1e-9)
	assert.False(t, got.SyncedAt.IsZero())
}

func TestStoreIdempotentSecondPass(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st := newStore(ctx, t)
	require.NoError(t, st.EnsureNetworkTable(ctx, "SNTL"))

	station := testStation("302")
	require.NoError(t, st.Apply(ctx, "SNTL", domain.ChangeSet{Inserts: []domain.Station{station}}))

	stored, err := st.FetchStations(ctx, "SNTL")
	require.NoError(t, err)

	// Diffing the same remote set against what was just written must be a
	// no-op, so a second pass makes no writes.
	cs := domain.Diff([]domain.Station{station}, stored)
	assert.True(t, cs.Empty())
}

func TestStoreUpdatesChangedStation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st := newStore(ctx, t)
	require.NoError(t, st.EnsureNetworkTable(ctx, "SNTL"))

	station := testStation("302")
	require.NoError(t, st.Apply(ctx, "SNTL", domain.ChangeSet{Inserts: []domain.Station{station}}))

	// Station decommissioned: remote now reports a real end date.
	station.EndDate = time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	station.Name = "Aneroid Lake #2 (discontinued)"
	require.NoError(t, st.Apply(ctx, "SNTL", domain.ChangeSet{Updates: []domain.Station{station}}))

	stored, err := st.FetchStations(ctx, "SNTL")
	require.NoError(t, err)
	got := stored["302:OR:SNTL"]
	assert.False(t, got.Active())
	assert.Equal(t, "Aneroid Lake #2 (discontinued)", got.Name)
	assert.True(t, got.EndDate.Equal(station.EndDate))
}

func TestStoreNetworksAreIsolated(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st := newStore(ctx, t)
	require.NoError(t, st.EnsureNetworkTable(ctx, "SNTL"))
	require.NoError(t, st.EnsureNetworkTable(ctx, "SNOW"))

	sntl := testStation("302")
	snow := testStation("430")
	snow.Triplet = "430:OR:SNOW"
	snow.NetworkCode = "SNOW"

	require.NoError(t, st.Apply(ctx, "SNTL", domain.ChangeSet{Inserts: []domain.Station{sntl}}))
	require.NoError(t, st.Apply(ctx, "SNOW", domain.ChangeSet{Inserts: []domain.Station{snow}}))

	sntlStored, err := st.FetchStations(ctx, "SNTL")
	require.NoError(t, err)
	snowStored, err := st.FetchStations(ctx, "SNOW")
	require.NoError(t, err)

	assert.Len(t, sntlStored, 1)
	assert.Len(t, snowStored, 1)
	assert.Contains(t, sntlStored, "302:OR:SNTL")
	assert.Contains(t, snowStored, "430:OR:SNOW")
}

func TestStoreEnsureNetworkTableIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st := newStore(ctx, t)
	require.NoError(t, st.EnsureNetworkTable(ctx, "SNTL"))
	require.NoError(t, st.EnsureNetworkTable(ctx, "SNTL"))
}
