package archive

import (
	"archive/zip"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadia-gis/awdb-station-sync/internal/domain"
)

func testStation(triplet, id, network string) domain.Station {
	return domain.Station{
		Triplet:     triplet,
		StationID:   id,
		State:       "OR",
		NetworkCode: network,
		Name:        "Aneroid Lake #2",
		HUC:         "170601050101",
		CountyName:  "Wallowa",
		Latitude:    45.21328,
		Longitude:   -117.19258,
		BeginDate:   time.Date(1980, 10, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     domain.ActiveEndDate,
	}
}

func TestSnapshotWritesDatedArchive(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 7, 10, 30, 0, 0, time.UTC))
	w := NewWriterWithClock(dir, clock)

	elev := 2255.5
	station := testStation("302:OR:SNTL", "302", "SNTL")
	station.Elevation = &elev

	path, err := w.Snapshot("SNTL", []domain.Station{station})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2026", "03", "07", "2026-03-07_stations_sntl.zip"), path)

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 1)
	assert.Equal(t, "2026-03-07_stations_sntl.csv", zr.File[0].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()

	records, err := csv.NewReader(rc).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])

	row := records[1]
	assert.Equal(t, "302:OR:SNTL", row[0])
	assert.Equal(t, "SNTL", row[3])
	assert.Equal(t, "2255.5", row[11])
	assert.Equal(t, "2100-01-01T00:00:00Z", row[13])
	assert.Equal(t, "true", row[14])
	assert.Equal(t, "", row[15])
}

func TestSnapshotOverwritesSameDay(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 7, 10, 30, 0, 0, time.UTC))
	w := NewWriterWithClock(dir, clock)

	first, err := w.Snapshot("SNOW", []domain.Station{testStation("430:OR:SNOW", "430", "SNOW")})
	require.NoError(t, err)

	second, err := w.Snapshot("SNOW", nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	zr, err := zip.OpenReader(second)
	require.NoError(t, err)
	defer zr.Close()

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()

	records, err := csv.NewReader(rc).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
