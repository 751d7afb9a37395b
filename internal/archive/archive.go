// Package archive writes dated zip snapshots of each network's fetched
// station set after a successful sync, for FTP-style bulk consumers.
package archive

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cascadia-gis/awdb-station-sync/internal/domain"
)

var csvHeader = []string{
	"station_triplet", "station_id", "state", "network_code", "name",
	"acton_id", "shef_id", "huc", "county_name", "latitude", "longitude",
	"elevation", "begin_date", "end_date", "active", "basin_area",
	"usgs_id", "usgs_name",
}

// Writer archives station sets under a date-partitioned directory tree:
// <dir>/YYYY/MM/DD/YYYY-MM-DD_stations_<network>.zip
type Writer struct {
	dir   string
	clock clockwork.Clock
}

// NewWriter creates an archive writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, clock: clockwork.NewRealClock()}
}

// NewWriterWithClock is NewWriter with an injected time source for tests.
func NewWriterWithClock(dir string, clock clockwork.Clock) *Writer {
	return &Writer{dir: dir, clock: clock}
}

// Snapshot writes one zipped CSV of the station set and returns the archive
// path. An existing archive for the same network and day is overwritten.
func (w *Writer) Snapshot(network string, stations []domain.Station) (string, error) {
	today := w.clock.Now().UTC()
	day := today.Format("2006-01-02")
	name := fmt.Sprintf("%s_stations_%s", day, strings.ToLower(network))

	dir := filepath.Join(w.dir, today.Format("2006"), today.Format("01"), today.Format("02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	zipPath := filepath.Join(dir, name+".zip")
	f, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	entry, err := zw.Create(name + ".csv")
	if err != nil {
		return "", fmt.Errorf("create archive entry: %w", err)
	}

	cw := csv.NewWriter(entry)
	if err := cw.Write(csvHeader); err != nil {
		return "", fmt.Errorf("write archive header: %w", err)
	}
	for _, st := range stations {
		if err := cw.Write(csvRow(st)); err != nil {
			return "", fmt.Errorf("write archive row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("flush archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close archive file: %w", err)
	}
	return zipPath, nil
}

func csvRow(st domain.Station) []string {
	return []string{
		st.Triplet, st.StationID, st.State, st.NetworkCode, st.Name,
		st.ActonID, st.ShefID, st.HUC, st.CountyName,
		formatFloat(st.Latitude), formatFloat(st.Longitude),
		formatFloatPtr(st.Elevation),
		st.BeginDate.Format(time.RFC3339),
		st.EndDate.Format(time.RFC3339),
		strconv.FormatBool(st.Active()),
		formatFloatPtr(st.BasinArea),
		st.USGSID, st.USGSName,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
