package usgs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadia-gis/awdb-station-sync/internal/domain"
)

func usgsStation(id string) domain.Station {
	return domain.Station{
		Triplet:     id + ":OR:USGS",
		StationID:   id,
		State:       "OR",
		NetworkCode: "USGS",
		Latitude:    45.0,
		Longitude:   -117.0,
		BeginDate:   time.Date(1950, 10, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     domain.ActiveEndDate,
	}
}

func TestEnrich_OtherNetworksPassThrough(t *testing.T) {
	inner := &mockInformer{}
	e := NewEnricher(inner, slog.Default())

	stations := []domain.Station{usgsStation("13318060")}
	stations[0].NetworkCode = "SNTL"

	out, err := e.Enrich(context.Background(), "SNTL", stations)
	require.NoError(t, err)
	assert.Equal(t, stations, out)
	assert.Empty(t, inner.calls, "non-USGS networks must not hit the service")
}

func TestEnrich_MergesSiteInformation(t *testing.T) {
	area := 360.0
	inner := &mockInformer{sites: map[string]Site{
		"13318060": {ID: "13318060", Name: "GRANDE RONDE RIVER NEAR PERRY, OR", BasinArea: &area},
	}}
	e := NewEnricher(inner, slog.Default())

	out, err := e.Enrich(context.Background(), "USGS", []domain.Station{
		usgsStation("13318060"),
		usgsStation("14020000"), // unknown to the service
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "13318060", out[0].USGSID)
	assert.Equal(t, "GRANDE RONDE RIVER NEAR PERRY, OR", out[0].USGSName)
	require.NotNil(t, out[0].BasinArea)
	assert.Equal(t, 360.0, *out[0].BasinArea)

	assert.Empty(t, out[1].USGSID)
	assert.Nil(t, out[1].BasinArea)
}

func TestEnrich_SkipsInvalidSiteIDs(t *testing.T) {
	inner := &mockInformer{sites: map[string]Site{}}
	e := NewEnricher(inner, slog.Default())

	short := usgsStation("302")
	out, err := e.Enrich(context.Background(), "USGS", []domain.Station{short})
	require.NoError(t, err)
	assert.Equal(t, []domain.Station{short}, out)
	assert.Empty(t, inner.calls, "no valid site ids means no request")
}

func TestEnrich_PropagatesServiceError(t *testing.T) {
	inner := &mockInformer{err: errors.New("service unavailable")}
	e := NewEnricher(inner, slog.Default())

	_, err := e.Enrich(context.Background(), "USGS", []domain.Station{usgsStation("13318060")})
	require.Error(t, err)
}
