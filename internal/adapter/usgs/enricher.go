package usgs

import (
	"context"
	"log/slog"

	"github.com/cascadia-gis/awdb-station-sync/internal/domain"
)

// usgsNetwork is the one network whose stations carry USGS site numbers.
const usgsNetwork = "USGS"

// Enricher merges USGS site information into fetched station sets before
// reconciliation. Networks other than USGS pass through unchanged.
type Enricher struct {
	informer SiteInformer
	logger   *slog.Logger
}

// NewEnricher creates an enricher over a (typically cached) site informer.
func NewEnricher(informer SiteInformer, logger *slog.Logger) *Enricher {
	return &Enricher{informer: informer, logger: logger}
}

// Enrich fills BasinArea/USGSID/USGSName for stations with valid USGS site
// numbers. Stations the service does not know keep their zero enrichment
// fields.
func (e *Enricher) Enrich(ctx context.Context, network string, stations []domain.Station) ([]domain.Station, error) {
	if network != usgsNetwork {
		return stations, nil
	}

	var siteIDs []string
	for _, s := range stations {
		if ValidSiteID(s.StationID) {
			siteIDs = append(siteIDs, s.StationID)
		}
	}
	if len(siteIDs) == 0 {
		return stations, nil
	}

	sites, err := e.informer.SiteInfo(ctx, siteIDs)
	if err != nil {
		return nil, err
	}

	enriched := make([]domain.Station, len(stations))
	matched := 0
	for i, s := range stations {
		if site, ok := sites[s.StationID]; ok {
			s.BasinArea = site.BasinArea
			s.USGSID = site.ID
			s.USGSName = site.Name
			matched++
		}
		enriched[i] = s
	}
	e.logger.Info("usgs enrichment applied", "stations", len(stations), "matched", matched)
	return enriched, nil
}
