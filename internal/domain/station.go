package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActiveEndDate is the sentinel end date the AWDB assigns to stations that
// are still collecting data. Classification compares against it exactly.
var ActiveEndDate = time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)

// Station is one monitoring station as reconciled into a network's feature table.
// Triplet is the natural key; Latitude and Longitude are the only attributes
// the AWDB guarantees. Pointer fields are nullable in both the service
// response and the store.
type Station struct {
	Triplet     string `json:"station_triplet"`
	StationID   string `json:"station_id"`
	State       string `json:"state"`
	NetworkCode string `json:"network_code"`

	Name       string `json:"name,omitempty"`
	ActonID    string `json:"acton_id,omitempty"`
	ShefID     string `json:"shef_id,omitempty"`
	HUC        string `json:"huc,omitempty"`
	CountyName string `json:"county_name,omitempty"`

	FIPSCountryCode string `json:"fips_country_cd,omitempty"`
	FIPSCountyCode  *int16 `json:"fips_county_cd,omitempty"`
	FIPSStateNumber *int16 `json:"fips_state_number,omitempty"`

	DataTimeZone    *float64 `json:"data_time_zone,omitempty"`
	StationTimeZone *float64 `json:"station_time_zone,omitempty"`

	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Elevation *float64 `json:"elevation,omitempty"`

	BeginDate time.Time `json:"begin_date"`
	EndDate   time.Time `json:"end_date"`

	// USGS site-information enrichment, populated only for the USGS network.
	BasinArea *float64 `json:"basin_area,omitempty"`
	USGSID    string   `json:"usgs_id,omitempty"`
	USGSName  string   `json:"usgs_name,omitempty"`

	SyncedAt time.Time `json:"synced_at"`
}

// Active reports whether the station is still collecting data, signalled
// solely by the sentinel end date.
func (s Station) Active() bool {
	return s.EndDate.Equal(ActiveEndDate)
}

// Key returns the identity key used for diffing, the station triplet.
func (s Station) Key() string {
	return s.Triplet
}

// ParseTriplet splits an AWDB station triplet "id:state:network" into its
// components.
func ParseTriplet(triplet string) (id, state, network string, err error) {
	parts := strings.Split(triplet, ":")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed station triplet %q", triplet)
	}
	return parts[0], parts[1], parts[2], nil
}

// Validate checks the invariants a fetched station must satisfy before it
// may enter a feature table.
func (s Station) Validate() error {
	id, _, network, err := ParseTriplet(s.Triplet)
	if err != nil {
		return err
	}
	if s.StationID != id {
		return fmt.Errorf("station %s: id %q does not match triplet", s.Triplet, s.StationID)
	}
	if s.NetworkCode != network {
		return fmt.Errorf("station %s: network %q does not match triplet", s.Triplet, s.NetworkCode)
	}
	if s.Latitude == 0 && s.Longitude == 0 {
		return fmt.Errorf("station %s: missing coordinates", s.Triplet)
	}
	if s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("station %s: coordinates out of range (%f, %f)", s.Triplet, s.Latitude, s.Longitude)
	}
	if s.BeginDate.IsZero() || s.EndDate.IsZero() {
		return errors.New("station " + s.Triplet + ": missing begin or end date")
	}
	return nil
}

// Stamp sets SyncedAt from the package clock.
func (s Station) Stamp() Station {
	s.SyncedAt = clock.Now().UTC()
	return s
}
