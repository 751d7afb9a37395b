// Package awdb is a minimal SOAP client for the two AWDB web-service
// operations the sync needs: getStations and getStationMetadataMultiple.
package awdb

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cascadia-gis/awdb-station-sync/internal/domain"
)

const (
	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	awdbServiceNS  = "http://www.wcc.nrcs.usda.gov/ns/awdbWebService"

	// awdbTimeLayout is how the service formats beginDate/endDate.
	awdbTimeLayout = "2006-01-02 15:04:05"
)

// RemoteError is any failure talking to the AWDB service: unreachable
// endpoint, non-200 status, SOAP fault, or a malformed/incomplete response.
type RemoteError struct {
	Network string
	Op      string
	Err     error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("awdb %s (network %s): %v", e.Op, e.Network, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Client fetches station metadata from the AWDB SOAP endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	maxRequest int
	logger     *slog.Logger
}

// NewClient creates an AWDB client. maxRequest caps the number of triplets
// per metadata request; larger is faster but more likely to hit server
// timeouts.
func NewClient(endpoint string, timeout time.Duration, maxRequest int, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRequest: maxRequest,
		logger:     logger,
	}
}

// FetchStations returns the complete current station set for a network, or a
// *RemoteError. Partial results are never returned: if any record is missing
// or invalid after all chunks are fetched, the whole fetch fails.
func (c *Client) FetchStations(ctx context.Context, network string) ([]domain.Station, error) {
	triplets, err := c.getStations(ctx, network)
	if err != nil {
		return nil, &RemoteError{Network: network, Op: "getStations", Err: err}
	}
	c.logger.Info("station list fetched", "network", network, "stations", len(triplets))

	stations := make([]domain.Station, 0, len(triplets))
	for _, group := range chunk(triplets, c.maxRequest) {
		batch, err := c.getStationMetadata(ctx, group)
		if err != nil {
			return nil, &RemoteError{Network: network, Op: "getStationMetadataMultiple", Err: err}
		}
		stations = append(stations, batch...)
	}

	if len(stations) != len(triplets) {
		err := fmt.Errorf("incomplete station set: got %d of %d records", len(stations), len(triplets))
		return nil, &RemoteError{Network: network, Op: "getStationMetadataMultiple", Err: err}
	}
	for _, s := range stations {
		if err := s.Validate(); err != nil {
			return nil, &RemoteError{Network: network, Op: "getStationMetadataMultiple", Err: err}
		}
	}
	return stations, nil
}

func (c *Client) getStations(ctx context.Context, network string) ([]string, error) {
	body := requestBody{
		GetStations: &getStationsRequest{
			NetworkCds: []string{network},
			LogicalAnd: true,
		},
	}
	var resp stationsResponse
	if err := c.call(ctx, body, &resp); err != nil {
		return nil, err
	}
	return resp.Triplets, nil
}

func (c *Client) getStationMetadata(ctx context.Context, triplets []string) ([]domain.Station, error) {
	body := requestBody{
		GetMetadata: &getMetadataRequest{StationTriplets: triplets},
	}
	var resp metadataResponse
	if err := c.call(ctx, body, &resp); err != nil {
		return nil, err
	}

	stations := make([]domain.Station, 0, len(resp.Stations))
	for _, record := range resp.Stations {
		station, err := record.toStation()
		if err != nil {
			return nil, err
		}
		stations = append(stations, station)
	}
	return stations, nil
}

// call posts one SOAP request and decodes the response body into out.
func (c *Client) call(ctx context.Context, body requestBody, out any) error {
	payload, err := xml.Marshal(requestEnvelope{
		SoapNS: soapEnvelopeNS,
		AwdbNS: awdbServiceNS,
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", `""`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// Faults come back as HTTP 500 with a Fault element in the body.
	var fault faultEnvelope
	if xml.Unmarshal(data, &fault) == nil && fault.Fault != nil {
		return fmt.Errorf("soap fault %s: %s", fault.Fault.Code, fault.Fault.Reason)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := xml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// chunk splits triplets into pieces of at most size elements, preserving order.
func chunk(triplets []string, size int) [][]string {
	if size <= 0 || len(triplets) == 0 {
		if len(triplets) == 0 {
			return nil
		}
		return [][]string{triplets}
	}
	var groups [][]string
	for start := 0; start < len(triplets); start += size {
		end := start + size
		if end > len(triplets) {
			end = len(triplets)
		}
		groups = append(groups, triplets[start:end])
	}
	return groups
}

// Request/response envelope types.

type requestEnvelope struct {
	XMLName xml.Name    `xml:"soapenv:Envelope"`
	SoapNS  string      `xml:"xmlns:soapenv,attr"`
	AwdbNS  string      `xml:"xmlns:awdb,attr"`
	Body    requestBody `xml:"soapenv:Body"`
}

type requestBody struct {
	GetStations *getStationsRequest `xml:"awdb:getStations,omitempty"`
	GetMetadata *getMetadataRequest `xml:"awdb:getStationMetadataMultiple,omitempty"`
}

type getStationsRequest struct {
	NetworkCds []string `xml:"networkCds"`
	LogicalAnd bool     `xml:"logicalAnd"`
}

type getMetadataRequest struct {
	StationTriplets []string `xml:"stationTriplets"`
}

type faultEnvelope struct {
	Fault *soapFault `xml:"Body>Fault"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	Reason string `xml:"faultstring"`
}

type stationsResponse struct {
	Triplets []string `xml:"Body>getStationsResponse>return"`
}

type metadataResponse struct {
	Stations []stationMetadata `xml:"Body>getStationMetadataMultipleResponse>return"`
}

// stationMetadata mirrors the wire shape of one metadata record. Optional
// attributes are pointers so absent elements stay null.
type stationMetadata struct {
	StationTriplet  string   `xml:"stationTriplet"`
	Name            string   `xml:"name"`
	ActonID         string   `xml:"actonId"`
	ShefID          string   `xml:"shefId"`
	HUC             string   `xml:"huc"`
	CountyName      string   `xml:"countyName"`
	FIPSCountryCd   string   `xml:"fipsCountryCd"`
	FIPSCountyCd    *int16   `xml:"fipsCountyCd"`
	FIPSStateNumber *int16   `xml:"fipsStateNumber"`
	DataTimeZone    *float64 `xml:"stationDataTimeZone"`
	StationTimeZone *float64 `xml:"stationTimeZone"`
	Latitude        *float64 `xml:"latitude"`
	Longitude       *float64 `xml:"longitude"`
	Elevation       *float64 `xml:"elevation"`
	BeginDate       string   `xml:"beginDate"`
	EndDate         string   `xml:"endDate"`
}

func (m stationMetadata) toStation() (domain.Station, error) {
	id, state, network, err := domain.ParseTriplet(m.StationTriplet)
	if err != nil {
		return domain.Station{}, err
	}
	if m.Latitude == nil || m.Longitude == nil {
		return domain.Station{}, fmt.Errorf("station %s: missing coordinates", m.StationTriplet)
	}
	begin, err := parseAWDBTime(m.BeginDate)
	if err != nil {
		return domain.Station{}, fmt.Errorf("station %s: %w", m.StationTriplet, err)
	}
	end, err := parseAWDBTime(m.EndDate)
	if err != nil {
		return domain.Station{}, fmt.Errorf("station %s: %w", m.StationTriplet, err)
	}

	return domain.Station{
		Triplet:         m.StationTriplet,
		StationID:       id,
		State:           state,
		NetworkCode:     network,
		Name:            m.Name,
		ActonID:         m.ActonID,
		ShefID:          m.ShefID,
		HUC:             m.HUC,
		CountyName:      m.CountyName,
		FIPSCountryCode: m.FIPSCountryCd,
		FIPSCountyCode:  m.FIPSCountyCd,
		FIPSStateNumber: m.FIPSStateNumber,
		DataTimeZone:    m.DataTimeZone,
		StationTimeZone: m.StationTimeZone,
		Latitude:        *m.Latitude,
		Longitude:       *m.Longitude,
		Elevation:       m.Elevation,
		BeginDate:       begin,
		EndDate:         end,
	}, nil
}

func parseAWDBTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	t, err := time.Parse(awdbTimeLayout, value)
	if err != nil {
		// Some records carry a bare date.
		t, err = time.Parse("2006-01-02", value)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return t, nil
}
