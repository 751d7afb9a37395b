// Package usgs enriches USGS-network stations with basin area and the
// canonical site id/name from the USGS site-information REST service.
package usgs

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Site is one record from the site-information service.
type Site struct {
	ID        string
	Name      string
	BasinArea *float64 // contributing drainage area, square miles; nil when unreported
}

// Client queries the USGS site-information service in rdb format.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a site-information client. baseURL is the NWIS site
// service root, e.g. "https://waterservices.usgs.gov/nwis/site/".
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SiteInfo fetches site records for the given ids, keyed by site id. Ids the
// service does not know are simply absent from the result.
func (c *Client) SiteInfo(ctx context.Context, siteIDs []string) (map[string]Site, error) {
	if len(siteIDs) == 0 {
		return map[string]Site{}, nil
	}

	form := url.Values{
		"format":     {"rdb"},
		"sites":      {strings.Join(siteIDs, ",")},
		"siteOutput": {"expanded"}, // expanded output includes drainage area
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("site information request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("usgs API error: status %d: %s", resp.StatusCode, body)
	}

	body := resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("decompress response: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	sites, err := parseRDB(body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("usgs site information fetched", "requested", len(siteIDs), "returned", len(sites))
	return sites, nil
}

// parseRDB reads the USGS tab-separated rdb format: comment lines start
// with '#', then a header row, then a column-width row, then data rows.
func parseRDB(r io.Reader) (map[string]Site, error) {
	sites := make(map[string]Site)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	idIdx, nameIdx, contribIdx, totalIdx := -1, -1, -1, -1
	headerSeen := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")

		if !headerSeen {
			for i, name := range fields {
				switch name {
				case "site_no":
					idIdx = i
				case "station_nm":
					nameIdx = i
				case "contrib_drain_area_va":
					contribIdx = i
				case "drain_area_va":
					totalIdx = i
				}
			}
			if idIdx == -1 || nameIdx == -1 {
				return nil, fmt.Errorf("malformed rdb header: %q", line)
			}
			headerSeen = true
			continue
		}

		// The row after the header gives column widths (e.g. "15s"); data
		// rows for stream sites start with the agency code.
		if !strings.HasPrefix(fields[0], "USGS") {
			continue
		}
		if len(fields) <= idIdx || len(fields) <= nameIdx {
			continue
		}

		site := Site{ID: fields[idIdx], Name: fields[nameIdx]}
		// Contributing drainage area when reported, else total.
		site.BasinArea = fieldFloat(fields, contribIdx)
		if site.BasinArea == nil {
			site.BasinArea = fieldFloat(fields, totalIdx)
		}
		sites[site.ID] = site
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rdb response: %w", err)
	}
	return sites, nil
}

// fieldFloat parses fields[idx] as a float, returning nil for a missing
// column or a blank/unparseable value.
func fieldFloat(fields []string, idx int) *float64 {
	if idx == -1 || len(fields) <= idx {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[idx]), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ValidSiteID reports whether a station id is a plausible USGS site number:
// at least eight characters, all numeric. Shorter or alphabetic ids belong
// to other agencies and are skipped.
func ValidSiteID(id string) bool {
	if len(id) < 8 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
