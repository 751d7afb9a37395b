// Package arcgis talks to the map server's admin REST API to stop and start
// the published services that read the feature tables. The underlying store
// holds table-level locks while a service is running, so services must be
// offline for the duration of a write.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// A network's services are named stations_<network>_<suffix>.
var serviceSuffixes = []string{"ALL", "ACTIVE", "INACTIVE"}

// Client administers published map services.
type Client struct {
	adminURL   string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger

	token        string
	tokenExpires time.Time
}

// NewClient creates an admin client. adminURL is the server's admin root,
// e.g. "https://gis.example.org:6443/arcgis/admin".
func NewClient(adminURL, username, password string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		adminURL: strings.TrimRight(adminURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ListServices returns the names of the published services that read a
// network's feature table. A network with no published services yields an
// empty list, not an error.
func (c *Client) ListServices(ctx context.Context, network string) ([]string, error) {
	var listing struct {
		Services []struct {
			ServiceName string `json:"serviceName"`
			Type        string `json:"type"`
		} `json:"services"`
	}
	if err := c.do(ctx, "services", nil, &listing); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	prefix := "stations_" + network + "_"
	var names []string
	for _, svc := range listing.Services {
		if strings.HasPrefix(svc.ServiceName, prefix) && hasKnownSuffix(svc.ServiceName, prefix) {
			names = append(names, svc.ServiceName+"."+svc.Type)
		}
	}
	return names, nil
}

// Stop takes a published service offline, releasing its table locks.
func (c *Client) Stop(ctx context.Context, service string) error {
	return c.control(ctx, service, "stop")
}

// Start brings a published service back online.
func (c *Client) Start(ctx context.Context, service string) error {
	return c.control(ctx, service, "start")
}

func (c *Client) control(ctx context.Context, service, action string) error {
	var result struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, "services/"+service+"/"+action, url.Values{}, &result); err != nil {
		return fmt.Errorf("%s service %s: %w", action, service, err)
	}
	if result.Status != "success" {
		return fmt.Errorf("%s service %s: status %q", action, service, result.Status)
	}
	c.logger.Info("service "+action, "service", service)
	return nil
}

// do issues one admin request with a valid token, decoding the JSON response
// into out. A nil form means GET; a non-nil form means POST.
func (c *Client) do(ctx context.Context, path string, form url.Values, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	endpoint := c.adminURL + "/" + path
	var req *http.Request
	if form == nil {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet,
			endpoint+"?"+url.Values{"f": {"json"}, "token": {token}}.Encode(), nil)
	} else {
		form.Set("f", "json")
		form.Set("token", token)
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
			strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("admin request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin API error: status %d: %s", resp.StatusCode, data)
	}

	// The admin API reports failures inside a 200 body.
	var apiErr struct {
		Status   string   `json:"status"`
		Messages []string `json:"messages"`
	}
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Status == "error" {
		return fmt.Errorf("admin API error: %s", strings.Join(apiErr.Messages, "; "))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ensureToken fetches an admin token, reusing a cached one until shortly
// before it expires.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	if c.token != "" && time.Now().Before(c.tokenExpires.Add(-time.Minute)) {
		return c.token, nil
	}

	form := url.Values{
		"username":   {c.username},
		"password":   {c.password},
		"client":     {"requestip"},
		"f":          {"json"},
		"expiration": {"15"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.adminURL+"/generateToken", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Token   string `json:"token"`
		Expires int64  `json:"expires"` // unix millis
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if result.Token == "" {
		return "", fmt.Errorf("generate token: empty token (check credentials)")
	}

	c.token = result.Token
	c.tokenExpires = time.UnixMilli(result.Expires)
	return c.token, nil
}

func hasKnownSuffix(name, prefix string) bool {
	rest := strings.TrimPrefix(name, prefix)
	for _, suffix := range serviceSuffixes {
		if rest == suffix {
			return true
		}
	}
	return false
}
