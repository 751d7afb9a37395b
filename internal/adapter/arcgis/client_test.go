package arcgis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAdminServer fakes the admin REST surface: generateToken, a service
// listing, and stop/start endpoints. It records control actions.
func newAdminServer(t *testing.T, actions *[]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/admin/generateToken", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("username") != "siteadmin" || r.Form.Get("password") != "hunter2" {
			json.NewEncoder(w).Encode(map[string]any{
				"status": "error", "messages": []string{"invalid credentials"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token":   "tok-123",
			"expires": time.Now().Add(15 * time.Minute).UnixMilli(),
		})
	})

	mux.HandleFunc("/admin/services", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-123", r.URL.Query().Get("token"))
		json.NewEncoder(w).Encode(map[string]any{
			"services": []map[string]string{
				{"serviceName": "stations_SNTL_ALL", "type": "MapServer"},
				{"serviceName": "stations_SNTL_ACTIVE", "type": "MapServer"},
				{"serviceName": "stations_SNTL_INACTIVE", "type": "MapServer"},
				{"serviceName": "stations_SNOW_ACTIVE", "type": "MapServer"},
				{"serviceName": "stations_SNTL_backup", "type": "MapServer"},
				{"serviceName": "basemap", "type": "MapServer"},
			},
		})
	})

	mux.HandleFunc("/admin/services/", func(w http.ResponseWriter, r *http.Request) {
		if actions != nil {
			*actions = append(*actions, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	})

	return httptest.NewServer(mux)
}

func newTestClient(srvURL string) *Client {
	return NewClient(srvURL+"/admin", "siteadmin", "hunter2", 5*time.Second, slog.Default())
}

func TestListServices_FiltersByNetwork(t *testing.T) {
	srv := newAdminServer(t, nil)
	defer srv.Close()

	client := newTestClient(srv.URL)
	services, err := client.ListServices(context.Background(), "SNTL")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"stations_SNTL_ALL.MapServer",
		"stations_SNTL_ACTIVE.MapServer",
		"stations_SNTL_INACTIVE.MapServer",
	}, services)
}

func TestListServices_NoServicesForNetwork(t *testing.T) {
	srv := newAdminServer(t, nil)
	defer srv.Close()

	client := newTestClient(srv.URL)
	services, err := client.ListServices(context.Background(), "MPRC")
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestStopStart(t *testing.T) {
	var actions []string
	srv := newAdminServer(t, &actions)
	defer srv.Close()

	client := newTestClient(srv.URL)
	ctx := context.Background()

	require.NoError(t, client.Stop(ctx, "stations_SNTL_ACTIVE.MapServer"))
	require.NoError(t, client.Start(ctx, "stations_SNTL_ACTIVE.MapServer"))

	assert.Equal(t, []string{
		"/admin/services/stations_SNTL_ACTIVE.MapServer/stop",
		"/admin/services/stations_SNTL_ACTIVE.MapServer/start",
	}, actions)
}

func TestStop_ReportsAPIFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/generateToken", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-123", "expires": time.Now().Add(time.Hour).UnixMilli(),
		})
	})
	mux.HandleFunc("/admin/services/", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "error", "messages": []string{"service not found"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL+"/admin", "siteadmin", "hunter2", 5*time.Second, slog.Default())
	err := client.Stop(context.Background(), "stations_SNTL_ACTIVE.MapServer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service not found")
}

func TestEnsureToken_BadCredentials(t *testing.T) {
	srv := newAdminServer(t, nil)
	defer srv.Close()

	client := NewClient(srv.URL+"/admin", "siteadmin", "wrong", 5*time.Second, slog.Default())
	_, err := client.ListServices(context.Background(), "SNTL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestEnsureToken_Cached(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/generateToken", func(w http.ResponseWriter, _ *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-123", "expires": time.Now().Add(time.Hour).UnixMilli(),
		})
	})
	mux.HandleFunc("/admin/services", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"services":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL+"/admin", "siteadmin", "hunter2", 5*time.Second, slog.Default())
	ctx := context.Background()
	_, err := client.ListServices(ctx, "SNTL")
	require.NoError(t, err)
	_, err = client.ListServices(ctx, "SNOW")
	require.NoError(t, err)

	assert.Equal(t, 1, tokenCalls)
}
