package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the sync
// job. Metrics register against a private registry so a run can push its
// final values to a Pushgateway without dragging along process collectors.
type Metrics struct {
	registry *prometheus.Registry

	StationsFetched  *prometheus.CounterVec // labels: network
	StationsInserted *prometheus.CounterVec // labels: network
	StationsUpdated  *prometheus.CounterVec // labels: network
	FetchRetries     *prometheus.CounterVec // labels: network
	NetworkFailures  *prometheus.CounterVec // labels: network, stage={fetch,write}
	NetworkDuration  *prometheus.HistogramVec

	// Service guard metrics.
	ServiceActions *prometheus.CounterVec // labels: action={stop,start}, outcome={success,error}

	LastRunTimestamp prometheus.Gauge
}

// NewMetrics creates all sync metrics registered on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StationsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awdb_sync",
			Name:      "stations_fetched_total",
			Help:      "Stations returned by the remote metadata service per network.",
		}, []string{"network"}),
		StationsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awdb_sync",
			Name:      "stations_inserted_total",
			Help:      "New station rows written per network.",
		}, []string{"network"}),
		StationsUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awdb_sync",
			Name:      "stations_updated_total",
			Help:      "Changed station rows written per network.",
		}, []string{"network"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awdb_sync",
			Name:      "fetch_retries_total",
			Help:      "Remote fetch attempts beyond the first, per network.",
		}, []string{"network"}),
		NetworkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awdb_sync",
			Name:      "network_failures_total",
			Help:      "Networks that failed a sync pass, by stage.",
		}, []string{"network", "stage"}),
		NetworkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "awdb_sync",
			Name:      "network_duration_seconds",
			Help:      "Duration of a complete fetch-diff-write cycle per network.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"network"}),
		ServiceActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awdb_sync",
			Name:      "service_actions_total",
			Help:      "Dependent map service stop and start operations by outcome.",
		}, []string{"action", "outcome"}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "awdb_sync",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed sync pass.",
		}),
	}

	m.registry.MustRegister(
		m.StationsFetched,
		m.StationsInserted,
		m.StationsUpdated,
		m.FetchRetries,
		m.NetworkFailures,
		m.NetworkDuration,
		m.ServiceActions,
		m.LastRunTimestamp,
	)

	return m
}

// NewMetricsForTesting creates Metrics without help text. Each call gets its
// own registry, so parallel tests never collide.
func NewMetricsForTesting() *Metrics {
	return NewMetrics()
}

// Push sends the current metric values to a Pushgateway, grouped under the
// given job name. Called once at the end of a run.
func (m *Metrics) Push(gatewayURL, job string) error {
	return push.New(gatewayURL, job).Gatherer(m.registry).Push()
}
