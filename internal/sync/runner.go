// Package sync orchestrates one reconciliation pass: fetch each network's
// station set from the remote metadata service, diff it against the spatial
// store, and apply the changes with the dependent map services held stopped
// around the write.
package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/cascadia-gis/awdb-station-sync/internal/domain"
	"github.com/cascadia-gis/awdb-station-sync/internal/observability"
)

// StationFetcher reads the full station set for a network from the remote
// metadata service.
type StationFetcher interface {
	FetchStations(ctx context.Context, network string) ([]domain.Station, error)
}

// Enricher augments fetched stations with attributes from a secondary source.
type Enricher interface {
	Enrich(ctx context.Context, network string, stations []domain.Station) ([]domain.Station, error)
}

// StationStore reads and writes the per-network station tables.
type StationStore interface {
	EnsureNetworkTable(ctx context.Context, network string) error
	FetchStations(ctx context.Context, network string) (map[string]domain.Station, error)
	Apply(ctx context.Context, network string, cs domain.ChangeSet) error
}

// ServiceController manages the published map services that hold locks on a
// network's table.
type ServiceController interface {
	ListServices(ctx context.Context, network string) ([]string, error)
	Stop(ctx context.Context, service string) error
	Start(ctx context.Context, service string) error
}

// Notifier publishes applied changes to downstream consumers.
type Notifier interface {
	PublishChanges(ctx context.Context, network string, cs domain.ChangeSet) error
}

// Archiver writes a dated snapshot of a network's station set.
type Archiver interface {
	Snapshot(network string, stations []domain.Station) (string, error)
}

// State identifies where a network's sync pass is, or where it ended.
type State string

const (
	StateIdle              State = "IDLE"
	StateFetching          State = "FETCHING"
	StateFetchFailed       State = "FETCH_FAILED"
	StateFetched           State = "FETCHED"
	StateServicesStopped   State = "SERVICES_STOPPED"
	StateWriting           State = "WRITING"
	StateWriteFailed       State = "WRITE_FAILED"
	StateWritten           State = "WRITTEN"
	StateServicesRestarted State = "SERVICES_RESTARTED"
	StateDone              State = "DONE"
)

// Result records the outcome of one network's pass.
type Result struct {
	Network  string
	State    State
	Fetched  int
	Inserted int
	Updated  int
	Err      error
}

// Failed reports whether the pass ended short of DONE.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Summary aggregates the per-network results of a full pass.
type Summary struct {
	Results []Result
}

// Failed counts the networks whose pass did not complete.
func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Runner executes the sync pass. Enricher, services, notifier, and archiver
// are optional; a nil value skips that stage.
type Runner struct {
	fetcher  StationFetcher
	enricher Enricher
	store    StationStore
	services ServiceController
	notifier Notifier
	archiver Archiver
	logger   *slog.Logger
	metrics  *observability.Metrics

	retryCount   int
	retryBackoff time.Duration
	maxBackoff   time.Duration
}

// New creates a Runner. retryCount is the number of fetch retries after the
// first attempt.
func New(fetcher StationFetcher, enricher Enricher, store StationStore, services ServiceController, notifier Notifier, archiver Archiver, logger *slog.Logger, metrics *observability.Metrics, retryCount int) *Runner {
	if retryCount < 0 {
		retryCount = 0
	}
	return &Runner{
		fetcher:      fetcher,
		enricher:     enricher,
		store:        store,
		services:     services,
		notifier:     notifier,
		archiver:     archiver,
		logger:       logger,
		metrics:      metrics,
		retryCount:   retryCount,
		retryBackoff: 2 * time.Second,
		maxBackoff:   30 * time.Second,
	}
}

// Run syncs each network in order and returns the per-network results.
// Networks are independent: a failure in one never blocks the rest.
func (r *Runner) Run(ctx context.Context, networks []string) Summary {
	r.logger.Info("sync pass started", "networks", len(networks))

	summary := Summary{Results: make([]Result, 0, len(networks))}
	for _, network := range networks {
		if ctx.Err() != nil {
			r.logger.Info("sync pass stopping", "reason", ctx.Err())
			break
		}

		start := time.Now()
		res := r.syncNetwork(ctx, network)
		r.metrics.NetworkDuration.WithLabelValues(network).Observe(time.Since(start).Seconds())

		if res.Failed() {
			r.logger.Error("network sync failed",
				"network", network, "state", string(res.State), "error", res.Err)
		} else {
			r.logger.Info("network sync complete",
				"network", network,
				"fetched", res.Fetched,
				"inserted", res.Inserted,
				"updated", res.Updated,
			)
		}
		summary.Results = append(summary.Results, res)
	}

	r.metrics.LastRunTimestamp.SetToCurrentTime()
	r.logger.Info("sync pass finished",
		"networks", len(summary.Results), "failed", summary.Failed())
	return summary
}

// syncNetwork runs the state machine for one network.
func (r *Runner) syncNetwork(ctx context.Context, network string) Result {
	res := Result{Network: network, State: StateFetching}

	fetched, err := r.fetchWithRetry(ctx, network)
	if err != nil {
		res.State = StateFetchFailed
		res.Err = err
		r.metrics.NetworkFailures.WithLabelValues(network, "fetch").Inc()
		return res
	}
	res.Fetched = len(fetched)
	r.metrics.StationsFetched.WithLabelValues(network).Add(float64(len(fetched)))

	if r.enricher != nil {
		enriched, err := r.enricher.Enrich(ctx, network, fetched)
		if err != nil {
			// Enrichment attributes are best-effort; sync the bare set.
			r.logger.Warn("enrichment failed, continuing without",
				"network", network, "error", err)
		} else {
			fetched = enriched
		}
	}
	res.State = StateFetched

	stored, err := r.store.FetchStations(ctx, network)
	if err != nil {
		res.State = StateWriteFailed
		res.Err = err
		r.metrics.NetworkFailures.WithLabelValues(network, "write").Inc()
		return res
	}

	cs := domain.Diff(fetched, stored)
	if cs.Empty() {
		r.logger.Info("no changes", "network", network, "stations", len(fetched))
		res.State = StateDone
		return res
	}

	services := r.stopServices(ctx, network)
	res.State = StateServicesStopped

	res.State = StateWriting
	writeErr := r.write(ctx, network, cs)
	if writeErr != nil {
		res.State = StateWriteFailed
		res.Err = writeErr
		r.metrics.NetworkFailures.WithLabelValues(network, "write").Inc()
	} else {
		res.State = StateWritten
		res.Inserted = len(cs.Inserts)
		res.Updated = len(cs.Updates)
		r.metrics.StationsInserted.WithLabelValues(network).Add(float64(len(cs.Inserts)))
		r.metrics.StationsUpdated.WithLabelValues(network).Add(float64(len(cs.Updates)))

		r.snapshot(network, fetched)
		r.notify(ctx, network, cs)
	}

	// Services restart no matter how the write went. A stopped map service
	// is a worse outage than one stale table.
	r.startServices(ctx, network, services)
	if r.services != nil {
		res.State = StateServicesRestarted
	}

	if res.Err == nil {
		res.State = StateDone
	}
	return res
}

// fetchWithRetry calls the remote fetcher up to retryCount+1 times with
// capped exponential backoff between attempts.
func (r *Runner) fetchWithRetry(ctx context.Context, network string) ([]domain.Station, error) {
	backoff := r.retryBackoff

	var lastErr error
	for attempt := 0; attempt <= r.retryCount; attempt++ {
		if attempt > 0 {
			r.metrics.FetchRetries.WithLabelValues(network).Inc()
			r.logger.Warn("retrying fetch",
				"network", network, "attempt", attempt+1, "error", lastErr)
			if !sleepWithContext(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff = nextBackoff(backoff, r.maxBackoff)
		}

		stations, err := r.fetcher.FetchStations(ctx, network)
		if err == nil {
			return stations, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// write creates the network table if needed and applies the change set.
func (r *Runner) write(ctx context.Context, network string, cs domain.ChangeSet) error {
	if err := r.store.EnsureNetworkTable(ctx, network); err != nil {
		return err
	}
	return r.store.Apply(ctx, network, cs)
}

// stopServices stops every dependent service and returns the list so the
// caller can restart them. A failed stop is logged and left to the write to
// surface as a lock conflict.
func (r *Runner) stopServices(ctx context.Context, network string) []string {
	if r.services == nil {
		return nil
	}

	services, err := r.services.ListServices(ctx, network)
	if err != nil {
		r.logger.Warn("listing services failed", "network", network, "error", err)
		return nil
	}

	for _, svc := range services {
		if err := r.services.Stop(ctx, svc); err != nil {
			r.logger.Warn("stopping service failed", "service", svc, "error", err)
			r.metrics.ServiceActions.WithLabelValues("stop", "error").Inc()
			continue
		}
		r.metrics.ServiceActions.WithLabelValues("stop", "success").Inc()
	}
	return services
}

func (r *Runner) startServices(ctx context.Context, network string, services []string) {
	for _, svc := range services {
		if err := r.services.Start(ctx, svc); err != nil {
			r.logger.Error("restarting service failed",
				"network", network, "service", svc, "error", err)
			r.metrics.ServiceActions.WithLabelValues("start", "error").Inc()
			continue
		}
		r.metrics.ServiceActions.WithLabelValues("start", "success").Inc()
	}
}

func (r *Runner) snapshot(network string, stations []domain.Station) {
	if r.archiver == nil {
		return
	}
	path, err := r.archiver.Snapshot(network, stations)
	if err != nil {
		r.logger.Warn("archiving snapshot failed", "network", network, "error", err)
		return
	}
	r.logger.Info("snapshot archived", "network", network, "path", path)
}

func (r *Runner) notify(ctx context.Context, network string, cs domain.ChangeSet) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.PublishChanges(ctx, network, cs); err != nil {
		r.logger.Warn("publishing changes failed", "network", network, "error", err)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
