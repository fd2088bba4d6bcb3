// Package metrics provides Prometheus metrics for guarded runs.
//
// lockrun is short-lived, so metrics are not served over HTTP. Each
// invocation writes its registry to a node_exporter textfile-collector file.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Acquisition results.
const (
	ResultAcquired = "acquired"
	ResultDenied   = "denied"
	ResultError    = "error"
)

// IdentityPlaceholder in a textfile path is replaced by the lock identity.
const IdentityPlaceholder = "{identity}"

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	acquisitions    *prometheus.CounterVec
	staleRecoveries *prometheus.CounterVec
	releaseFailures *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	lastRun         *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		acquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockrun_acquisitions_total",
				Help: "Lock acquisition attempts by identity and result",
			},
			[]string{"identity", "result"},
		),
		staleRecoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockrun_stale_recoveries_total",
				Help: "Stale lock files removed before acquisition",
			},
			[]string{"identity"},
		),
		releaseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockrun_release_failures_total",
				Help: "Lock releases that failed after the action finished",
			},
			[]string{"identity"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lockrun_run_duration_seconds",
				Help:    "Duration of guarded actions in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"identity"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lockrun_last_run_timestamp_seconds",
				Help: "Unix time a guarded action last finished, by outcome",
			},
			[]string{"identity", "status"},
		),
	}
	m.registry.MustRegister(m.acquisitions, m.staleRecoveries, m.releaseFailures, m.runDuration, m.lastRun)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAcquisition counts an acquisition attempt.
func (m *Metrics) RecordAcquisition(identity, result string) {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues(identity, result).Inc()
}

// RecordStaleRecovery counts a removed stale lock file.
func (m *Metrics) RecordStaleRecovery(identity string) {
	if m == nil {
		return
	}
	m.staleRecoveries.WithLabelValues(identity).Inc()
}

// RecordReleaseFailure counts a failed release.
func (m *Metrics) RecordReleaseFailure(identity string) {
	if m == nil {
		return
	}
	m.releaseFailures.WithLabelValues(identity).Inc()
}

// ObserveRun records a finished action.
func (m *Metrics) ObserveRun(identity string, d time.Duration, succeeded bool, finished time.Time) {
	if m == nil {
		return
	}
	status := "ok"
	if !succeeded {
		status = "failed"
	}
	m.runDuration.WithLabelValues(identity).Observe(d.Seconds())
	m.lastRun.WithLabelValues(identity, status).Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry to path atomically, replacing
// IdentityPlaceholder with identity first.
func (m *Metrics) WriteTextfile(path, identity string) error {
	if m == nil || path == "" {
		return nil
	}
	path = TextfilePath(path, identity)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil { //nolint:gosec // G301 - textfile collector must be able to read it
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// TextfilePath expands IdentityPlaceholder in path.
func TextfilePath(path, identity string) string {
	return strings.ReplaceAll(path, IdentityPlaceholder, identity)
}
