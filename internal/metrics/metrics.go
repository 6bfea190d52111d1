// Package metrics exposes Prometheus counters for the sync engine. A
// Collector owns its own registry so tests can create isolated instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the engine's Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	SyncRuns       *prometheus.CounterVec
	FilesProcessed *prometheus.CounterVec
	ProviderErrors *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec
}

// New creates a Collector with a fresh registry including the standard Go
// runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: reg,
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oneclouds_sync_runs_total",
			Help: "Sync runs by provider and final status.",
		}, []string{"provider", "status"}),
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oneclouds_files_processed_total",
			Help: "Remote files observed during reconciliation.",
		}, []string{"provider"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oneclouds_provider_errors_total",
			Help: "Classified provider call failures.",
		}, []string{"provider", "class"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oneclouds_sync_duration_seconds",
			Help:    "Wall-clock duration of sync runs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"provider"}),
	}

	reg.MustRegister(
		c.SyncRuns,
		c.FilesProcessed,
		c.ProviderErrors,
		c.SyncDuration,
	)

	return c
}

// Handler returns the HTTP handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
