// Package metrics exposes Prometheus collectors for downloads and
// extractions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks transfer and extraction activity.
//
// All metrics use the rshop_ prefix. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	// DownloadsTotal counts finished downloads by terminal status
	DownloadsTotal *prometheus.CounterVec

	// DownloadedBytes counts bytes written by downloads of any outcome
	DownloadedBytes prometheus.Counter

	// DownloadDuration tracks wall-clock time per download
	DownloadDuration prometheus.Histogram

	// ActiveDownloads is the number of registered transfers
	ActiveDownloads prometheus.Gauge

	// ExtractionsTotal counts finished extractions by final state
	ExtractionsTotal *prometheus.CounterVec

	// ExtractedBytes counts bytes written by extractions
	ExtractedBytes prometheus.Counter

	// RemoteOpsTotal counts browse operations by operation and error kind
	RemoteOpsTotal *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rshop_downloads_total",
				Help: "Finished downloads by terminal status",
			},
			[]string{"status"}, // "complete", "cancelled", "error"
		),
		DownloadedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rshop_downloaded_bytes_total",
				Help: "Bytes written to local storage by downloads",
			},
		),
		DownloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rshop_download_duration_seconds",
				Help:    "Download duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
		ActiveDownloads: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rshop_active_downloads",
				Help: "Downloads currently registered",
			},
		),
		ExtractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rshop_extractions_total",
				Help: "Finished extractions by final state",
			},
			[]string{"state"},
		),
		ExtractedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rshop_extracted_bytes_total",
				Help: "Decompressed bytes written by extractions",
			},
		),
		RemoteOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rshop_remote_operations_total",
				Help: "Browse operations by operation and result",
			},
			[]string{"operation", "result"},
		),
	}

	m.registry.MustRegister(
		m.DownloadsTotal,
		m.DownloadedBytes,
		m.DownloadDuration,
		m.ActiveDownloads,
		m.ExtractionsTotal,
		m.ExtractedBytes,
		m.RemoteOpsTotal,
	)
	return m
}

// DownloadStarted increments the active gauge.
func (m *Metrics) DownloadStarted() {
	if m == nil {
		return
	}
	m.ActiveDownloads.Inc()
}

// DownloadFinished records a terminal download.
func (m *Metrics) DownloadFinished(status string, bytes int64, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ActiveDownloads.Dec()
	m.DownloadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.DownloadedBytes.Add(float64(bytes))
	}
	m.DownloadDuration.Observe(durationSeconds)
}

// ExtractionFinished records a finished extraction.
func (m *Metrics) ExtractionFinished(state string, bytes int64) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(state).Inc()
	if bytes > 0 {
		m.ExtractedBytes.Add(float64(bytes))
	}
}

// RemoteOp records a browse operation. result is "ok" or an error kind.
func (m *Metrics) RemoteOp(operation, result string) {
	if m == nil {
		return
	}
	m.RemoteOpsTotal.WithLabelValues(operation, result).Inc()
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
