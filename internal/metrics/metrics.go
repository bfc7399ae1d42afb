// Package metrics registers the Prometheus collectors the hub and
// store increment as they process frames. Generalized from the
// teacher's setupMetrics/metricsRegistry wiring, which declared a
// registry but never populated it; here every counter is actually
// incremented on the path it names.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ConnectionsTotal counts WebSocket connections accepted.
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geotracker_connections_total",
		Help: "Total WebSocket connections accepted by the hub.",
	})

	// IngestFramesTotal counts telemetry frames that passed schema
	// validation and entered the ingestion pipeline.
	IngestFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geotracker_ingest_frames_total",
		Help: "Total telemetry frames accepted into the ingestion pipeline.",
	})

	// InvalidCoordinatesTotal counts points rejected by the coordinate
	// gate.
	InvalidCoordinatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geotracker_invalid_coordinates_total",
		Help: "Total points classified invalid by the coordinate gate.",
	})

	// ResetsTotal counts reset-detector triggers.
	ResetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geotracker_session_resets_total",
		Help: "Total session id rewrites performed by the reset detector.",
	})

	// StoreFailuresTotal counts ingest-path store write failures.
	StoreFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geotracker_store_failures_total",
		Help: "Total store write failures on the ingest path (non-fatal).",
	})

	// RetentionSweepsTotal counts retention sweeper ticks.
	RetentionSweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geotracker_retention_sweeps_total",
		Help: "Total retention sweeper ticks executed.",
	})

	// DuplicateRefusalsTotal counts bulk uploads refused as duplicates.
	DuplicateRefusalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geotracker_duplicate_refusals_total",
		Help: "Total bulk uploads refused by the duplicate detector.",
	})
)

// MustRegister registers every collector with reg. Call once at
// startup; reg is typically prometheus.NewRegistry() so tests can use
// an isolated registry instead of the global default.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		ConnectionsTotal,
		IngestFramesTotal,
		InvalidCoordinatesTotal,
		ResetsTotal,
		StoreFailuresTotal,
		RetentionSweepsTotal,
		DuplicateRefusalsTotal,
	)
}
