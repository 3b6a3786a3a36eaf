// Package metrics holds the planetview Prometheus collectors.
//
// The collectors are registered with the default registry on package load.
// The Observe* helpers match the hook signatures of the library packages so
// they can be passed straight to the catalog, frame, layer and mask options.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "planetview"

var (
	// FrameTicks counts frame loop ticks.
	FrameTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_ticks_total",
			Help:      "Total number of frame loop ticks",
		},
	)

	// FrameCallbacks counts frame callbacks run by the loop.
	FrameCallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_callbacks_total",
			Help:      "Total number of frame callbacks run",
		},
	)

	// TickDuration tracks how long each tick took.
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_tick_duration_seconds",
			Help:      "Duration of frame loop ticks in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167, 0.033, 0.1},
		},
	)

	// MaskFrames counts mask frames submitted to the GPU.
	MaskFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mask_frames_total",
			Help:      "Total number of cursor mask frames rendered",
		},
	)

	// MaskFailures counts mask programs that could not be created.
	MaskFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mask_failures_total",
			Help:      "Total number of cursor mask setup failures",
		},
	)

	// LayerInstalls counts overlay source and layer installs.
	LayerInstalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_installs_total",
			Help:      "Total number of overlay layer installs",
		},
	)

	// LayerRemovals counts overlay source and layer removals.
	LayerRemovals = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_removals_total",
			Help:      "Total number of overlay layer removals",
		},
	)

	// Markers is the number of POI markers in the current view.
	Markers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "markers",
			Help:      "Current number of POI markers",
		},
	)

	// CatalogLoadDuration tracks catalog index loads.
	CatalogLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_load_duration_seconds",
			Help:      "Duration of catalog index loads in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"index", "result"},
	)

	// WebSocketClients is the number of connected state stream clients.
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Current number of websocket clients",
		},
	)

	// Notifications counts user-visible notifications by level.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of notifications raised by the view",
		},
		[]string{"level"},
	)
)

// ObserveTick records one frame loop tick.
func ObserveTick(frames int, elapsed time.Duration) {
	FrameTicks.Inc()
	FrameCallbacks.Add(float64(frames))
	TickDuration.Observe(elapsed.Seconds())
}

// ObserveCatalogLoad records one catalog index load.
func ObserveCatalogLoad(index string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CatalogLoadDuration.WithLabelValues(index, result).Observe(elapsed.Seconds())
}

// ObserveLayerInstall records an overlay layer install.
func ObserveLayerInstall(string) { LayerInstalls.Inc() }

// ObserveLayerRemoval records an overlay layer removal.
func ObserveLayerRemoval() { LayerRemovals.Inc() }

// ObserveMaskFrame records a rendered mask frame.
func ObserveMaskFrame() { MaskFrames.Inc() }
