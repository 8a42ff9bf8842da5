package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"

	"asciimap/internal/tile"
)

// Metrics are the fetcher's Prometheus collectors.
type Metrics struct {
	loaded         *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
	notFound       *prometheus.CounterVec
	scans          prometheus.Counter
	aborted        prometheus.Counter
	scanDuration   prometheus.Histogram
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asciimap",
			Name:      "tiles_loaded_total",
			Help:      "Tiles inserted into the tile cache, by kind and origin.",
		}, []string{"kind", "origin"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asciimap",
			Name:      "tile_decode_failures_total",
			Help:      "Tiles dropped because their payload could not be decoded.",
		}, []string{"kind"}),
		notFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asciimap",
			Name:      "tiles_not_found_total",
			Help:      "Tiles the upstream source does not have.",
		}, []string{"kind"}),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asciimap",
			Name:      "fetch_scans_total",
			Help:      "Neighbor scans started.",
		}),
		aborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asciimap",
			Name:      "fetch_scans_aborted_total",
			Help:      "Scans abandoned because the zoom level changed.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "asciimap",
			Name:      "fetch_scan_duration_seconds",
			Help:      "Time spent in one neighbor scan.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.loaded, m.decodeFailures, m.notFound, m.scans, m.aborted, m.scanDuration)
	}
	return m
}

func (m *Metrics) tileLoaded(kind tile.Kind, origin string) {
	m.loaded.WithLabelValues(kind.String(), origin).Inc()
}

func (m *Metrics) decodeFailed(kind tile.Kind) {
	m.decodeFailures.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) tileNotFound(kind tile.Kind) {
	m.notFound.WithLabelValues(kind.String()).Inc()
}
