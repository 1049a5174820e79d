package counting

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated by sessions. One Metrics
// may be shared by many sessions; only counters and histograms are used so
// concurrent sessions add up rather than overwrite each other.
type Metrics struct {
	CrossingsTotal      *prometheus.CounterVec
	DetectionsTotal     prometheus.Counter
	RejectedTotal       prometheus.Counter
	DeferredTotal       prometheus.Counter
	TracksCreatedTotal  prometheus.Counter
	TracksEvictedTotal  prometheus.Counter
	CrossingDwellFrames *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CrossingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lanecount",
			Subsystem: "engine",
			Name:      "crossings_total",
			Help:      "Vehicles counted at the line, by lane, class and confirming method.",
		}, []string{"lane", "class", "method"}),
		DetectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lanecount",
			Subsystem: "engine",
			Name:      "detections_total",
			Help:      "Detections applied to track state.",
		}),
		RejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lanecount",
			Subsystem: "engine",
			Name:      "rejected_detections_total",
			Help:      "Detections quarantined because they failed validation or arrived out of order.",
		}),
		DeferredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lanecount",
			Subsystem: "engine",
			Name:      "deferred_crossings_total",
			Help:      "Confirmed crossings not counted because the track had no resolvable class.",
		}),
		TracksCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lanecount",
			Subsystem: "engine",
			Name:      "tracks_created_total",
			Help:      "Tracks created on first sighting.",
		}),
		TracksEvictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lanecount",
			Subsystem: "engine",
			Name:      "tracks_evicted_total",
			Help:      "Stale tracks removed by the lifecycle sweep.",
		}),
		CrossingDwellFrames: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lanecount",
			Subsystem: "engine",
			Name:      "crossing_dwell_frames",
			Help:      "Frames between first sighting and counting of a vehicle.",
			Buckets:   prometheus.ExponentialBuckets(2, 2, 9),
		}, []string{"lane"}),
	}

	reg.MustRegister(m.CrossingsTotal)
	reg.MustRegister(m.DetectionsTotal)
	reg.MustRegister(m.RejectedTotal)
	reg.MustRegister(m.DeferredTotal)
	reg.MustRegister(m.TracksCreatedTotal)
	reg.MustRegister(m.TracksEvictedTotal)
	reg.MustRegister(m.CrossingDwellFrames)
	return m
}

// The record helpers accept a nil receiver so sessions without metrics need
// no checks.

func (m *Metrics) recordCrossing(ev CrossingEvent) {
	if m == nil {
		return
	}
	m.CrossingsTotal.WithLabelValues(string(ev.Lane), string(ev.Class), string(ev.Method)).Inc()
	m.CrossingDwellFrames.WithLabelValues(string(ev.Lane)).Observe(float64(ev.DwellFrames))
}

func (m *Metrics) recordDetection() {
	if m != nil {
		m.DetectionsTotal.Inc()
	}
}

func (m *Metrics) recordRejected() {
	if m != nil {
		m.RejectedTotal.Inc()
	}
}

func (m *Metrics) recordDeferred() {
	if m != nil {
		m.DeferredTotal.Inc()
	}
}

func (m *Metrics) recordTrackCreated() {
	if m != nil {
		m.TracksCreatedTotal.Inc()
	}
}

func (m *Metrics) recordEvicted(n int) {
	if m != nil && n > 0 {
		m.TracksEvictedTotal.Add(float64(n))
	}
}
