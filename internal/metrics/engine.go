package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	engineInitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwt_engine_inits_total",
			Help: "Engine initializations by initializer variant.",
		},
		[]string{"variant"},
	)

	engineReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wwt_engine_ready",
		Help: "1 when the active engine has finished initialization.",
	})

	framesRenderedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wwt_frames_rendered_total",
		Help: "Frames handed to the renderer.",
	})

	renderErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wwt_render_errors_total",
		Help: "Frames the renderer failed to draw.",
	})

	frameDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wwt_frame_duration_seconds",
		Help:    "Time to advance and render one frame.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	navigationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwt_navigations_total",
			Help: "Navigation commands by outcome (instant, animated, superseded, arrived).",
		},
		[]string{"outcome"},
	)

	trackingActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wwt_tracking_active",
		Help: "1 when the view is following a tracking target.",
	})

	clockRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wwt_clock_time_rate",
		Help: "Simulated clock rate factor.",
	})

	clockSynced = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wwt_clock_synced",
		Help: "1 when the simulated clock advances with the system clock.",
	})

	eventsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwt_events_delivered_total",
			Help: "Callback invocations by event kind.",
		},
		[]string{"kind"},
	)

	eventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwt_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(engineInitsTotal)
	prometheus.MustRegister(engineReady)
	prometheus.MustRegister(framesRenderedTotal)
	prometheus.MustRegister(renderErrorsTotal)
	prometheus.MustRegister(frameDurationSeconds)
	prometheus.MustRegister(navigationsTotal)
	prometheus.MustRegister(trackingActive)
	prometheus.MustRegister(clockRate)
	prometheus.MustRegister(clockSynced)
	prometheus.MustRegister(eventsDeliveredTotal)
	prometheus.MustRegister(eventsDroppedTotal)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// IncEngineInits counts an initializer call.
func IncEngineInits(variant string) { engineInitsTotal.WithLabelValues(variant).Inc() }

// SetEngineReady publishes engine readiness.
func SetEngineReady(ready bool) { engineReady.Set(boolGauge(ready)) }

// RecordFrame records one rendered frame.
func RecordFrame(d time.Duration, err error) {
	framesRenderedTotal.Inc()
	if err != nil {
		renderErrorsTotal.Inc()
	}
	frameDurationSeconds.Observe(d.Seconds())
}

// IncNavigations counts a navigation outcome.
func IncNavigations(outcome string) { navigationsTotal.WithLabelValues(outcome).Inc() }

// SetTrackingActive publishes whether tracking is engaged.
func SetTrackingActive(active bool) { trackingActive.Set(boolGauge(active)) }

// SetClock publishes the simulated clock settings.
func SetClock(rate float64, synced bool) {
	clockRate.Set(rate)
	clockSynced.Set(boolGauge(synced))
}

// IncEventsDelivered counts one callback invocation.
func IncEventsDelivered(kind string) { eventsDeliveredTotal.WithLabelValues(kind).Inc() }

// IncEventsDropped counts an event a subscriber never saw.
func IncEventsDropped(kind string) { eventsDroppedTotal.WithLabelValues(kind).Inc() }
