package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	resourceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwt_resource_fetches_total",
			Help: "Resource catalog loads by result (fetched, cached, empty, error).",
		},
		[]string{"result"},
	)

	resourceLoadSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wwt_resource_load_duration_seconds",
		Help:    "Time from initializer call to catalog loaded.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	catalogPlaces = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wwt_catalog_places",
		Help: "Places in the loaded catalog.",
	})

	catalogAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wwt_catalog_age_seconds",
		Help: "Seconds since the in-memory catalog was loaded.",
	})

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwt_stream_connections_total",
			Help: "Event stream connects and disconnects by transport.",
		},
		[]string{"transport", "event"},
	)

	streamsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wwt_streams_active",
			Help: "Open event streams by transport.",
		},
		[]string{"transport"},
	)

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wwt_stream_messages_total",
		Help: "Messages written to event streams.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wwt_stream_bytes_total",
		Help: "Bytes written to event streams.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwt_stream_errors_total",
			Help: "Event stream errors by reason.",
		},
		[]string{"reason"},
	)

	wsCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwt_ws_commands_total",
			Help: "WebSocket commands by type and result.",
		},
		[]string{"type", "result"},
	)

	journalWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwt_journal_writes_total",
			Help: "Journal writes by result (ok, error, dropped).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(resourceFetchesTotal)
	prometheus.MustRegister(resourceLoadSeconds)
	prometheus.MustRegister(catalogPlaces)
	prometheus.MustRegister(catalogAgeSeconds)
	prometheus.MustRegister(streamConnectionsTotal)
	prometheus.MustRegister(streamsActive)
	prometheus.MustRegister(streamMessagesTotal)
	prometheus.MustRegister(streamBytesTotal)
	prometheus.MustRegister(streamErrorsTotal)
	prometheus.MustRegister(wsCommandsTotal)
	prometheus.MustRegister(journalWritesTotal)
}

// IncResourceFetches counts a catalog load result.
func IncResourceFetches(result string) { resourceFetchesTotal.WithLabelValues(result).Inc() }

// ObserveResourceLoad records how long a load took.
func ObserveResourceLoad(d time.Duration) { resourceLoadSeconds.Observe(d.Seconds()) }

// SetCatalogPlaces publishes the loaded catalog size.
func SetCatalogPlaces(n int) { catalogPlaces.Set(float64(n)) }

// SetCatalogAge publishes the catalog age.
func SetCatalogAge(seconds float64) { catalogAgeSeconds.Set(seconds) }

// IncStreamConnections counts a connect or disconnect.
func IncStreamConnections(transport, event string) {
	streamConnectionsTotal.WithLabelValues(transport, event).Inc()
}

// IncStreamsActive marks a stream as open.
func IncStreamsActive(transport string) { streamsActive.WithLabelValues(transport).Inc() }

// DecStreamsActive marks a stream as closed.
func DecStreamsActive(transport string) { streamsActive.WithLabelValues(transport).Dec() }

// IncStreamMessages counts one message sent.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// AddStreamBytes counts bytes sent.
func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// IncStreamErrors counts a stream error.
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }

// IncWSCommands counts a WebSocket command.
func IncWSCommands(cmdType, result string) { wsCommandsTotal.WithLabelValues(cmdType, result).Inc() }

// IncJournalWrites counts a journal write result.
func IncJournalWrites(result string) { journalWritesTotal.WithLabelValues(result).Inc() }
