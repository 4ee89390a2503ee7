package events

import "github.com/prometheus/client_golang/prometheus"

var (
	// eventsPublished counts valid publishes by event kind.
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "Total number of events published on the bus.",
		},
		[]string{"kind"},
	)

	// handlerFailures counts handler errors and panics.
	handlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_handler_failures_total",
			Help: "Total number of failed event handler invocations.",
		},
		[]string{"kind", "handler"},
	)

	// handlerDuration records handler latency in seconds. Handlers are a small
	// fixed set, so the label cardinality stays bounded.
	handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bus_handler_duration_seconds",
			Help:    "Duration of event handler invocations in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "handler"},
	)
)

func init() {
	prometheus.MustRegister(eventsPublished, handlerFailures, handlerDuration)
}
