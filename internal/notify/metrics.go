package notify

import "github.com/prometheus/client_golang/prometheus"

// published counts forward attempts by publisher, event kind and result
// (ok, error, skipped).
var published = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notify_published_total",
		Help: "Total number of notifications forwarded to external observers.",
	},
	[]string{"publisher", "kind", "result"},
)

func init() {
	prometheus.MustRegister(published)
}
