package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProviderFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_provider_fetch_total",
			Help: "Total number of provider fetch attempts",
		},
		[]string{"provider", "outcome", "code"},
	)

	ProviderFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_provider_fetch_duration_seconds",
			Help:    "Duration of provider fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_searches_total",
			Help: "Total number of searches by outcome",
		},
		[]string{"found"},
	)

	StreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_stream_events_total",
			Help: "Total number of stream events written",
		},
		[]string{"kind"},
	)

	StreamDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_stream_dropped_total",
			Help: "Total number of stream events dropped after a write failure",
		},
	)

	AdmissionRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_admission_rejected_total",
			Help: "Total number of requests rejected by admission control",
		},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_proxy_failures_total",
			Help: "Total number of proxy failures in the direct provider",
		},
		[]string{"proxy_url"},
	)
)

// RecordFetch updates the provider counters for one fetch. code is empty for
// successful fetches.
func RecordFetch(provider string, ok bool, code string, d time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "err"
	}
	ProviderFetchTotal.WithLabelValues(provider, outcome, code).Inc()
	ProviderFetchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordSearch counts one finished search.
func RecordSearch(found bool) {
	SearchesTotal.WithLabelValues(strconv.FormatBool(found)).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
