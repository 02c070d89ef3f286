package api

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swncrew",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		},
		[]string{"route", "method", "code"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "swncrew",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "swncrew",
			Subsystem: "api",
			Name:      "websocket_clients",
			Help:      "Connected WebSocket stream clients.",
		},
	)
)

var registerMetrics sync.Once

// RegisterMetrics registers the API collectors with reg. Only the first
// call has any effect.
func RegisterMetrics(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(requestsTotal, requestDuration, wsClients)
	})
}

func recordRequest(route, method string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
