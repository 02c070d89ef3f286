package scheduler

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/swncrew-core/internal/mission"
)

const (
	namespace = "swncrew"
	subsystem = "scheduler"
)

var (
	queueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_length",
			Help:      "Number of missions waiting in the queue, excluding the current one.",
		},
	)
	activeFlag = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active",
			Help:      "1 while the scheduler is allowed to start missions.",
		},
	)
	missionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "missions_total",
			Help:      "Missions that left the queue, by final status.",
		},
		[]string{"status"},
	)
	missionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mission_duration_seconds",
			Help:      "Wall time from valve open to valve close.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
	sinkFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "telemetry_sink_failures_total",
			Help:      "Telemetry sink writes that failed or were dropped.",
		},
	)
	subscribersDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscribers_dropped_total",
			Help:      "Subscribers removed after a failed delivery, by topic.",
		},
		[]string{"topic"},
	)
)

var registerMetrics sync.Once

// RegisterMetrics registers the scheduler collectors with reg. Only the
// first call has any effect.
func RegisterMetrics(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(queueLength, activeFlag, missionsTotal, missionDuration, sinkFailures, subscribersDropped)
	})
}

func recordQueueLength(n int) {
	queueLength.Set(float64(n))
}

func recordActive(active bool) {
	if active {
		activeFlag.Set(1)
		return
	}
	activeFlag.Set(0)
}

func recordCompleted(c mission.Completed) {
	missionsTotal.WithLabelValues(string(c.Status)).Inc()
	missionDuration.Observe(c.Elapsed().Seconds())
}

func recordSinkFailure() {
	sinkFailures.Inc()
}

func recordSubscriberDropped(topic string, _ error) {
	subscribersDropped.WithLabelValues(topic).Inc()
}
