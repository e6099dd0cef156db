package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mpc",
		Subsystem: "session",
		Name:      "stage_duration_seconds",
		Help:      "Duration of keygen, offline and online stages.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"stage", "outcome"})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpc",
		Subsystem: "session",
		Name:      "total",
		Help:      "Finished sessions by kind and outcome.",
	}, []string{"kind", "outcome"})

	RoundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpc",
		Subsystem: "round",
		Name:      "messages_total",
		Help:      "Round messages sent and delivered by this party.",
	}, []string{"stage", "direction"})

	RelayMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mpc",
		Subsystem: "relay",
		Name:      "messages_total",
		Help:      "Messages appended to relay rooms.",
	})

	RelaySubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mpc",
		Subsystem: "relay",
		Name:      "subscribers",
		Help:      "Open relay subscriptions.",
	})
)
