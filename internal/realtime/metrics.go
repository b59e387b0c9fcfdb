package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "souk",
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Number of live websocket connections.",
	})

	pushesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "souk",
		Subsystem: "ws",
		Name:      "pushes_delivered_total",
		Help:      "Events enqueued to a live connection, by event type.",
	}, []string{"type"})

	pushesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "souk",
		Subsystem: "ws",
		Name:      "pushes_dropped_total",
		Help:      "Events dropped due to backpressure or a closing connection, by event type.",
	}, []string{"type"})
)
