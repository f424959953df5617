package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bomberhub_websocket_clients",
		Help: "Number of connected websocket clients",
	})

	framesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bomberhub_websocket_broadcasts_total",
		Help: "Total number of events broadcast to websocket clients",
	}, []string{"event"})
)
