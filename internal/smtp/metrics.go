package smtp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtransfer_smtp_connections_total",
			Help: "Incoming SMTP connections.",
		},
	)
	metricRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtransfer_smtp_rejections_total",
			Help: "Rejected SMTP commands by reason.",
		},
		[]string{
			"reason",
		},
	)
	metricDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtransfer_deliveries_total",
			Help: "Delivery attempts per recipient, by path (local, relay) and result.",
		},
		[]string{
			"path",
			"result",
		},
	)
)
