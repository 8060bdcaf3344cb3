package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using
// Prometheus metrics.
type PrometheusCollector struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge

	messagesReceivedTotal prometheus.Counter
	messagesSizeBytes     prometheus.Histogram
	messagesDroppedTotal  *prometheus.CounterVec

	deliveriesTotal *prometheus.CounterVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all
// metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maildropd_connections_total",
			Help: "Total number of intake connections accepted.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "maildropd_connections_active",
			Help: "Number of currently active intake connections (0 or 1).",
		}),
		messagesReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maildropd_messages_received_total",
			Help: "Total number of messages read from the intake socket.",
		}),
		messagesSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "maildropd_messages_size_bytes",
			Help:    "Size of received messages in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760},
		}),
		messagesDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maildropd_messages_dropped_total",
			Help: "Total number of messages discarded before delivery.",
		}, []string{"reason"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maildropd_deliveries_total",
			Help: "Total number of per-destination delivery attempts.",
		}, []string{"destination", "result"}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.messagesReceivedTotal,
		c.messagesSizeBytes,
		c.messagesDroppedTotal,
		c.deliveriesTotal,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// MessageReceived increments the received counter and observes size.
func (c *PrometheusCollector) MessageReceived(sizeBytes int64) {
	c.messagesReceivedTotal.Inc()
	c.messagesSizeBytes.Observe(float64(sizeBytes))
}

// MessageDropped increments the dropped-message counter.
func (c *PrometheusCollector) MessageDropped(reason string) {
	c.messagesDroppedTotal.WithLabelValues(reason).Inc()
}

// DeliveryCompleted increments the delivery counter.
func (c *PrometheusCollector) DeliveryCompleted(destination string, result string) {
	c.deliveriesTotal.WithLabelValues(destination, result).Inc()
}
