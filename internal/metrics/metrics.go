// Package metrics provides interfaces and implementations for
// collecting delivery daemon metrics. It defines the Collector
// interface for recording metrics and a Prometheus-backed HTTP server
// for exposing them.
package metrics

import "context"

// Collector defines the interface for recording daemon metrics.
type Collector interface {
	// Connection metrics.
	ConnectionOpened()
	ConnectionClosed()

	// Message intake metrics.
	MessageReceived(sizeBytes int64)
	// MessageDropped records a discarded message; reason is one of
	// "read_error", "parse_error", "missing_header", "empty_address",
	// "filter_error".
	MessageDropped(reason string)

	// Delivery metrics, one observation per destination per message.
	// result is "success" or "failure".
	DeliveryCompleted(destination string, result string)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is
	// canceled or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}

// NoopCollector is a no-op implementation of the Collector interface.
type NoopCollector struct{}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened() {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed() {}

// MessageReceived is a no-op.
func (n *NoopCollector) MessageReceived(sizeBytes int64) {}

// MessageDropped is a no-op.
func (n *NoopCollector) MessageDropped(reason string) {}

// DeliveryCompleted is a no-op.
func (n *NoopCollector) DeliveryCompleted(destination string, result string) {}
