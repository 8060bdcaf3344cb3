// Package destination provides the uniform append operation over the
// configured delivery backends: remote IMAP accounts and local maildir
// stores. Delivery is best-effort per destination; outcomes are
// independent and there is no retry queue.
package destination

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maildropd/maildropd/internal/config"
	"github.com/maildropd/maildropd/internal/message"
	"github.com/maildropd/maildropd/internal/metrics"
)

// Destination is a configured place a filtered message is appended to.
type Destination interface {
	// Name returns the configured identifier, used in logs and metrics.
	Name() string

	// Kind returns the destination kind string from the account file.
	Kind() string

	// Validate probes the destination once at startup: connect,
	// authenticate and select the folder for remote accounts; create
	// or open the mailbox structure for local ones.
	Validate(ctx context.Context) error

	// Append adds one message. Implementations open and release any
	// session within the call; no handle survives across messages.
	Append(ctx context.Context, msg *message.Message) error
}

// Build constructs one Destination per descriptor. It performs no I/O;
// ValidateAll does the startup probing. owner names the unprivileged
// user the daemon serves as: validation runs while still privileged,
// so maildir structure created then is handed over to owner.
func Build(cfgs []config.DestinationConfig, owner string) ([]Destination, error) {
	dests := make([]Destination, 0, len(cfgs))
	for _, dc := range cfgs {
		switch dc.Kind {
		case config.KindRemote:
			dests = append(dests, newRemoteAccount(dc))
		case config.KindMaildirFlat, config.KindMaildirHier:
			dests = append(dests, newMaildir(dc, owner))
		default:
			return nil, fmt.Errorf("destination %q: unknown kind %q", dc.Name, dc.Kind)
		}
	}
	return dests, nil
}

// ValidateAll probes every destination and fails on the first problem.
// The account set is all-or-nothing: one unreachable destination
// aborts startup entirely, before any runtime artifact exists.
func ValidateAll(ctx context.Context, dests []Destination, logger *slog.Logger) error {
	for _, d := range dests {
		if err := d.Validate(ctx); err != nil {
			return fmt.Errorf("validating destination %q (%s): %w", d.Name(), d.Kind(), err)
		}
		logger.Debug("destination validated", "destination", d.Name(), "kind", d.Kind())
	}
	return nil
}

// Deliverer fans one message out to every destination.
type Deliverer struct {
	dests     []Destination
	collector metrics.Collector
	logger    *slog.Logger
}

// NewDeliverer creates a Deliverer. A nil collector records nothing; a
// nil logger falls back to slog.Default.
func NewDeliverer(dests []Destination, collector metrics.Collector, logger *slog.Logger) *Deliverer {
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{dests: dests, collector: collector, logger: logger}
}

// DeliverAll appends msg to each destination in order. A failing
// destination is logged at warning severity and skipped; siblings
// still receive the message. Returns the number of successful appends.
func (d *Deliverer) DeliverAll(ctx context.Context, msg *message.Message) int {
	delivered := 0
	for _, dest := range d.dests {
		if err := dest.Append(ctx, msg); err != nil {
			d.logger.Warn("delivery failed",
				"destination", dest.Name(),
				"kind", dest.Kind(),
				"error", err)
			d.collector.DeliveryCompleted(dest.Name(), "failure")
			continue
		}
		d.logger.Debug("delivered", "destination", dest.Name())
		d.collector.DeliveryCompleted(dest.Name(), "success")
		delivered++
	}
	return delivered
}

// Count returns the number of configured destinations.
func (d *Deliverer) Count() int {
	return len(d.dests)
}
