// Package notify forwards trade events to out-of-band sinks. Delivery is
// best-effort everywhere: a failed notification is logged and never fails
// the trading operation that produced it.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/nebulatrade/tradesim/internal/entity"
	"github.com/nebulatrade/tradesim/internal/events"
)

// Notifier delivers one event to an external sink.
type Notifier interface {
	Notify(ctx context.Context, e entity.TradeEvent) error
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that logs every event.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, e entity.TradeEvent) error {
	n.logger.Info("trade event",
		zap.String("id", e.ID),
		zap.String("type", string(e.Type)),
		zap.String("account", e.AccountID),
		zap.String("symbol", e.Symbol),
		zap.Int64("quantity", e.Quantity),
		zap.String("amount", e.Amount))
	return nil
}

// Dispatcher journals each event, fans it out to stream subscribers and
// hands it to every notifier.
type Dispatcher struct {
	journal     *events.Journal
	broadcaster *events.Broadcaster
	notifiers   []Notifier
	logger      *zap.Logger
}

// NewDispatcher wires the journal, the broadcaster and the notifiers.
// Journal and broadcaster may be nil; those steps are then skipped.
func NewDispatcher(journal *events.Journal, broadcaster *events.Broadcaster, logger *zap.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		journal:     journal,
		broadcaster: broadcaster,
		notifiers:   notifiers,
		logger:      logger,
	}
}

// Publish distributes the event. Errors are logged, never returned: the
// trading path must not depend on any sink.
func (d *Dispatcher) Publish(ctx context.Context, e entity.TradeEvent) {
	if d == nil {
		return
	}

	if d.journal != nil {
		if err := d.journal.Append(e); err != nil {
			d.logger.Warn("failed to journal trade event",
				zap.String("id", e.ID), zap.Error(err))
		}
	}

	if d.broadcaster != nil {
		d.broadcaster.Publish(e)
	}

	for _, n := range d.notifiers {
		if err := n.Notify(ctx, e); err != nil {
			d.logger.Warn("failed to deliver trade event",
				zap.String("id", e.ID), zap.Error(err))
		}
	}
}
