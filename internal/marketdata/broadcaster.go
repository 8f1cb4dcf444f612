package marketdata

import (
	"context"

	"lv-tradedesk/internal/notify"
)

// Broadcaster pushes a price snapshot of the configured symbols to every
// connected client. It runs as a scheduled task.
type Broadcaster struct {
	quotes   *Quotes
	symbols  []string
	notifier notify.Notifier
}

func NewBroadcaster(quotes *Quotes, symbols []string, notifier notify.Notifier) *Broadcaster {
	return &Broadcaster{quotes: quotes, symbols: symbols, notifier: notifier}
}

func (b *Broadcaster) Execute(ctx context.Context) error {
	snap := b.quotes.Snapshot(ctx, b.symbols)
	if len(snap) == 0 {
		return nil
	}
	b.notifier.Notify(ctx, notify.Event{Type: notify.EventPrices, Data: snap})
	return nil
}
