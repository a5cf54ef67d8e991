package bot

import (
	"context"
	"log/slog"

	"github.com/sub20hz/kickbot/telemetry"
)

// runTimedEvent fires ev.fn every ev.interval until ctx is cancelled. The
// interval is measured from the previous completion, not wall-aligned, so a
// slow handler pushes later fires back rather than stacking them up. A
// handler error stops the loop and is returned; cancellation is clean.
func (b *Bot) runTimedEvent(ctx context.Context, ev timedEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.clock.After(ev.interval):
		}
		telemetry.CountTimedEventFire()
		slog.Debug("timed event firing", slog.Duration("interval", ev.interval))
		if err := ev.fn(ctx, b); err != nil {
			telemetry.CountHandlerFailure()
			return err
		}
	}
}
