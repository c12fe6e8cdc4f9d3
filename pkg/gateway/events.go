package gateway

import (
	"context"
	"log/slog"

	"concierge/pkg/bus"
)

// ObserveEvents logs the gateway's lifecycle event stream until ctx ends.
// It subscribes buffered so turn and cron workers never block on logging;
// the bus drops events for slow subscribers.
func ObserveEvents(ctx context.Context, messages *bus.MessageBus, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "bus.events")

	events, unsubscribe := messages.SubscribeEvents(ctx, 32)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logEvent(log, event)
		}
	}
}

func logEvent(log *slog.Logger, event bus.Event) {
	// Keep a stable attribute set across event types so logs are easy to
	// grep and correlate by session or job.
	attrs := []any{
		"event_type", event.Type,
		"channel", event.Channel,
		"session_key", event.SessionKey,
		"job", event.Job,
		"timestamp", event.At.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs, "payload", event.Payload)
	}

	switch event.Type {
	case bus.EventTurnFailed:
		log.Error("Gateway event", append(attrs, "error", event.Error)...)
	case bus.EventTurnStarted, bus.EventTurnCompleted, bus.EventCronFired, bus.EventDeliverySent:
		log.Info("Gateway event", attrs...)
	default:
		log.Debug("Gateway event", attrs...)
	}
}
