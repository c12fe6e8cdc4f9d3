package cron

import (
	"context"
	"log/slog"
	"strings"

	"concierge/pkg/bus"
	"concierge/pkg/channel"
)

// Router sends a completed cron turn's response to the job's configured
// delivery target. Delivery is fire-and-forget: failures are logged, never
// retried; the job tries again naturally on its next tick.
type Router struct {
	registry *channel.Registry
	events   *bus.MessageBus
	log      *slog.Logger
}

func NewRouter(registry *channel.Registry, events *bus.MessageBus, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		registry: registry,
		events:   events,
		log:      log.With("component", "cron.delivery"),
	}
}

// Deliver applies the suppression policy and transmits the response.
//
// An empty response is a skip, never a "nothing to report" signal: a rejected
// turn also produces nothing, and those two cases must stay distinguishable
// in the logs. The sentinel check applies only to jobs flagged
// silent-unless-noteworthy; any other job delivers the sentinel verbatim.
func (r *Router) Deliver(ctx context.Context, job *Job, responseText string) {
	if job.Deliver == nil {
		r.log.Debug("Job has no delivery target", "name", job.Name)
		return
	}

	trimmed := strings.TrimSpace(responseText)
	if trimmed == "" {
		r.log.Info("Skipping delivery", "name", job.Name, "reason", "empty response")
		r.publishEvent(ctx, bus.Event{Type: bus.EventDeliverySkipped, Job: job.Name, Payload: map[string]string{"reason": "empty response"}})
		return
	}

	if job.SilentUnlessNoteworthy() && trimmed == SentinelNothingToReport {
		r.log.Info("Suppressing delivery", "name", job.Name, "reason", "nothing to report")
		r.publishEvent(ctx, bus.Event{Type: bus.EventDeliverySuppressed, Job: job.Name})
		return
	}

	sender, ok := r.registry.Sender(job.Deliver.Channel)
	if !ok {
		r.log.Warn("No sender registered for delivery channel", "name", job.Name, "channel", job.Deliver.Channel)
		r.publishEvent(ctx, bus.Event{Type: bus.EventDeliverySkipped, Job: job.Name, Payload: map[string]string{"reason": "unknown channel"}})
		return
	}

	if err := sender.Send(ctx, job.Deliver.To, trimmed); err != nil {
		r.log.Warn("Delivery failed", "name", job.Name, "channel", job.Deliver.Channel, "error", err)
		r.publishEvent(ctx, bus.Event{Type: bus.EventDeliverySkipped, Job: job.Name, Error: err.Error()})
		return
	}

	r.log.Info("Delivered cron response", "name", job.Name, "channel", job.Deliver.Channel, "to", job.Deliver.To)
	r.publishEvent(ctx, bus.Event{Type: bus.EventDeliverySent, Job: job.Name, Channel: job.Deliver.Channel})
}

func (r *Router) publishEvent(ctx context.Context, event bus.Event) {
	if r.events == nil {
		return
	}
	r.events.PublishEvent(ctx, event)
}
