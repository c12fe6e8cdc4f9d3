package turn

import (
	"context"

	"concierge/pkg/channel"
	"concierge/pkg/routing"
)

// Notifier pushes best-effort typing signals bracketing a turn. Failures are
// swallowed by implementations; a typing signal never affects turn outcome.
type Notifier interface {
	SetTyping(ctx context.Context, key routing.SessionKey, active bool)
}

// NopNotifier drops all typing signals.
type NopNotifier struct{}

func (NopNotifier) SetTyping(context.Context, routing.SessionKey, bool) {}

// PresenceNotifier forwards typing signals to the session's channel when that
// channel's sender supports presence. Sessions without a transport mapping
// (primary, isolated, cron) are no-ops.
type PresenceNotifier struct {
	registry *channel.Registry
}

func NewPresenceNotifier(registry *channel.Registry) *PresenceNotifier {
	return &PresenceNotifier{registry: registry}
}

func (n *PresenceNotifier) SetTyping(ctx context.Context, key routing.SessionKey, active bool) {
	if n == nil || n.registry == nil {
		return
	}

	switch key.Kind {
	case routing.SessionDirect, routing.SessionGroup:
	default:
		return
	}

	presence, ok := n.registry.Presence(key.Channel)
	if !ok {
		return
	}

	presence.SetTyping(ctx, key.ID, active)
}
