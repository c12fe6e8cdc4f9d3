package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"concierge/pkg/agent/profile"
	"concierge/pkg/config"
	"concierge/pkg/provider"
	providertypes "concierge/pkg/provider/types"
	"concierge/pkg/routing"
)

// Runtime owns per-session agent instances. It is the body of every turn:
// the dispatch loop and the cron scheduler both prompt through it, and each
// session key maps to exactly one instance with its own provider conversation
// and trust-scoped system profile.
type Runtime struct {
	client provider.Client
	model  string
	log    *slog.Logger

	mu        sync.RWMutex
	instances map[routing.SessionKey]*Instance
}

func NewRuntime(client provider.Client, cfg *config.Config, log *slog.Logger) *Runtime {
	if log == nil {
		log = slog.Default()
	}

	return &Runtime{
		client:    client,
		model:     cfg.Agents.Defaults.Model,
		log:       log.With("component", "agent.runtime"),
		instances: make(map[routing.SessionKey]*Instance),
	}
}

// Prompt routes one turn to the session's instance. Callers serialize turns
// per session; the runtime only guarantees instance identity.
func (r *Runtime) Prompt(ctx context.Context, decision routing.RoutingDecision, text string) (string, error) {
	instance, err := r.instanceFor(decision)
	if err != nil {
		return "", err
	}

	ctx = providertypes.WithToolEventHandler(ctx, func(event providertypes.ToolEvent) {
		r.log.Debug("Tool activity",
			"session_key", decision.SessionKey.String(),
			"kind", event.Kind,
			"tool", event.Tool,
			"duration_ms", event.DurationMs,
		)
	})

	result, err := instance.Prompt(ctx, text)
	if err != nil {
		return "", err
	}

	if attrs := UsageAttrs(result); attrs != nil {
		r.log.Debug("Turn usage",
			append([]any{
				"session_key", decision.SessionKey.String(),
				"provider", result.Metadata.Provider,
				"model", result.Metadata.Model,
			}, attrs...)...)
	}

	return result.Text, nil
}

// instanceFor returns the session's instance, creating it on first use with a
// system profile derived from the originator's trust.
func (r *Runtime) instanceFor(decision routing.RoutingDecision) (*Instance, error) {
	key := decision.SessionKey

	r.mu.RLock()
	instance, ok := r.instances[key]
	r.mu.RUnlock()
	if ok {
		return instance, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	instance, ok = r.instances[key]
	if ok {
		return instance, nil
	}

	params := profile.Params{Trust: decision.Trust}
	if decision.User != nil {
		params.UserName = decision.User.Name
	}

	system, err := profile.Build(params)
	if err != nil {
		return nil, fmt.Errorf("build system profile for %s: %w", key.String(), err)
	}

	instance = NewInstance(r.client, r.model, system, "concierge:"+key.String())
	r.instances[key] = instance
	r.log.Info("Agent session created", "session_key", key.String(), "trust", decision.Trust.String())

	return instance, nil
}

// History returns the recorded turns for a session, or nil when the session
// has no instance yet.
func (r *Runtime) History(key routing.SessionKey) []MemoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.instances[key]
	if !ok {
		return nil
	}

	return instance.History()
}

// Sessions lists session keys with a live instance.
func (r *Runtime) Sessions() []routing.SessionKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]routing.SessionKey, 0, len(r.instances))
	for key := range r.instances {
		keys = append(keys, key)
	}

	return keys
}

// Close drops all session instances.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.instances {
		delete(r.instances, key)
	}
}
