package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"concierge/pkg/agent"
	"concierge/pkg/bus"
	"concierge/pkg/channel"
	"concierge/pkg/channel/local"
	"concierge/pkg/config"
	"concierge/pkg/provider"
	"concierge/pkg/routing"
	"concierge/pkg/turn"
)

const (
	localSenderID         = "local"
	localDrainTimeout     = 10 * time.Second
	localOperatorUserName = "operator"
)

// LocalSession runs the full gateway stack in-process against the local
// channel: same bus, same dispatch loop, same turn semantics as the network
// gateway, minus transports and the status server. The chat TUI and the
// one-shot agent command both sit on top of it.
type LocalSession struct {
	runtime    *agent.Runtime
	messages   *bus.MessageBus
	adapter    *local.Adapter
	dispatcher *Dispatcher
	sessionKey routing.SessionKey
	cancel     context.CancelFunc
	log        *slog.Logger
}

func StartLocalSession(ctx context.Context, cfg *config.Config, client provider.Client, log *slog.Logger) (*LocalSession, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if client == nil {
		return nil, errors.New("provider client is required")
	}
	if log == nil {
		log = slog.Default()
	}

	messages := bus.NewMessageBus()
	adapter, err := local.NewAdapter(messages, log)
	if err != nil {
		return nil, err
	}

	registry := channel.NewRegistry()
	registry.Register(adapter.Name(), adapter)

	// The CLI operator is the principal; grant full trust on the local
	// channel without requiring a users entry in config.
	users := append([]config.UserConfig{}, cfg.Users...)
	users = append(users, config.UserConfig{
		Name:     localOperatorUserName,
		Channel:  adapter.Name(),
		SenderID: localSenderID,
		Trust:    routing.TrustFull.String(),
	})

	runtime := agent.NewRuntime(client, cfg, log)
	executor := turn.NewExecutor(runtime, turn.NewPresenceNotifier(registry), log)
	dispatcher := NewDispatcher(routing.NewRouter(users, log), executor, registry, messages, log)

	sessionCtx, cancel := context.WithCancel(ctx)
	go dispatcher.Run(sessionCtx)
	go ObserveEvents(sessionCtx, messages, log)

	return &LocalSession{
		runtime:    runtime,
		messages:   messages,
		adapter:    adapter,
		dispatcher: dispatcher,
		sessionKey: routing.DirectKey(adapter.Name(), localSenderID),
		cancel:     cancel,
		log:        log.With("component", "gateway.local"),
	}, nil
}

// Prompt submits one turn and blocks for its reply. Failed or skipped turns
// surface as errors instead of silence so interactive callers never hang.
func (s *LocalSession) Prompt(ctx context.Context, text string) (string, error) {
	events, unsubscribe := s.messages.SubscribeEvents(ctx, 16)
	defer unsubscribe()

	if !s.adapter.Submit(ctx, localSenderID, text) {
		return "", errors.New("session is closed")
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case reply := <-s.adapter.Replies():
			return reply.Text, nil
		case event, ok := <-events:
			if !ok {
				return "", errors.New("session is closed")
			}
			if event.SessionKey != s.sessionKey.String() {
				continue
			}
			switch event.Type {
			case bus.EventTurnFailed:
				return "", fmt.Errorf("turn failed: %s", event.Error)
			case bus.EventTurnSkipped:
				return "", turn.ErrSessionBusy
			case bus.EventTurnCompleted:
				// The dispatcher replies before publishing completion, so
				// any reply is already buffered. An empty response sends
				// nothing; return it rather than wait forever.
				select {
				case reply := <-s.adapter.Replies():
					return reply.Text, nil
				default:
					return "", nil
				}
			}
		}
	}
}

// History returns the recorded turns of the local session.
func (s *LocalSession) History() []agent.MemoryEntry {
	return s.runtime.History(s.sessionKey)
}

// Close stops the dispatch loop and drains any in-flight turn.
func (s *LocalSession) Close() {
	s.cancel()
	if err := s.dispatcher.Drain(localDrainTimeout); err != nil {
		s.log.Warn("Local session drain incomplete", "error", err)
	}
	s.messages.Close()
}
