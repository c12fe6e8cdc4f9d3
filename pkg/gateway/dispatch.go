package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"concierge/pkg/bus"
	"concierge/pkg/channel"
	"concierge/pkg/routing"
	"concierge/pkg/turn"
)

// Dispatcher consumes inbound events from the bus, resolves each to a
// session, and spawns turns. Sessions run one turn at a time; distinct
// sessions run in parallel. An event arriving for a busy session is dropped,
// never queued; the sender simply sees no reply and tries again.
type Dispatcher struct {
	router   *routing.Router
	executor *turn.Executor
	senders  *channel.Registry
	messages *bus.MessageBus
	log      *slog.Logger

	mu     sync.Mutex
	active map[routing.SessionKey]*turnHandle

	inflight sync.WaitGroup
}

// turnHandle marks one in-flight turn in the dispatcher's registry. done is
// closed when the turn's goroutine exits; the registry entry itself is only
// removed lazily, on the next dispatch for any session.
type turnHandle struct {
	startedAt time.Time
	done      chan struct{}
}

func NewDispatcher(router *routing.Router, executor *turn.Executor, senders *channel.Registry, messages *bus.MessageBus, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		router:   router,
		executor: executor,
		senders:  senders,
		messages: messages,
		log:      log.With("component", "gateway.dispatcher"),
		active:   make(map[routing.SessionKey]*turnHandle),
	}
}

// Run consumes inbound events until ctx ends or the bus closes. It returns
// without waiting for in-flight turns; callers drain separately so shutdown
// can bound how long finishing turns get.
func (d *Dispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Turns outlive the loop's cancellation so shutdown can drain them;
	// provider request timeouts bound how long an abandoned turn lingers.
	turnCtx := context.WithoutCancel(ctx)

	d.log.Info("Dispatch loop started")
	for {
		msg, ok := d.messages.ConsumeInbound(ctx)
		if !ok {
			d.log.Info("Dispatch loop stopped")
			return
		}

		d.dispatch(turnCtx, msg)
	}
}

// dispatch resolves one event and spawns its turn unless the session already
// has one in flight. The registry check is a fast path: the executor's guard
// is what actually enforces exclusion, so losing a race here only costs a
// goroutine that returns ErrSessionBusy immediately.
func (d *Dispatcher) dispatch(ctx context.Context, msg bus.InboundMessage) {
	decision := d.router.Resolve(msg)
	key := decision.SessionKey

	d.mu.Lock()
	d.reapLocked()
	if _, running := d.active[key]; running {
		d.mu.Unlock()
		d.skip(ctx, key, "turn in flight")
		return
	}

	handle := &turnHandle{startedAt: time.Now(), done: make(chan struct{})}
	d.active[key] = handle
	d.mu.Unlock()

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer close(handle.done)
		d.runTurn(ctx, msg, decision)
	}()
}

func (d *Dispatcher) runTurn(ctx context.Context, msg bus.InboundMessage, decision routing.RoutingDecision) {
	key := decision.SessionKey
	d.log.Info("Turn started", "session_key", key.String(), "channel", msg.Channel)
	d.publishEvent(ctx, bus.Event{Type: bus.EventTurnStarted, Channel: msg.Channel, SessionKey: key.String()})

	response, err := d.executor.Run(ctx, decision, msg.Content)
	if errors.Is(err, turn.ErrSessionBusy) {
		d.skip(ctx, key, "guard held")
		return
	}
	if err != nil {
		d.log.Error("Turn failed", "session_key", key.String(), "error", err)
		d.publishEvent(ctx, bus.Event{Type: bus.EventTurnFailed, Channel: msg.Channel, SessionKey: key.String(), Error: err.Error()})
		return
	}

	d.log.Info("Turn completed", "session_key", key.String())
	// Reply before announcing completion so a completion observer that then
	// checks for the reply always finds it.
	d.reply(ctx, msg, response)
	d.publishEvent(ctx, bus.Event{Type: bus.EventTurnCompleted, Channel: msg.Channel, SessionKey: key.String()})
}

// reply sends the turn's response back to the originating chat. Sessions
// without a transport (primary covers multiple chats only conceptually; the
// event still carries its concrete chat) reply wherever the event came from.
func (d *Dispatcher) reply(ctx context.Context, msg bus.InboundMessage, response string) {
	if response == "" {
		return
	}

	sender, ok := d.senders.Sender(msg.Channel)
	if !ok {
		d.log.Warn("No sender registered for reply channel", "channel", msg.Channel)
		return
	}

	if err := sender.Send(ctx, msg.ChatID, response); err != nil {
		d.log.Error("Failed to send reply", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
	}
}

func (d *Dispatcher) skip(ctx context.Context, key routing.SessionKey, reason string) {
	d.log.Info("Skipping turn, session is busy", "session_key", key.String(), "reason", reason)
	d.publishEvent(ctx, bus.Event{Type: bus.EventTurnSkipped, SessionKey: key.String(), Payload: map[string]string{"reason": reason}})
}

// reapLocked drops registry entries whose turns have finished. Callers hold
// d.mu.
func (d *Dispatcher) reapLocked() {
	for key, handle := range d.active {
		select {
		case <-handle.done:
			delete(d.active, key)
		default:
		}
	}
}

// ActiveSessions lists sessions with a turn currently in flight.
func (d *Dispatcher) ActiveSessions() []routing.SessionKey {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reapLocked()
	keys := make([]routing.SessionKey, 0, len(d.active))
	for key := range d.active {
		keys = append(keys, key)
	}
	return keys
}

// Drain waits for in-flight turns to finish, up to timeout. Turns still
// running at the deadline are abandoned to their context.
func (d *Dispatcher) Drain(timeout time.Duration) error {
	finished := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("drain timed out after %s", timeout)
	}
}

func (d *Dispatcher) publishEvent(ctx context.Context, event bus.Event) {
	if d.messages == nil {
		return
	}
	d.messages.PublishEvent(ctx, event)
}
