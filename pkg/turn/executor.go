package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"concierge/pkg/routing"
)

// ErrSessionBusy reports that a turn for the same session is already running.
// It is a flow-control outcome, not a failure: callers drop the event and do
// not retry inline.
var ErrSessionBusy = errors.New("session is busy")

// Body runs the inside of one turn: prompt construction, model invocation,
// and any tool iterations. It is invoked only while the session guard is held.
type Body interface {
	Prompt(ctx context.Context, decision routing.RoutingDecision, text string) (string, error)
}

// BodyFunc adapts a function to the Body interface.
type BodyFunc func(ctx context.Context, decision routing.RoutingDecision, text string) (string, error)

func (f BodyFunc) Prompt(ctx context.Context, decision routing.RoutingDecision, text string) (string, error) {
	return f(ctx, decision, text)
}

// Guard holds one session's exclusive turn slot. Release is idempotent and
// must run on every exit path of the turn that acquired it.
type Guard struct {
	once    sync.Once
	release func()
}

func (g *Guard) Release() {
	g.once.Do(g.release)
}

// Executor runs turns while guaranteeing that no two turns for the same
// session key execute concurrently. Acquisition is try-only: a session with a
// turn in flight rejects new turns immediately instead of queueing them.
type Executor struct {
	body     Body
	notifier Notifier
	log      *slog.Logger

	mu   sync.Mutex
	busy map[routing.SessionKey]struct{}
}

func NewExecutor(body Body, notifier Notifier, log *slog.Logger) *Executor {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Executor{
		body:     body,
		notifier: notifier,
		log:      log.With("component", "turn.executor"),
		busy:     make(map[routing.SessionKey]struct{}),
	}
}

// TryBegin attempts to acquire the session's turn slot without waiting.
// The second return value is false when the session is busy.
func (e *Executor) TryBegin(key routing.SessionKey) (*Guard, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, held := e.busy[key]; held {
		return nil, false
	}

	e.busy[key] = struct{}{}
	return &Guard{release: func() {
		e.mu.Lock()
		delete(e.busy, key)
		e.mu.Unlock()
	}}, true
}

// Busy reports whether a turn currently holds the session's slot.
func (e *Executor) Busy(key routing.SessionKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, held := e.busy[key]
	return held
}

// Run executes one turn for the session named by decision. It returns
// ErrSessionBusy without invoking the body when the session slot is held.
//
// The guard and the typing bracket are released on every exit path: normal
// return, body error, and panic (recovered into an error so one broken turn
// never takes down the loops that spawn turns).
func (e *Executor) Run(ctx context.Context, decision routing.RoutingDecision, text string) (response string, err error) {
	guard, ok := e.TryBegin(decision.SessionKey)
	if !ok {
		return "", ErrSessionBusy
	}
	defer guard.Release()

	stopTyping := e.beginTyping(ctx, decision.SessionKey)
	defer stopTyping()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Turn body panicked", "session_key", decision.SessionKey.String(), "panic", r)
			response = ""
			err = fmt.Errorf("turn panicked: %v", r)
		}
	}()

	return e.body.Prompt(ctx, decision, text)
}

// beginTyping starts the typing signal and returns a stop function that fires
// exactly once no matter how many exit paths invoke it.
func (e *Executor) beginTyping(ctx context.Context, key routing.SessionKey) func() {
	e.notifier.SetTyping(ctx, key, true)

	var once sync.Once
	return func() {
		once.Do(func() {
			e.notifier.SetTyping(ctx, key, false)
		})
	}
}
