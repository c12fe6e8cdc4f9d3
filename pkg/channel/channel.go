package channel

import (
	"context"
	"strings"
	"sync"
)

// Adapter bridges one external transport (for example Telegram) into the
// gateway. Run publishes inbound events onto the shared bus until ctx ends.
type Adapter interface {
	Name() string
	Run(ctx context.Context) error
}

// Sender delivers one outbound text to a target address on its channel.
// Delivery is fire-and-forget from the caller's perspective; a returned error
// is for logging only.
type Sender interface {
	Send(ctx context.Context, target string, text string) error
}

// Presence pushes best-effort typing signals. Channels without a presence
// concept simply do not implement it.
type Presence interface {
	SetTyping(ctx context.Context, target string, active bool)
}

// Registry maps channel names to their outbound senders.
type Registry struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

func (r *Registry) Register(name string, sender Sender) {
	name = strings.TrimSpace(name)
	if name == "" || sender == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[name] = sender
}

// Sender returns the registered sender for a channel name, if any.
func (r *Registry) Sender(name string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sender, ok := r.senders[strings.TrimSpace(name)]
	return sender, ok
}

// Presence returns the channel's presence pusher when its sender supports one.
func (r *Registry) Presence(name string) (Presence, bool) {
	sender, ok := r.Sender(name)
	if !ok {
		return nil, false
	}

	presence, ok := sender.(Presence)
	return presence, ok
}

// Names lists registered channel names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.senders))
	for name := range r.senders {
		names = append(names, name)
	}
	return names
}
