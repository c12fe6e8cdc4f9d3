package local

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"concierge/pkg/bus"
)

const channelName = "local"
const replyBufferSize = 16

// Reply is one outbound message observed by a local consumer.
type Reply struct {
	Target string
	Text   string
}

// Adapter is an in-process channel used by the TUI chat command and tests.
// Inbound messages are submitted programmatically; outbound sends surface on
// the Replies channel.
type Adapter struct {
	messages *bus.MessageBus
	log      *slog.Logger
	replies  chan Reply
}

func NewAdapter(messages *bus.MessageBus, log *slog.Logger) (*Adapter, error) {
	if messages == nil {
		return nil, errors.New("message bus is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		messages: messages,
		log:      log.With("component", "channel.local"),
		replies:  make(chan Reply, replyBufferSize),
	}, nil
}

func (a *Adapter) Name() string {
	return channelName
}

// Run blocks until ctx ends. The local adapter has no transport to poll;
// inbound traffic arrives through Submit.
func (a *Adapter) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Submit publishes one local inbound message attributed to senderID.
func (a *Adapter) Submit(ctx context.Context, senderID string, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	return a.messages.PublishInbound(ctx, bus.InboundMessage{
		Channel:  channelName,
		SenderID: senderID,
		ChatID:   senderID,
		Content:  text,
	})
}

// Send surfaces an outbound message on the replies channel. Satisfies
// channel.Sender.
func (a *Adapter) Send(ctx context.Context, target string, text string) error {
	select {
	case a.replies <- Reply{Target: target, Text: text}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Replies exposes outbound messages for the local consumer.
func (a *Adapter) Replies() <-chan Reply {
	return a.replies
}
