package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"concierge/pkg/bus"
	"concierge/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const messagePreviewLimit = 240
const typingRefreshInterval = 4 * time.Second

// Adapter bridges Telegram long polling into the gateway bus and exposes
// outbound send plus typing presence for the channel registry.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	messages  *bus.MessageBus
	log       *slog.Logger

	mu     sync.RWMutex
	bot    *telego.Bot
	typing map[string]context.CancelFunc
	runCtx context.Context
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, messages *bus.MessageBus, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}
	if messages == nil {
		return nil, errors.New("message bus is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		messages:  messages,
		log:       log.With("component", "channel.telegram"),
		typing:    make(map[string]context.CancelFunc),
	}, nil
}

// Name returns the channel identifier used in routing, config, and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and publishes accepted updates to the bus.
func (a *Adapter) Run(ctx context.Context) error {
	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.mu.Lock()
	a.bot = bot
	a.runCtx = ctx
	a.mu.Unlock()

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			a.handleUpdate(ctx, update)
		}
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, update telego.Update) {
	message := update.Message
	if message == nil {
		return
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		// Ignore non-text updates; the turn path currently expects text content.
		return
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	inbound := bus.InboundMessage{
		Channel:  channelName,
		SenderID: senderID,
		ChatID:   chatID,
		IsGroup:  isGroupChat(message.Chat.Type),
		Content:  content,
		Metadata: map[string]string{
			"update_id": strconv.Itoa(update.UpdateID),
		},
	}

	a.log.Info("Received message", "chat_id", chatID, "sender_id", senderID, "is_group", inbound.IsGroup, "content", previewText(content))

	if !a.messages.PublishInbound(ctx, inbound) {
		a.log.Warn("Dropped inbound message, bus unavailable", "chat_id", chatID)
	}
}

// Send delivers one outbound text to a Telegram chat. Satisfies channel.Sender.
func (a *Adapter) Send(ctx context.Context, target string, text string) error {
	bot := a.currentBot()
	if bot == nil {
		return errors.New("telegram bot is not running")
	}

	chatID, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram target %q: %w", target, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("refusing to send empty message")
	}

	a.log.Info("Sending message", "chat_id", chatID, "content", previewText(text))
	if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}

// SetTyping starts or stops the typing indicator for a chat. Satisfies
// channel.Presence. Failures are logged at debug level and swallowed.
func (a *Adapter) SetTyping(ctx context.Context, target string, active bool) {
	if active {
		a.startTyping(ctx, target)
		return
	}
	a.stopTyping(target)
}

func (a *Adapter) startTyping(ctx context.Context, target string) {
	bot := a.currentBot()
	if bot == nil {
		return
	}

	chatID, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		a.log.Debug("Ignoring typing signal for invalid target", "target", target)
		return
	}

	a.mu.Lock()
	if _, running := a.typing[target]; running {
		a.mu.Unlock()
		return
	}
	base := a.runCtx
	if base == nil {
		base = ctx
	}
	typingCtx, cancel := context.WithCancel(base)
	a.typing[target] = cancel
	a.mu.Unlock()

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	// Telegram drops the indicator after ~5s; refresh until stopped.
	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()
}

func (a *Adapter) stopTyping(target string) {
	a.mu.Lock()
	cancel, ok := a.typing[target]
	if ok {
		delete(a.typing, target)
	}
	a.mu.Unlock()

	if ok {
		cancel()
	}
}

func (a *Adapter) currentBot() *telego.Bot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bot
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

func isGroupChat(chatType string) bool {
	switch chatType {
	case telego.ChatTypeGroup, telego.ChatTypeSupergroup:
		return true
	default:
		return false
	}
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
