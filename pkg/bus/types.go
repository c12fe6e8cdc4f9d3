package bus

// InboundMessage is one event received from a transport adapter or the cron
// scheduler. Routing decides which session it belongs to; the bus itself is
// agnostic.
type InboundMessage struct {
	Channel  string            `json:"channel"`
	SenderID string            `json:"sender_id"`
	ChatID   string            `json:"chat_id"`
	IsGroup  bool              `json:"is_group,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
