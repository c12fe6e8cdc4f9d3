package routing

import (
	"log/slog"
	"strings"

	"concierge/pkg/bus"
	"concierge/pkg/config"
)

// User is one resolved originator identity.
type User struct {
	Name    string
	Trust   TrustLevel
	Primary bool
}

// RoutingDecision is the per-event output of the router: which session the
// event belongs to, how much the originator is trusted, and who they resolved
// to (nil for unknown senders).
type RoutingDecision struct {
	SessionKey SessionKey
	Trust      TrustLevel
	User       *User
}

// Router resolves inbound events against the configured user registry. It is
// stateless after construction; Resolve is a pure function of the event.
type Router struct {
	users map[userKey]User
}

type userKey struct {
	channel  string
	senderID string
}

// NewRouter indexes configured users by channel and sender identity. Users
// with an unparsable trust level are registered as public and logged.
func NewRouter(users []config.UserConfig, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "routing.router")

	indexed := make(map[userKey]User, len(users))
	for _, u := range users {
		trust, err := ParseTrust(u.Trust)
		if err != nil {
			log.Warn("User has unknown trust level, treating as public", "user", u.Name, "trust", u.Trust)
		}

		key := userKey{
			channel:  strings.TrimSpace(u.Channel),
			senderID: strings.TrimSpace(u.SenderID),
		}
		indexed[key] = User{Name: strings.TrimSpace(u.Name), Trust: trust, Primary: u.Primary}
	}

	return &Router{users: indexed}
}

// Resolve maps one inbound event to its routing decision.
//
// Group chats always serialize on the group identity regardless of sender.
// Direct messages from a primary user collapse into the shared primary
// session; everyone else gets a per-sender direct session.
func (r *Router) Resolve(msg bus.InboundMessage) RoutingDecision {
	user, known := r.lookup(msg.Channel, msg.SenderID)

	decision := RoutingDecision{Trust: TrustPublic}
	if known {
		decision.Trust = user.Trust
		decision.User = &user
	}

	if msg.IsGroup {
		decision.SessionKey = GroupKey(msg.Channel, msg.ChatID)
		return decision
	}

	if known && user.Primary {
		decision.SessionKey = PrimaryKey()
		return decision
	}

	decision.SessionKey = DirectKey(msg.Channel, msg.SenderID)
	return decision
}

func (r *Router) lookup(channel, senderID string) (User, bool) {
	user, ok := r.users[userKey{
		channel:  strings.TrimSpace(channel),
		senderID: strings.TrimSpace(senderID),
	}]
	return user, ok
}
