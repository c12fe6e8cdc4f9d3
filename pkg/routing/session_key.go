package routing

import "strings"

// SessionKind classifies what a session key identifies.
type SessionKind string

const (
	SessionDirect   SessionKind = "direct"
	SessionGroup    SessionKind = "group"
	SessionPrimary  SessionKind = "primary"
	SessionIsolated SessionKind = "isolated"
	SessionCron     SessionKind = "cron"
)

// SessionKey identifies one unit of serialized conversation state. Two events
// carry the same key exactly when their turns must never run concurrently.
//
// The type is comparable so it can key the active-turn registry and the
// executor's guard table directly.
type SessionKey struct {
	Kind    SessionKind
	Channel string
	ID      string
}

// DirectKey identifies a one-on-one conversation by its stable sender identity.
func DirectKey(channel, senderID string) SessionKey {
	return SessionKey{Kind: SessionDirect, Channel: strings.TrimSpace(channel), ID: strings.TrimSpace(senderID)}
}

// GroupKey identifies a group conversation by its stable chat identity.
func GroupKey(channel, chatID string) SessionKey {
	return SessionKey{Kind: SessionGroup, Channel: strings.TrimSpace(channel), ID: strings.TrimSpace(chatID)}
}

// PrimaryKey identifies the singleton session shared by primary users across
// channels.
func PrimaryKey() SessionKey {
	return SessionKey{Kind: SessionPrimary}
}

// IsolatedKey identifies an ad-hoc session that shares state with nothing else.
func IsolatedKey(id string) SessionKey {
	return SessionKey{Kind: SessionIsolated, ID: strings.TrimSpace(id)}
}

// CronKey identifies the session owned by one named cron job.
func CronKey(jobName string) SessionKey {
	return SessionKey{Kind: SessionCron, ID: strings.TrimSpace(jobName)}
}

func (k SessionKey) String() string {
	switch k.Kind {
	case SessionPrimary:
		return "primary"
	case SessionCron:
		return "cron:" + k.ID
	case SessionIsolated:
		return "isolated:" + k.ID
	default:
		if k.Channel == "" {
			return string(k.Kind) + ":" + k.ID
		}
		return k.Channel + ":" + string(k.Kind) + ":" + k.ID
	}
}

// IsZero reports whether the key is unset.
func (k SessionKey) IsZero() bool {
	return k == SessionKey{}
}
