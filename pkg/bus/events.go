package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventTurnStarted        EventType = "turn_started"
	EventTurnSkipped        EventType = "turn_skipped"
	EventTurnCompleted      EventType = "turn_completed"
	EventTurnFailed         EventType = "turn_failed"
	EventCronFired          EventType = "cron_fired"
	EventDeliverySent       EventType = "delivery_sent"
	EventDeliverySkipped    EventType = "delivery_skipped"
	EventDeliverySuppressed EventType = "delivery_suppressed"
)

// Event is one observable gateway lifecycle notification.
type Event struct {
	Type       EventType         `json:"type"`
	At         time.Time         `json:"at"`
	Channel    string            `json:"channel,omitempty"`
	SessionKey string            `json:"session_key,omitempty"`
	Job        string            `json:"job,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// PublishEvent fans an event out to all subscribers. Slow subscribers drop
// events instead of blocking the publisher.
func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	// The sends must happen under the lock: unsubscribe and Close close
	// subscriber channels while holding the write lock, so releasing it
	// before sending would race a send against a close. The sends are
	// non-blocking, so holding the read lock here cannot stall anyone.
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	for _, ch := range mb.eventSubscribers {
		select {
		case ch <- event:
		default:
		}
	}

	return true
}

// SubscribeEvents registers an event observer. The returned cancel function is
// idempotent and also runs when ctx ends or the bus closes.
func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if eventCh, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(eventCh)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
