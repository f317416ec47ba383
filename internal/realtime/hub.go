package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topic names one observable collection or channel.
type Topic string

const (
	TopicQuestions     Topic = "questionsUpdated"
	TopicSettings      Topic = "settingsUpdated"
	TopicUsers         Topic = "usersUpdated"
	TopicSessions      Topic = "userSessionsUpdated"
	TopicLockouts      Topic = "lockoutDataUpdated"
	TopicNotifications Topic = "systemNotification"
	// TopicChanged is the coarse event the revision watcher emits when the
	// store changed but the specific collection is unknown.
	TopicChanged Topic = "storeChanged"
)

// Event is one published change. Delivery is at-least-once and
// latest-value-only: a slow subscriber sees the newest event, not a log of
// every intermediate one.
type Event struct {
	Topic     Topic     `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Notification is an operator-facing message relayed over the hub.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // info, warning, error, success
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub is the in-process pub/sub fan-out for change events. It replaces the
// storage-event polling convenience layer: same semantics, explicit API.
type Hub struct {
	mu   sync.Mutex
	now  func() time.Time
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return NewHubWithClock(time.Now)
}

func NewHubWithClock(now func() time.Time) *Hub {
	return &Hub{now: now, subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel of events and a cancel function. The caller
// must invoke cancel to avoid leaks.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans an event out to every subscriber. When a subscriber's buffer
// is full the oldest pending event is dropped so the latest value always
// lands; slow clients never block the publisher.
func (h *Hub) Publish(topic Topic, payload any) {
	ev := Event{Topic: topic, Timestamp: h.now(), Payload: payload}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Notify publishes an operator notification.
func (h *Hub) Notify(kind, message string, details any) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Type:      kind,
		Message:   message,
		Details:   details,
		Timestamp: h.now(),
	}
	h.Publish(TopicNotifications, n)
	return n
}
