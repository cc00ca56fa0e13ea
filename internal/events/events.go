package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventJobFailed       = "job_failed"
	EventJobCompleted    = "job_completed"
	EventCheckinConflict = "checkin_conflict"
	EventSyncStarted     = "sync_started"
	EventSyncFinished    = "sync_finished"
)

// JobEventPayload describes a terminal job outcome for event consumers.
type JobEventPayload struct {
	JobID      string `json:"job_id"`
	Kind       string `json:"kind"`
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// CheckinConflictPayload names the title currently being watched.
type CheckinConflictPayload struct {
	WatchingTitle string    `json:"watching_title"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
