package service

// EventType defines the type of event.
type EventType string

const (
	EventTopologyRefreshed EventType = "topology_refreshed"
	EventSourcesDegraded   EventType = "sources_degraded"
	EventStaleServed       EventType = "stale_served"
)

// Event represents an event that occurred in the system.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventBus allows publishing and subscribing to events.
type EventBus struct {
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus. Subscribe before publishing
// begins; the subscriber list is not guarded for concurrent mutation.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events.
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.subscribers = append(eb.subscribers, ch)
}

// Publish sends an event to all subscribers. Slow subscribers are
// skipped rather than blocked on.
func (eb *EventBus) Publish(event Event) {
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
