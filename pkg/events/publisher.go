// Package events is the in-process notification bus between session
// replicas and their observers (the websocket hub, the UI layer).
package events

import "sync"

// EventType represents the type of notification
type EventType string

// Notification types published by session replicas
const (
	EventSessionCreated  EventType = "SESSION_CREATED"
	EventMoveApplied     EventType = "MOVE_APPLIED"
	EventClockUpdated    EventType = "CLOCK_UPDATED"
	EventRequestPending  EventType = "REQUEST_PENDING"
	EventRequestResolved EventType = "REQUEST_RESOLVED"
	EventGameOver        EventType = "GAME_OVER"
	EventReplicaFailed   EventType = "REPLICA_FAILED"

	EventConnectionClosed EventType = "CONNECTION_CLOSED"
)

// Event represents a notification in the system
type Event struct {
	Type      EventType
	SessionID string // Optional, empty for non-session events
	Payload   interface{}
}

// Handler is a function that processes notifications
type Handler func(event Event)

// Publisher is the central notification publisher
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
}

// NewPublisher creates a new publisher
func NewPublisher() *Publisher {
	return &Publisher{
		subscribers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a specific notification type
func (p *Publisher) Subscribe(eventType EventType, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers[eventType] = append(p.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every notification type
func (p *Publisher) SubscribeAll(handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers["*"] = append(p.subscribers["*"], handler)
}

// Publish broadcasts a notification to all matching subscribers
func (p *Publisher) Publish(event Event) {
	p.mu.RLock()
	handlers := p.subscribers[event.Type]
	allHandlers := p.subscribers["*"]
	p.mu.RUnlock()

	// Call all handlers concurrently
	for _, handler := range handlers {
		go handler(event)
	}

	for _, handler := range allHandlers {
		go handler(event)
	}
}
