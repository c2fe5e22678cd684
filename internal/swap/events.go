package swap

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the orchestrator and monitor.
const (
	EventOrderCreated        = "order.created"
	EventOrderEscrowsCreated = "order.escrows_created"
	EventOrderPayout         = "order.payout"
	EventOrderCompleted      = "order.completed"
	EventOrderFailed         = "order.failed"
	EventOrderCancelled      = "order.cancelled"
)

// Event is an order lifecycle notification. Data never carries the secret.
type Event struct {
	ID        string                 `json:"id"`
	OrderHash string                 `json:"orderHash"`
	Type      string                 `json:"type"`
	Status    Status                 `json:"status"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler receives events. Handlers run on their own goroutine.
type EventHandler func(Event)

// Emitter fans events out to registered handlers.
type Emitter struct {
	mu       sync.RWMutex
	handlers []EventHandler
}

// OnEvent registers an event handler.
func (e *Emitter) OnEvent(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// emit sends an event for rec to all handlers.
func (e *Emitter) emit(eventType string, rec *OrderRecord, data map[string]interface{}) {
	event := Event{
		ID:        uuid.New().String(),
		OrderHash: rec.OrderHash.Hex(),
		Type:      eventType,
		Status:    rec.Status,
		Data:      data,
		Timestamp: time.Now(),
	}

	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}
