package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klingon-exchange/fusion-resolver/internal/order"
)

// OrderEvent is one entry in an order's audit trail.
type OrderEvent struct {
	ID        string    `json:"id"`
	OrderHash string    `json:"orderHash"`
	Type      string    `json:"type"`
	Data      string    `json:"data,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordEvent appends an event. A missing ID or timestamp is filled in.
func (s *Storage) RecordEvent(ev *OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO order_events (id, order_hash, event_type, data, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ev.ID, ev.OrderHash, ev.Type, ev.Data, ev.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// ListEvents returns an order's events, oldest first.
func (s *Storage) ListEvents(hash order.Hash) ([]*OrderEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, order_hash, event_type, data, created_at
		FROM order_events
		WHERE order_hash = ?
		ORDER BY created_at ASC
	`, hash.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*OrderEvent
	for rows.Next() {
		var ev OrderEvent
		var data *string
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.OrderHash, &ev.Type, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if data != nil {
			ev.Data = *data
		}
		ev.CreatedAt = time.Unix(0, createdAt)
		events = append(events, &ev)
	}
	return events, rows.Err()
}
