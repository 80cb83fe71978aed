package models

import (
	"time"

	"github.com/google/uuid"
)

// Outbox event types
const (
	EventContestCompleted = "contest_completed"
)

type OutboxEvent struct {
	ID           int64          `json:"id"`
	EventType    string         `json:"event_type"`
	AggregateID  uuid.UUID      `json:"aggregate_id"`
	Payload      map[string]any `json:"payload"`
	Attempts     int            `json:"attempts"`
	LastError    *string        `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	DispatchedAt *time.Time     `json:"dispatched_at,omitempty"`
}
