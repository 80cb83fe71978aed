package events

import "context"

// StreamContest is the Redis channel contest pipeline events are published on.
const StreamContest = "events:contest"

// Event types
const (
	EventContestCompleted   = "contest_completed"
	EventSettlementCreated  = "settlement_created"
	EventPayoutJobScheduled = "payout_job_scheduled"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
