// Package events assigns per-run sequence numbers to lifecycle events and
// delivers them to sinks.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Type tags an event
type Type string

const (
	RunStarted     Type = "run_started"
	PlanCreated    Type = "plan_created"
	StepStarted    Type = "step_started"
	StepCompleted  Type = "step_completed"
	StepFailed     Type = "step_failed"
	RetryScheduled Type = "retry_scheduled"
	RunCompleted   Type = "run_completed"
)

// Event is an immutable lifecycle notification for one run
type Event struct {
	RunID     string
	Seq       int64
	Timestamp time.Time
	Type      Type
	Payload   json.RawMessage
}

// Envelope is the wire form of an event
type Envelope struct {
	RunID   string          `json:"runId"`
	Seq     int64           `json:"seq"`
	TS      int64           `json:"ts"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Envelope converts the event to its wire form
func (e Event) Envelope() Envelope {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return Envelope{
		RunID:   e.RunID,
		Seq:     e.Seq,
		TS:      e.Timestamp.UnixMilli(),
		Type:    e.Type,
		Payload: payload,
	}
}

// MarshalJSON encodes the envelope
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Envelope())
}

// Sink receives events. Implementations must not block indefinitely.
type Sink interface {
	Emit(ctx context.Context, evt Event) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, evt Event) error

// Emit calls f
func (f SinkFunc) Emit(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}
