// Package observability keeps an append-only audit trail of run events.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/skagent/internal/tracing"
	"github.com/harun/skagent/pkg/events"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent is one line of the audit trail
type AuditEvent struct {
	Type           string          `json:"event_type"`
	Timestamp      time.Time       `json:"timestamp"`
	RunID          string          `json:"run_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Seq            int64           `json:"seq,omitempty"`
	TraceID        string          `json:"trace_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// AuditLogger writes audit events as JSON lines. It is an events.Sink, so it
// can sit next to the caller's sink for every run.
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	closer io.Closer
}

// NewAuditLogger writes to w
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{logger: zerolog.New(w)}
}

// OpenAuditLogger appends to the file at path, creating it when needed
func OpenAuditLogger(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	a := NewAuditLogger(file)
	a.closer = file
	return a, nil
}

// Record writes event. The trace id comes from the active span, falling back
// to the id carried by the context.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if sc := span.SpanContext(); sc.IsValid() {
		if event.TraceID == "" {
			event.TraceID = sc.TraceID().String()
		}
		span.AddEvent("audit."+event.Type, trace.WithAttributes(
			attribute.String("run.id", event.RunID),
			attribute.Int64("event.seq", event.Seq),
		))
	}
	if event.TraceID == "" {
		event.TraceID = tracing.GetTraceID(ctx)
	}
	if event.ConversationID == "" {
		event.ConversationID = tracing.GetConversationID(ctx)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("event_type", event.Type).
		Time("timestamp", event.Timestamp).
		Str("run_id", event.RunID).
		Str("conversation_id", event.ConversationID).
		Int64("seq", event.Seq)
	if event.TraceID != "" {
		entry.Str("trace_id", event.TraceID)
	}
	if len(event.Payload) > 0 {
		entry.RawJSON("payload", event.Payload)
	}
	entry.Send()
}

// Emit records a run event
func (a *AuditLogger) Emit(ctx context.Context, evt events.Event) error {
	a.Record(ctx, AuditEvent{
		Type:      string(evt.Type),
		Timestamp: evt.Timestamp,
		RunID:     evt.RunID,
		Seq:       evt.Seq,
		Payload:   evt.Payload,
	})
	return nil
}

// Close closes the underlying file, if any
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}
