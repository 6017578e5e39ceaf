package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// NullSink discards events
type NullSink struct{}

// Emit does nothing
func (NullSink) Emit(context.Context, Event) error { return nil }

// CompositeSink fans out to every sink, collecting failures
type CompositeSink []Sink

// NewCompositeSink drops nil sinks
func NewCompositeSink(sinks ...Sink) CompositeSink {
	out := make(CompositeSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Emit delivers to every sink even when one fails
func (c CompositeSink) Emit(ctx context.Context, evt Event) error {
	var errs []error
	for _, s := range c {
		if err := s.Emit(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps every event
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit records evt
func (m *MemorySink) Emit(_ context.Context, evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

// Events returns recorded events in arrival order
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Types returns the type of every recorded event
func (m *MemorySink) Types() []Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Type, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// LogSink writes events to a zerolog logger
type LogSink struct {
	logger zerolog.Logger
	level  zerolog.Level
}

// NewLogSink logs events at level
func NewLogSink(logger zerolog.Logger, level zerolog.Level) *LogSink {
	return &LogSink{logger: logger, level: level}
}

// Emit logs evt
func (l *LogSink) Emit(_ context.Context, evt Event) error {
	l.logger.WithLevel(l.level).
		Str("run_id", evt.RunID).
		Int64("seq", evt.Seq).
		Str("event", string(evt.Type)).
		RawJSON("payload", evt.Envelope().Payload).
		Msg("Run event")
	return nil
}

// LineSink writes one JSON envelope per line
type LineSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewLineSink writes NDJSON to w
func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{enc: json.NewEncoder(w)}
}

// Emit writes evt followed by a newline
func (l *LineSink) Emit(_ context.Context, evt Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(evt.Envelope())
}
