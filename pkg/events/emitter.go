package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/harun/skagent/internal/metrics"
	"github.com/rs/zerolog"
)

// Sequencer hands out event sequence numbers for one run
type Sequencer interface {
	RunID() string
	NextEventSequence() int64
}

// Emitter stamps events for one run and forwards them to a sink
type Emitter struct {
	run     Sequencer
	sink    Sink
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEmitter creates an emitter. A nil sink discards events.
func NewEmitter(run Sequencer, sink Sink, logger zerolog.Logger) *Emitter {
	if sink == nil {
		sink = NullSink{}
	}
	return &Emitter{
		run:    run,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// WithMetrics counts emitted events and sink failures
func (e *Emitter) WithMetrics(m *metrics.Metrics) *Emitter {
	e.metrics = m
	return e
}

// Emit assigns the next sequence number and delivers the event. Sink
// failures are logged and never returned.
func (e *Emitter) Emit(ctx context.Context, typ Type, payload any) Event {
	evt := Event{
		RunID:     e.run.RunID(),
		Seq:       e.run.NextEventSequence(),
		Timestamp: e.now().UTC(),
		Type:      typ,
		Payload:   encodePayload(payload),
	}

	err := e.sink.Emit(ctx, evt)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("run_id", evt.RunID).
			Str("event", string(typ)).
			Int64("seq", evt.Seq).
			Msg("Event sink failed")
	}
	e.metrics.ObserveEvent(string(typ), err)
	return evt
}

func encodePayload(payload any) json.RawMessage {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`)
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage(`{}`)
		}
		return p
	}

	data, err := json.Marshal(payload)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"encodeError": err.Error()})
	}
	return data
}
