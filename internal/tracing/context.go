package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IDs are the correlation identifiers carried through a run
type IDs struct {
	TraceID        string
	RunID          string
	ConversationID string
}

type idsKey struct{}

// FromContext returns the identifiers stored in ctx, zero when none
func FromContext(ctx context.Context) IDs {
	if ctx == nil {
		return IDs{}
	}
	ids, _ := ctx.Value(idsKey{}).(IDs)
	return ids
}

// NewContext stores ids in ctx, replacing what was there
func NewContext(ctx context.Context, ids IDs) context.Context {
	return context.WithValue(ctx, idsKey{}, ids)
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID sets the trace ID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	ids := FromContext(ctx)
	ids.TraceID = traceID
	return NewContext(ctx, ids)
}

// WithConversationID sets the conversation ID
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	ids := FromContext(ctx)
	ids.ConversationID = conversationID
	return NewContext(ctx, ids)
}

func GetTraceID(ctx context.Context) string        { return FromContext(ctx).TraceID }
func GetRunID(ctx context.Context) string          { return FromContext(ctx).RunID }
func GetConversationID(ctx context.Context) string { return FromContext(ctx).ConversationID }

// NewRequestContext gives an inbound request a trace ID unless it already
// carries one
func NewRequestContext(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, NewTraceID())
}

// NewRunContext tags ctx with the identifiers of one run. An empty
// conversation ID keeps the one already present.
func NewRunContext(ctx context.Context, runID, conversationID string) context.Context {
	ids := FromContext(NewRequestContext(ctx))
	ids.RunID = runID
	if conversationID != "" {
		ids.ConversationID = conversationID
	}
	return NewContext(ctx, ids)
}

// CloneContext returns a background context carrying only the identifiers
// of ctx. Cancellation and deadlines are not inherited.
func CloneContext(ctx context.Context) context.Context {
	return NewContext(context.Background(), FromContext(ctx))
}

// LoggerFromContext adds the non-empty identifiers of ctx to base
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	ids := FromContext(ctx)
	if ids == (IDs{}) {
		return base
	}

	lc := base.With()
	if ids.TraceID != "" {
		lc = lc.Str("trace_id", ids.TraceID)
	}
	if ids.RunID != "" {
		lc = lc.Str("run_id", ids.RunID)
	}
	if ids.ConversationID != "" {
		lc = lc.Str("conversation_id", ids.ConversationID)
	}
	return lc.Logger()
}
