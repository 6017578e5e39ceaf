package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextIDs(t *testing.T) {
	ctx := NewContext(context.Background(), IDs{TraceID: "t1", RunID: "r1", ConversationID: "c1"})

	ids := FromContext(ctx)
	assert.Equal(t, IDs{TraceID: "t1", RunID: "r1", ConversationID: "c1"}, ids)
	assert.Empty(t, GetRunID(context.Background()))

	ctx = WithConversationID(ctx, "c2")
	assert.Equal(t, "c2", GetConversationID(ctx))
	assert.Equal(t, "t1", GetTraceID(ctx), "setters keep the other ids")
}

func TestNewRunContextKeepsTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "existing")
	ctx = NewRunContext(ctx, "run-1", "conv-1")

	assert.Equal(t, "existing", GetTraceID(ctx))
	assert.Equal(t, "run-1", GetRunID(ctx))
	assert.Equal(t, "conv-1", GetConversationID(ctx))

	fresh := NewRunContext(context.Background(), "run-2", "")
	assert.NotEmpty(t, GetTraceID(fresh))
	assert.Empty(t, GetConversationID(fresh))
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := NewContext(context.Background(), IDs{TraceID: "t1", RunID: "r1"})
	cl := LoggerFromContext(ctx, base)
	cl.Info().Msg("hello")

	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "t1", fields["trace_id"])
	assert.Equal(t, "r1", fields["run_id"])
	assert.NotContains(t, fields, "conversation_id")
}

func TestCloneContextDropsCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(NewRunContext(context.Background(), "r1", ""), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	clone := CloneContext(ctx)
	assert.NoError(t, clone.Err())
	assert.Equal(t, "r1", GetRunID(clone))
}

func TestStartSpan(t *testing.T) {
	shutdown, err := Init(Config{Enabled: true, ServiceName: "skagent-test"})
	require.NoError(t, err)
	defer shutdown(context.Background())

	ctx, span := StartSpan(context.Background(), "test", "op")
	assert.NotEmpty(t, GetTraceID(ctx))
	EndSpan(span, errors.New("boom"))

	_, span = StartSpan(ctx, "test", "child")
	EndSpan(span, nil)
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
