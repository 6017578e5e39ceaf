package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harun/skagent/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvoker(t *testing.T, tools ...Tool) (*Invoker, *metrics.Metrics) {
	t.Helper()
	reg := NewRegistry()
	for _, tool := range tools {
		require.NoError(t, reg.Register(tool))
	}
	m := metrics.NewMetrics()
	return NewInvoker(reg, WithInvokerMetrics(m), WithInvokerLogger(zerolog.Nop())), m
}

func funcTool(name string, timeout time.Duration, fn Func) *FunctionTool {
	return NewFunctionTool(Descriptor{Name: name, Timeout: timeout}, fn)
}

func TestInvokeToolNotFound(t *testing.T) {
	inv, m := newTestInvoker(t)

	for i := 0; i < 3; i++ {
		res := inv.Invoke(context.Background(), Invocation{ToolName: "nope"})
		assert.False(t, res.Success)
		require.NotNil(t, res.Error)
		assert.Equal(t, CodeToolNotFound, res.Error.Code)
		require.NotNil(t, res.Metrics)
		assert.Equal(t, int64(0), res.Metrics.LatencyMs)
		assert.JSONEq(t, `{}`, string(res.Output))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ToolExecutionErrorsTotal.WithLabelValues(unknownToolLabel, CodeToolNotFound)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ToolExecutionErrorsTotal))
}

func TestInvokeSuccessAttachesLatency(t *testing.T) {
	inv, m := newTestInvoker(t, StringUpperTool())

	res := inv.Invoke(context.Background(), Invocation{
		RunID:     "r1",
		StepID:    "step-1",
		ToolName:  "STRING.UPPER",
		Arguments: json.RawMessage(`{"text":"hello"}`),
	})

	require.True(t, res.Success)
	assert.Nil(t, res.Error)
	assert.JSONEq(t, `{"result":"HELLO"}`, string(res.Output))
	require.NotNil(t, res.Metrics)
	assert.GreaterOrEqual(t, res.Metrics.LatencyMs, int64(0))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("string.upper", "success")))
}

func TestInvokeKeepsToolSuppliedMetrics(t *testing.T) {
	tool := funcTool("measured", 0, func(ctx context.Context, args json.RawMessage) (any, error) {
		return Result{Success: true, Output: json.RawMessage(`{"ok":true}`), Metrics: &Metrics{LatencyMs: 999}}, nil
	})
	inv, _ := newTestInvoker(t, tool)

	res := inv.Invoke(context.Background(), Invocation{ToolName: "measured"})
	require.True(t, res.Success)
	assert.Equal(t, int64(999), res.Metrics.LatencyMs)
}

func TestInvokeInvalidArguments(t *testing.T) {
	inv, _ := newTestInvoker(t, StringUpperTool())

	res := inv.Invoke(context.Background(), Invocation{ToolName: "string.upper", Arguments: json.RawMessage(`{"text":5}`)})
	assert.False(t, res.Success)
	assert.Equal(t, CodeInvalidArguments, res.Error.Code)

	res = inv.Invoke(context.Background(), Invocation{ToolName: "string.upper"})
	assert.Equal(t, CodeInvalidArguments, res.Error.Code)
}

func TestInvokeTimeout(t *testing.T) {
	slow := funcTool("slow", 20*time.Millisecond, func(ctx context.Context, args json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	inv, _ := newTestInvoker(t, slow)

	res := inv.Invoke(context.Background(), Invocation{ToolName: "slow"})
	assert.False(t, res.Success)
	assert.Equal(t, CodeToolTimeout, res.Error.Code)
	assert.Equal(t, int64(20), res.Error.Details["timeoutMs"])
	assert.JSONEq(t, `{}`, string(res.Output))
}

func TestInvokeTimeoutToolIgnoringContext(t *testing.T) {
	stubborn := funcTool("stubborn", 20*time.Millisecond, func(ctx context.Context, args json.RawMessage) (any, error) {
		time.Sleep(200 * time.Millisecond)
		return "late", nil
	})
	inv, _ := newTestInvoker(t, stubborn)

	start := time.Now()
	res := inv.Invoke(context.Background(), Invocation{ToolName: "stubborn"})
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, CodeToolTimeout, res.Error.Code)
}

func TestInvokeCallerCancellationIsNotTimeout(t *testing.T) {
	blocking := funcTool("blocking", time.Second, func(ctx context.Context, args json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	inv, _ := newTestInvoker(t, blocking)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := inv.Invoke(ctx, Invocation{ToolName: "blocking"})
	assert.False(t, res.Success)
	assert.Equal(t, CodeToolException, res.Error.Code)
	assert.Equal(t, "context.Canceled", res.Error.Details["type"])
}

func TestInvokeException(t *testing.T) {
	failing := funcTool("failing", 0, func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})
	inv, _ := newTestInvoker(t, failing)

	res := inv.Invoke(context.Background(), Invocation{ToolName: "failing"})
	assert.False(t, res.Success)
	assert.Equal(t, CodeToolException, res.Error.Code)
	assert.Equal(t, "boom", res.Error.Message)
	assert.Equal(t, "*errors.errorString", res.Error.Details["type"])
}

func TestInvokeRecoversPanic(t *testing.T) {
	panicky := funcTool("panicky", 0, func(ctx context.Context, args json.RawMessage) (any, error) {
		panic("kaboom")
	})
	inv, _ := newTestInvoker(t, panicky)

	var res Result
	assert.NotPanics(t, func() {
		res = inv.Invoke(context.Background(), Invocation{ToolName: "panicky"})
	})
	assert.Equal(t, CodeToolException, res.Error.Code)
	assert.Equal(t, true, res.Error.Details["panic"])
}

func TestInvokeNormalizesUnreportedFailure(t *testing.T) {
	sloppy := funcTool("sloppy", 0, func(ctx context.Context, args json.RawMessage) (any, error) {
		return Result{Success: false}, nil
	})
	inv, _ := newTestInvoker(t, sloppy)

	res := inv.Invoke(context.Background(), Invocation{ToolName: "sloppy"})
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeUnreportedFailure, res.Error.Code)
	assert.JSONEq(t, `{}`, string(res.Output))
}

func TestInvokePolicy(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(StringUpperTool()))
	inv := NewInvoker(reg, WithPolicy(&Policy{Deny: []string{"string.upper"}}), WithInvokerLogger(zerolog.Nop()))

	res := inv.Invoke(context.Background(), Invocation{ToolName: "string.upper", Arguments: json.RawMessage(`{"text":"x"}`)})
	assert.Equal(t, CodeToolNotAllowed, res.Error.Code)
}

func TestBuiltinTimeNow(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, BuiltinOptions{Now: func() time.Time { return fixed }}))
	inv := NewInvoker(reg, WithInvokerLogger(zerolog.Nop()))

	res := inv.Invoke(context.Background(), Invocation{ToolName: "time.now", Arguments: json.RawMessage(`{"timezone":"Asia/Singapore"}`)})
	require.True(t, res.Success)
	var out map[string]any
	require.NoError(t, json.Unmarshal(res.Output, &out))
	assert.Equal(t, "2026-03-01T20:00:00+08:00", out["now"])
	assert.Equal(t, "Asia/Singapore", out["timezone"])

	res = inv.Invoke(context.Background(), Invocation{ToolName: "time.now", Arguments: json.RawMessage(`{"timezone":"Mars/Base"}`)})
	assert.False(t, res.Success)
	assert.Equal(t, "invalid_timezone", res.Error.Code)

	names := []string{}
	for _, d := range reg.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"http.request", "string.upper", "time.now", "web.read"}, names)
}

func TestHTTPTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("hello " + r.Method))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("missing"))
		}
	}))
	defer srv.Close()

	tool := NewHTTPTool(HTTPRequestDescriptor(time.Second), srv.Client(), URLPolicy{AllowLocalhost: true})
	inv, _ := newTestInvoker(t, tool)

	res := inv.Invoke(context.Background(), Invocation{ToolName: "http.request", Arguments: json.RawMessage(`{"url":"` + srv.URL + `/ok","method":"post","body":{"a":1}}`)})
	require.True(t, res.Success)
	assert.JSONEq(t, `{"status":200,"text":"hello POST"}`, string(res.Output))

	res = inv.Invoke(context.Background(), Invocation{ToolName: "http.request", Arguments: json.RawMessage(`{"url":"` + srv.URL + `/nope"}`)})
	assert.False(t, res.Success)
	assert.Equal(t, CodeHTTPError, res.Error.Code)
	assert.Equal(t, "HTTP 404", res.Error.Message)
	assert.JSONEq(t, `{"status":404,"text":"missing"}`, string(res.Output))
}

func TestHTTPToolBlocksLocalhostByDefault(t *testing.T) {
	tool := NewHTTPTool(HTTPRequestDescriptor(time.Second), nil, URLPolicy{})
	res, err := tool.Invoke(context.Background(), json.RawMessage(`{"url":"http://localhost:1"}`))
	require.NoError(t, err)
	assert.Equal(t, CodeURLBlocked, res.Error.Code)
}

func TestPageTextToolValidatesBeforeLaunch(t *testing.T) {
	tool := NewPageTextTool(BrowserOptions{}, URLPolicy{})
	res, err := tool.Invoke(context.Background(), json.RawMessage(`{"url":"file:///etc/hosts"}`))
	require.NoError(t, err)
	assert.Equal(t, CodeURLBlocked, res.Error.Code)
	assert.Equal(t, "web.page_text", tool.Descriptor().Name)
	assert.NoError(t, tool.Close())
}

const articleHTML = `<!DOCTYPE html>
<html><head><title>Tide Tables</title>
<meta name="description" content="How tides are predicted"></head>
<body>
<nav><a href="/">Home</a> | <a href="/about">About</a></nav>
<article>
<h1>Tide Tables</h1>
<p>Tides are the rise and fall of sea levels caused by the combined effects of the gravitational forces exerted by the Moon and the Sun and the rotation of the Earth.</p>
<p>Tide tables can be used for any given locale to find the predicted times and amplitude. The predictions are influenced by many factors including the alignment of the Sun and Moon, the phase and amplitude of the tide, and the shape of the coastline.</p>
<p>Harbour masters publish these tables every year so that sailors can plan safe passage in and out of shallow ports.<script>alert(1)</script></p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestReaderTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	tool := NewReaderTool(srv.Client(), URLPolicy{AllowLocalhost: true}, time.Second, 0)
	inv, _ := newTestInvoker(t, tool)

	res := inv.Invoke(context.Background(), Invocation{ToolName: "web.read", Arguments: json.RawMessage(`{"url":"` + srv.URL + `/tides"}`)})
	require.True(t, res.Success, res.Error.String())

	var out readerOutput
	require.NoError(t, json.Unmarshal(res.Output, &out))
	assert.Equal(t, srv.URL+"/tides", out.URL)
	assert.Contains(t, out.Title, "Tide Tables")
	assert.Contains(t, out.Text, "gravitational forces")
	assert.NotContains(t, out.Text, "<script>")
	assert.False(t, out.Truncated)

	res = inv.Invoke(context.Background(), Invocation{ToolName: "web.read", Arguments: json.RawMessage(`{"url":"` + srv.URL + `/gone"}`)})
	assert.False(t, res.Success)
	assert.Equal(t, CodeHTTPError, res.Error.Code)
	assert.Equal(t, "HTTP 410", res.Error.Message)
}

func TestReaderToolTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	tool := NewReaderTool(srv.Client(), URLPolicy{AllowLocalhost: true}, time.Second, 20)
	res, err := tool.Invoke(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`"}`))
	require.NoError(t, err)
	require.True(t, res.Success)

	var out readerOutput
	require.NoError(t, json.Unmarshal(res.Output, &out))
	assert.True(t, out.Truncated)
	assert.Len(t, []rune(out.Text), 20)
}

func TestReaderToolBlocksDisallowedDomain(t *testing.T) {
	tool := NewReaderTool(nil, URLPolicy{AllowedDomains: []string{"example.org"}}, time.Second, 0)
	res, err := tool.Invoke(context.Background(), json.RawMessage(`{"url":"https://example.com/a"}`))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeURLBlocked, res.Error.Code)
	assert.JSONEq(t, `{}`, string(res.Output))
}
