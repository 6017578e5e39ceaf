package events

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ResultFrame is the last frame of a websocket run stream
type ResultFrame struct {
	Type   string `json:"type"`
	Result any    `json:"result"`
}

// WebSocketSink writes event envelopes as JSON text frames
type WebSocketSink struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketSink wraps conn. writeTimeout defaults to 10s.
func NewWebSocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSink {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WebSocketSink{conn: conn, writeTimeout: writeTimeout}
}

// Emit writes one event frame
func (s *WebSocketSink) Emit(ctx context.Context, evt Event) error {
	return s.WriteJSON(ctx, evt.Envelope())
}

// WriteResult sends the closing result frame
func (s *WebSocketSink) WriteResult(ctx context.Context, result any) error {
	return s.WriteJSON(ctx, ResultFrame{Type: "result", Result: result})
}

// WriteJSON writes v under the sink's writer lock
func (s *WebSocketSink) WriteJSON(ctx context.Context, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}
