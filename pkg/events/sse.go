package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrStreamingUnsupported is returned when the response cannot be flushed
var ErrStreamingUnsupported = errors.New("response writer does not support flushing")

// SSESink streams events as text/event-stream frames
type SSESink struct {
	mu           sync.Mutex
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
}

// NewSSESink sets the stream headers on w. writeTimeout bounds each frame
// when positive.
func NewSSESink(w http.ResponseWriter, writeTimeout time.Duration) (*SSESink, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &SSESink{w: w, rc: http.NewResponseController(w), writeTimeout: writeTimeout}, nil
}

// Emit writes one event frame. Frames never interleave.
func (s *SSESink) Emit(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt.Envelope())
	if err != nil {
		return err
	}
	return s.write(ctx, string(evt.Type), data)
}

// Send writes an arbitrary named frame, such as the final result
func (s *SSESink) Send(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(ctx, name, data)
}

func (s *SSESink) write(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.writeTimeout > 0 {
		// Not every writer supports deadlines; the frame is still written.
		_ = s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}

	if _, err := fmt.Fprintf(s.w, "event:%s\ndata:%s\n\n", name, data); err != nil {
		return err
	}
	return s.rc.Flush()
}
