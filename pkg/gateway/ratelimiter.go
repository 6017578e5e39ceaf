package gateway

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrRateLimited means the conversation used its runs for the window
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrTooManyConcurrent means the conversation has too many runs in flight
	ErrTooManyConcurrent = errors.New("too many concurrent runs")
)

// sweepThreshold is the number of tracked conversations that triggers a
// sweep of idle windows
const sweepThreshold = 1024

// ConversationLimiter applies a sliding one-minute window and a concurrency
// cap to each conversation. Zero limits are not enforced.
type ConversationLimiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	maxConcurrent     int
	windows           map[string]*window
	now               func() time.Time
}

type window struct {
	requests   []time.Time
	concurrent int
}

// NewConversationLimiter creates a limiter
func NewConversationLimiter(requestsPerMinute, maxConcurrent int) *ConversationLimiter {
	return &ConversationLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		windows:           make(map[string]*window),
		now:               time.Now,
	}
}

// Acquire reserves a run slot for a conversation. The returned release
// func must be called when the run ends.
func (l *ConversationLimiter) Acquire(conversationID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.windows) >= sweepThreshold {
		l.sweep(now)
	}

	w, ok := l.windows[conversationID]
	if !ok {
		w = &window{}
		l.windows[conversationID] = w
	}
	w.trim(now)

	if l.maxConcurrent > 0 && w.concurrent >= l.maxConcurrent {
		return nil, ErrTooManyConcurrent
	}
	if l.requestsPerMinute > 0 && len(w.requests) >= l.requestsPerMinute {
		return nil, ErrRateLimited
	}

	w.requests = append(w.requests, now)
	w.concurrent++

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if w.concurrent > 0 {
				w.concurrent--
			}
		})
	}, nil
}

// Stats returns the requests in the current window and the runs in flight
func (l *ConversationLimiter) Stats(conversationID string) (requests, concurrent int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[conversationID]
	if !ok {
		return 0, 0
	}
	w.trim(l.now())
	return len(w.requests), w.concurrent
}

func (l *ConversationLimiter) sweep(now time.Time) {
	for id, w := range l.windows {
		w.trim(now)
		if w.concurrent == 0 && len(w.requests) == 0 {
			delete(l.windows, id)
		}
	}
}

// trim drops requests older than one minute
func (w *window) trim(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(w.requests) && !w.requests[i].After(cutoff) {
		i++
	}
	w.requests = w.requests[i:]
}
