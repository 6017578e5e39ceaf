package llm

import (
	"context"
	"sync"
)

// StaticProvider answers every request with a fixed reply or error. It is
// used for offline runs and tests.
type StaticProvider struct {
	Reply string
	Err   error

	mu       sync.Mutex
	requests []Request
}

// Name returns the provider name
func (p *StaticProvider) Name() string {
	return "static"
}

// Generate records the request and returns the configured reply
func (p *StaticProvider) Generate(ctx context.Context, request Request) (*Response, error) {
	p.mu.Lock()
	p.requests = append(p.requests, request)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return &Response{Content: p.Reply}, nil
}

// Requests returns the recorded requests
func (p *StaticProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}
