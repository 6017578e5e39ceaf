package memory

import (
	"context"
	"strings"
	"sync"
)

// InMemory implements ShortTermMemory and ProfileStore in process memory
type InMemory struct {
	mu       sync.RWMutex
	maxTurns int
	turns    map[string][]TurnRecord
	profiles map[string]map[string]string
}

// NewInMemory creates an in-memory store keeping maxTurns turns per
// conversation. Non-positive values use DefaultMaxTurns.
func NewInMemory(maxTurns int) *InMemory {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &InMemory{
		maxTurns: maxTurns,
		turns:    make(map[string][]TurnRecord),
		profiles: make(map[string]map[string]string),
	}
}

// Append adds a turn, evicting the oldest when over capacity
func (m *InMemory) Append(ctx context.Context, conversationID string, turn TurnRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.turns[conversationID], cloneTurn(turn))
	if over := len(list) - m.maxTurns; over > 0 {
		list = append([]TurnRecord(nil), list[over:]...)
	}
	m.turns[conversationID] = list
	return nil
}

// Recent returns up to take turns, newest first
func (m *InMemory) Recent(ctx context.Context, conversationID string, take int) ([]TurnRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if take < 0 {
		take = 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.turns[conversationID]
	out := make([]TurnRecord, 0, min(take, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < take; i-- {
		out = append(out, cloneTurn(list[i]))
	}
	return out, nil
}

// Clear drops every turn of a conversation
func (m *InMemory) Clear(ctx context.Context, conversationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.turns, conversationID)
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the profile
func (m *InMemory) Get(ctx context.Context, conversationID string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.profiles[conversationID]))
	for k, v := range m.profiles[conversationID] {
		out[k] = v
	}
	return out, nil
}

// Upsert merges patch into the profile. Keys are stored lowercased.
func (m *InMemory) Upsert(ctx context.Context, conversationID string, patch map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	profile, ok := m.profiles[conversationID]
	if !ok {
		profile = make(map[string]string, len(patch))
		m.profiles[conversationID] = profile
	}
	for k, v := range patch {
		profile[strings.ToLower(k)] = v
	}
	return nil
}

func cloneTurn(t TurnRecord) TurnRecord {
	t.Steps = append([]StepRecord(nil), t.Steps...)
	return t
}
