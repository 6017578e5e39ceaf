package memory

import (
	"context"
	"time"
)

// DefaultMaxTurns is the per-conversation retention used when none is configured
const DefaultMaxTurns = 20

// TurnRecord is one user request and the assistant answer for it
type TurnRecord struct {
	At              time.Time    `json:"at"`
	UserInput       string       `json:"user_input"`
	AssistantOutput string       `json:"assistant_output"`
	Goal            string       `json:"goal"`
	Steps           []StepRecord `json:"steps,omitempty"`
}

// StepRecord summarizes one executed step of a turn
type StepRecord struct {
	Order       int    `json:"order"`
	Target      string `json:"target"`
	Instruction string `json:"instruction,omitempty"`
	Output      string `json:"output"`
	Status      string `json:"status"`
}

// ShortTermMemory keeps the recent turns of each conversation
type ShortTermMemory interface {
	Append(ctx context.Context, conversationID string, turn TurnRecord) error
	// Recent returns up to take turns, newest first
	Recent(ctx context.Context, conversationID string, take int) ([]TurnRecord, error)
	Clear(ctx context.Context, conversationID string) error
}

// ProfileStore keeps per-conversation user facts
type ProfileStore interface {
	// Get returns a copy of the profile; missing profiles are empty, not nil
	Get(ctx context.Context, conversationID string) (map[string]string, error)
	Upsert(ctx context.Context, conversationID string, patch map[string]string) error
}
