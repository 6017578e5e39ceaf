package gateway

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/harun/skagent/pkg/runstate"
)

// ConversationHeader carries the conversation id when the body has none
const ConversationHeader = "X-Conversation-Id"

// TraceHeader carries an upstream trace id
const TraceHeader = "X-Trace-Id"

var errEmptyInput = errors.New("input is required")

// RunRequest is the body of every run endpoint. A bare JSON string is
// accepted as the input.
type RunRequest struct {
	Input          string `json:"input"`
	ConversationID string `json:"conversationId,omitempty"`
}

// UnmarshalJSON accepts either {"input": "..."} or "..."
func (r *RunRequest) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*r = RunRequest{}
		return json.Unmarshal(data, &r.Input)
	}
	type plain RunRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RunRequest(p)
	return nil
}

// RunResponse is the JSON result of a run
type RunResponse struct {
	runstate.Result
	ProfileSnapshot map[string]string `json:"profileSnapshot"`
}

// ErrorResponse is returned for rejected requests
type ErrorResponse struct {
	Error string `json:"error"`
}
