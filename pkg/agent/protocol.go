package agent

import (
	"context"
	"fmt"
	"time"
)

// Message is what a protocol executor sends to a remote agent
type Message struct {
	Agent   string
	Payload string
}

// ProtocolClient delivers a message and returns the reply
type ProtocolClient interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ProtocolExecutor forwards the step instruction over a ProtocolClient
type ProtocolExecutor struct {
	name        string
	description string
	client      ProtocolClient
}

// NewProtocolExecutor creates an executor named name backed by client
func NewProtocolExecutor(name, description string, client ProtocolClient) *ProtocolExecutor {
	return &ProtocolExecutor{name: name, description: description, client: client}
}

// NewMCPExecutor creates the "mcp" executor
func NewMCPExecutor(client ProtocolClient) *ProtocolExecutor {
	return NewProtocolExecutor("mcp", "Calls tools exposed over the model context protocol", client)
}

// NewA2AExecutor creates the "a2a" executor
func NewA2AExecutor(client ProtocolClient) *ProtocolExecutor {
	return NewProtocolExecutor("a2a", "Delegates the instruction to a peer agent", client)
}

func (p *ProtocolExecutor) Name() string        { return p.name }
func (p *ProtocolExecutor) Description() string { return p.description }

// Execute sends the instruction. Client failures are failed results.
func (p *ProtocolExecutor) Execute(ctx context.Context, execCtx *Context) (Result, error) {
	reply, err := p.client.Send(ctx, Message{Agent: p.name, Payload: execCtx.Input})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Failed("", fmt.Sprintf("%s: %v", p.name, err)), nil
	}
	return Succeeded(reply), nil
}

// LocalMCPClient simulates a remote MCP server
type LocalMCPClient struct {
	Delay time.Duration
}

// Send waits Delay (100ms when unset) and echoes the payload
func (c LocalMCPClient) Send(ctx context.Context, msg Message) (string, error) {
	delay := c.Delay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return fmt.Sprintf("[MCP:%s] %s", msg.Agent, msg.Payload), nil
	}
}

// LocalA2AChannel answers in-process
type LocalA2AChannel struct{}

// Send echoes the payload
func (LocalA2AChannel) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("[A2A:%s] %s", msg.Agent, msg.Payload), nil
}
