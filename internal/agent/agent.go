package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"vibeterm/internal/llm"
	"vibeterm/internal/stream"
	"vibeterm/internal/tools"
)

// ChatStreamer is the slice of llm.Client the agent needs.
type ChatStreamer interface {
	ChatStream(ctx context.Context, req llm.ChatRequest, fn llm.StreamHandler) (*llm.ChatResponse, error)
}

const (
	defaultMaxTurns = 40
	rateLimitRetry  = 2 * time.Second
)

// Agent drives the model/tool loop for one conversation and emits the run
// events the router consumes. History is kept inside the agent, so repeated
// Run calls continue the same conversation.
type Agent struct {
	AgentName    string
	Client       ChatStreamer
	Tools        *tools.Registry
	SystemPrompt string
	Temperature  float32
	MaxTurns     int

	mu      sync.Mutex
	history []llm.Message
}

func New(name string, client ChatStreamer, registry *tools.Registry, systemPrompt string) *Agent {
	return &Agent{
		AgentName:    name,
		Client:       client,
		Tools:        registry,
		SystemPrompt: systemPrompt,
	}
}

func (a *Agent) Name() string {
	if a == nil || strings.TrimSpace(a.AgentName) == "" {
		return "assistant"
	}
	return a.AgentName
}

// History returns a snapshot of the conversation so far.
func (a *Agent) History() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Message(nil), a.history...)
}

// SeedHistory replaces the agent's history, used when resuming a session.
func (a *Agent) SeedHistory(msgs []llm.Message) {
	a.mu.Lock()
	a.history = append([]llm.Message(nil), msgs...)
	a.mu.Unlock()
}

// Run executes one user turn: stream a completion, execute any requested
// tools, feed the results back, and repeat until the model answers without
// tool calls. Deltas and tool activity are emitted as events tagged with
// runID. Cancellation surfaces as ctx.Err().
func (a *Agent) Run(ctx context.Context, runID, prompt string, events chan<- stream.Event) error {
	if a == nil || a.Client == nil {
		return errors.New("agent is not configured")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil
	}

	emit := func(ev stream.Event) bool {
		ev.RunID = runID
		ev.AgentName = a.Name()
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	a.mu.Lock()
	a.history = append(a.history, llm.Message{Role: "user", Content: prompt})
	reqMessages := make([]llm.Message, 0, len(a.history)+1)
	if strings.TrimSpace(a.SystemPrompt) != "" {
		reqMessages = append(reqMessages, llm.Message{Role: "system", Content: a.SystemPrompt})
	}
	reqMessages = append(reqMessages, a.history...)
	a.mu.Unlock()

	var toolDefs []llm.ToolDefinition
	if a.Tools != nil {
		toolDefs = a.Tools.Definitions()
	}
	maxTurns := a.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}

	for turn := 0; ; turn++ {
		if turn >= maxTurns {
			return fmt.Errorf("run exceeded %d turns", maxTurns)
		}

		resp, err := a.chatStreamWithRetry(ctx, llm.ChatRequest{
			Messages:    reqMessages,
			Tools:       toolDefs,
			Temperature: a.Temperature,
		}, func(delta llm.StreamDelta) {
			if delta.Reasoning != "" {
				emit(stream.Event{Type: stream.EventReasoningDelta, Delta: delta.Reasoning})
			}
			if delta.Text != "" {
				emit(stream.Event{Type: stream.EventTextDelta, Delta: delta.Text})
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if llm.IsLikelyContextOverflowError(err) {
				emit(stream.Event{Type: stream.EventRunError, Err: fmt.Errorf("context overflow: %w", err)})
				return nil
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("model returned no choices")
		}

		msg := resp.Choices[0].Message
		if !emit(stream.Event{Type: stream.EventMessageFinal, Text: msg.Content}) {
			return ctx.Err()
		}
		a.appendHistory(msg)
		reqMessages = append(reqMessages, msg)

		if len(msg.ToolCalls) == 0 {
			return nil
		}

		for _, call := range msg.ToolCalls {
			if !emit(stream.Event{
				Type:      stream.EventToolInvoked,
				CallID:    call.ID,
				ToolName:  call.Function.Name,
				Arguments: call.Function.Arguments,
			}) {
				return ctx.Err()
			}

			result, callErr := a.Tools.Call(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
			if ctx.Err() != nil {
				return ctx.Err()
			}

			output := result
			if callErr != nil {
				output = "ERROR: " + callErr.Error()
			}
			if !emit(stream.Event{
				Type:    stream.EventToolResult,
				CallID:  call.ID,
				Output:  output,
				IsError: callErr != nil,
			}) {
				return ctx.Err()
			}

			toolMsg := llm.Message{Role: "tool", ToolCallID: call.ID, Content: output}
			a.appendHistory(toolMsg)
			reqMessages = append(reqMessages, toolMsg)
		}
	}
}

func (a *Agent) chatStreamWithRetry(ctx context.Context, req llm.ChatRequest, fn llm.StreamHandler) (*llm.ChatResponse, error) {
	resp, err := a.Client.ChatStream(ctx, req, fn)
	if err == nil || ctx.Err() != nil || !llm.IsLikelyRateLimited(err) {
		return resp, err
	}
	select {
	case <-time.After(rateLimitRetry):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return a.Client.ChatStream(ctx, req, fn)
}

func (a *Agent) appendHistory(msg llm.Message) {
	a.mu.Lock()
	a.history = append(a.history, msg)
	a.mu.Unlock()
}
