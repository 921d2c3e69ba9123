package stream

import (
	"errors"
	"fmt"
)

type EventType string

const (
	EventTextDelta      EventType = "text_delta"
	EventReasoningDelta EventType = "reasoning_delta"
	EventMessageFinal   EventType = "message_final"
	EventToolInvoked    EventType = "tool_invoked"
	EventToolResult     EventType = "tool_result"
	EventAgentUpdated   EventType = "agent_updated"
	EventRunError       EventType = "run_error"
)

// Event is one item of a run's event stream. Only the fields relevant to
// the type are set; producers fill RunID on every event.
type Event struct {
	Type      EventType
	RunID     string
	AgentName string

	// text_delta / reasoning_delta
	Delta string

	// message_final
	Text string

	// tool_invoked / tool_result
	CallID    string
	ToolName  string
	Arguments string
	Output    string
	IsError   bool

	// run_error
	Err error
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

var (
	// ErrDuplicateToolCall reports a tool_invoked event whose call id was
	// already seen in this conversation.
	ErrDuplicateToolCall = errors.New("duplicate tool call id")
	// ErrUnknownRun reports an event for a run id the router never started.
	ErrUnknownRun = errors.New("unknown run")
)

// RunFailure is the terminal error of a failed run.
type RunFailure struct {
	RunID string
	Err   error
}

func (f *RunFailure) Error() string {
	return fmt.Sprintf("run %s failed: %v", f.RunID, f.Err)
}

func (f *RunFailure) Unwrap() error { return f.Err }
