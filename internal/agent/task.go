package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"vibeterm/internal/llm"
	"vibeterm/internal/runner"
	"vibeterm/internal/stream"
)

// Factory builds a fresh agent for a nested run. Each task gets its own
// history so sub-agent turns never leak into the parent conversation.
type Factory func(name string) *Agent

// TaskTool lets the model delegate a self-contained piece of work to a
// nested agent run. The sub-agent's final answer comes back as the tool
// output.
type TaskTool struct {
	Flow    *runner.Flow
	Spawn   Factory
	SubName string
}

type taskArgs struct {
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

func NewTaskTool(flow *runner.Flow, spawn Factory) *TaskTool {
	return &TaskTool{Flow: flow, Spawn: spawn, SubName: "subagent"}
}

func (t *TaskTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunctionDef{
			Name:        "task",
			Description: "Delegate a self-contained task to a sub-agent. The sub-agent works with its own fresh context and returns a final report. Use for multi-step work that does not need the main conversation.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"description": map[string]interface{}{
						"type":        "string",
						"description": "Short label for the task, shown while it runs",
					},
					"prompt": map[string]interface{}{
						"type":        "string",
						"description": "Full instructions for the sub-agent",
					},
				},
				"required": []string{"description", "prompt"},
			},
		},
	}
}

func (t *TaskTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in taskArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid task arguments: %w", err)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}
	if t.Flow == nil || t.Spawn == nil {
		return "", fmt.Errorf("task tool is not configured")
	}

	sub := t.Spawn(t.SubName)
	text, outcome, err := t.Flow.RunSubAgent(ctx, sub, in.Description, in.Prompt)
	if err != nil {
		return "", err
	}
	switch outcome {
	case stream.OutcomeCancelled:
		return "", context.Canceled
	case stream.OutcomeFailed:
		return "", fmt.Errorf("sub-agent run failed")
	}
	if strings.TrimSpace(text) == "" {
		return "(sub-agent finished with no output)", nil
	}
	return text, nil
}
