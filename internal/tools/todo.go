package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"vibeterm/internal/llm"
	"vibeterm/internal/message"
)

// TodoStore holds the working todo list of one session. Both todo tools
// share one store, so the model reads back exactly what it last wrote.
type TodoStore struct {
	mu    sync.Mutex
	items []message.TodoItem
}

func NewTodoStore() *TodoStore {
	return &TodoStore{}
}

func (s *TodoStore) Set(items []message.TodoItem) {
	s.mu.Lock()
	s.items = append([]message.TodoItem(nil), items...)
	s.mu.Unlock()
}

func (s *TodoStore) Items() []message.TodoItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.TodoItem(nil), s.items...)
}

type TodoWriteTool struct {
	Store *TodoStore
}

type todoWriteArgs struct {
	Todos []message.TodoItem `json:"todos"`
}

func (t *TodoWriteTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunctionDef{
			Name:        "todo_write",
			Description: "Replace the session todo list. Send the complete list every time.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"todos": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"id":       map[string]interface{}{"type": "string"},
								"content":  map[string]interface{}{"type": "string"},
								"status":   map[string]interface{}{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
								"priority": map[string]interface{}{"type": "string", "enum": []string{"low", "medium", "high"}},
							},
							"required": []string{"id", "content", "status", "priority"},
						},
					},
				},
				"required": []string{"todos"},
			},
		},
	}
}

func (t *TodoWriteTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	if t.Store == nil {
		return "", errors.New("todo store is not configured")
	}
	var in todoWriteArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("todo_write: invalid JSON arguments: %w", err)
	}
	for _, item := range in.Todos {
		if item.ID == "" || item.Content == "" {
			return "", errors.New("each todo needs id and content")
		}
	}
	t.Store.Set(in.Todos)
	out, err := json.Marshal(t.Store.Items())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type TodoReadTool struct {
	Store *TodoStore
}

func (t *TodoReadTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunctionDef{
			Name:        "todo_read",
			Description: "Read the current session todo list.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

func (t *TodoReadTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	if t.Store == nil {
		return "", errors.New("todo store is not configured")
	}
	items := t.Store.Items()
	if len(items) == 0 {
		return "[]", nil
	}
	out, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
