package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"vibeterm/internal/message"
)

func TestTodoWriteThenRead(t *testing.T) {
	store := NewTodoStore()
	write := &TodoWriteTool{Store: store}
	read := &TodoReadTool{Store: store}

	out := callTool(t, write, map[string]any{
		"todos": []map[string]any{
			{"id": "1", "content": "ship it", "status": "in_progress", "priority": "high"},
		},
	})
	if !strings.Contains(out, "ship it") {
		t.Fatalf("write output = %q", out)
	}

	out = callTool(t, read, map[string]any{})
	var items []message.TodoItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("read output not JSON: %v", err)
	}
	if len(items) != 1 || items[0].Status != "in_progress" {
		t.Fatalf("items = %+v", items)
	}
}

func TestTodoWriteReplacesList(t *testing.T) {
	store := NewTodoStore()
	write := &TodoWriteTool{Store: store}
	callTool(t, write, map[string]any{
		"todos": []map[string]any{
			{"id": "1", "content": "a", "status": "pending", "priority": "low"},
			{"id": "2", "content": "b", "status": "pending", "priority": "low"},
		},
	})
	callTool(t, write, map[string]any{
		"todos": []map[string]any{
			{"id": "2", "content": "b", "status": "completed", "priority": "low"},
		},
	})
	items := store.Items()
	if len(items) != 1 || items[0].ID != "2" {
		t.Fatalf("items = %+v", items)
	}
}

func TestTodoWriteValidation(t *testing.T) {
	write := &TodoWriteTool{Store: NewTodoStore()}
	raw, _ := json.Marshal(map[string]any{"todos": []map[string]any{{"id": "", "content": "x"}}})
	if _, err := write.Call(context.Background(), raw); err == nil {
		t.Fatalf("expected error for todo without id")
	}
}

func TestTodoReadEmpty(t *testing.T) {
	read := &TodoReadTool{Store: NewTodoStore()}
	if out := callTool(t, read, map[string]any{}); out != "[]" {
		t.Fatalf("out = %q", out)
	}
}
