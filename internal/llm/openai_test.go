package llm

import (
	"testing"
)

func TestToOpenAIMessagesRoles(t *testing.T) {
	msgs := []Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "tool", Content: "ok", ToolCallID: "call_1"},
	}
	out, err := toOpenAIMessages(msgs)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(out))
	}
}

func TestToOpenAIMessagesAssistantToolCalls(t *testing.T) {
	msgs := []Message{{
		Role: "assistant",
		ToolCalls: []ToolCall{{
			ID:   "call_1",
			Type: "function",
			Function: ToolCallFunction{
				Name:      "list_files",
				Arguments: `{"path":"."}`,
			},
		}},
	}}
	out, err := toOpenAIMessages(msgs)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	assistant := out[0].OfAssistant
	if assistant == nil || len(assistant.ToolCalls) != 1 {
		t.Fatalf("assistant tool calls not converted: %+v", out[0])
	}
	fn := assistant.ToolCalls[0].OfFunction
	if fn == nil || fn.ID != "call_1" || fn.Function.Name != "list_files" {
		t.Fatalf("tool call = %+v", assistant.ToolCalls[0])
	}
}

func TestToOpenAIMessagesRejectsBadInput(t *testing.T) {
	if _, err := toOpenAIMessages([]Message{{Role: "tool", Content: "x"}}); err == nil {
		t.Fatalf("expected error for tool message without call id")
	}
	if _, err := toOpenAIMessages([]Message{{Role: "wizard", Content: "x"}}); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if _, err := toOpenAIMessages([]Message{{Content: "x"}}); err == nil {
		t.Fatalf("expected error for missing role")
	}
}

func TestToOpenAITools(t *testing.T) {
	tools, err := toOpenAITools([]ToolDefinition{{
		Type: "function",
		Function: ToolFunctionDef{
			Name:        "read_file",
			Description: "Read a file",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []string{"path"},
			},
		},
	}})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	if _, err := toOpenAITools([]ToolDefinition{{Type: "retrieval"}}); err == nil {
		t.Fatalf("expected error for unsupported tool type")
	}
}
