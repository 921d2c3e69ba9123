package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"vibeterm/internal/llm"
	"vibeterm/internal/message"
	"vibeterm/internal/runner"
	"vibeterm/internal/stream"
	"vibeterm/internal/tools"
)

type memRecorder struct {
	mu  sync.Mutex
	seq int64
}

func (m *memRecorder) Append(message.Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func newTestFlow() *runner.Flow {
	rec := &memRecorder{}
	return runner.NewFlow(stream.NewRouter(message.NewConversation(), rec), rec)
}

func TestTaskToolRunsSubAgent(t *testing.T) {
	flow := newTestFlow()
	spawn := func(name string) *Agent {
		client := &scriptedClient{steps: []func(llm.ChatRequest, llm.StreamHandler) (*llm.ChatResponse, error){
			func(_ llm.ChatRequest, fn llm.StreamHandler) (*llm.ChatResponse, error) {
				fn(llm.StreamDelta{Text: "report"})
				return assistantResponse(llm.Message{Content: "report"}), nil
			},
		}}
		return New(name, client, tools.NewRegistry(), "")
	}

	tt := NewTaskTool(flow, spawn)
	out, err := tt.Call(context.Background(), json.RawMessage(`{"description":"check","prompt":"do it"}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !strings.Contains(out, "report") {
		t.Fatalf("out = %q", out)
	}

	var parent *message.Entry
	for _, e := range flow.Conversation().Entries() {
		if e.Kind == message.KindSubAgent {
			parent = &e
			break
		}
	}
	if parent == nil {
		t.Fatal("no subagent entry recorded")
	}
	if parent.Status != message.StatusSuccess || parent.Text != "check" {
		t.Fatalf("parent = %+v", parent)
	}
}

func TestTaskToolRequiresPrompt(t *testing.T) {
	tt := NewTaskTool(newTestFlow(), func(string) *Agent { return nil })
	if _, err := tt.Call(context.Background(), json.RawMessage(`{"description":"x"}`)); err == nil {
		t.Fatal("expected error for missing prompt")
	}
}

func TestTaskToolDefinitionSchema(t *testing.T) {
	tt := NewTaskTool(nil, nil)
	def := tt.Definition()
	if def.Function.Name != "task" {
		t.Fatalf("name = %q", def.Function.Name)
	}
	params, ok := def.Function.Parameters.(map[string]interface{})
	if !ok {
		t.Fatalf("parameters = %+v", def.Function.Parameters)
	}
	props, ok := params["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("properties = %+v", params["properties"])
	}
	if _, ok := props["prompt"]; !ok {
		t.Fatal("schema missing prompt")
	}
}
