package tui

import (
	"context"
	"strings"
	"testing"

	"vibeterm/internal/message"
)

func testModel() *model {
	return newModel(context.Background(), Options{})
}

func TestPlainLine(t *testing.T) {
	cases := []struct {
		name string
		ch   message.Change
		want string
	}{
		{
			name: "user append",
			ch:   message.Change{Op: message.OpAppend, Entry: message.Entry{Kind: message.KindUser, Text: "hi"}},
			want: "> hi",
		},
		{
			name: "agent mid-stream is silent",
			ch:   message.Change{Op: message.OpUpdate, Entry: message.Entry{Kind: message.KindAgent, Text: "partial"}},
			want: "",
		},
		{
			name: "agent complete prints text",
			ch:   message.Change{Op: message.OpComplete, Entry: message.Entry{Kind: message.KindAgent, Text: "done", Status: message.StatusSuccess}},
			want: "done",
		},
		{
			name: "reasoning is silent",
			ch:   message.Change{Op: message.OpComplete, Entry: message.Entry{Kind: message.KindReasoning, Text: "hmm"}},
			want: "",
		},
		{
			name: "status append",
			ch:   message.Change{Op: message.OpAppend, Entry: message.Entry{Kind: message.KindStatus, Text: "agent updated: planner"}},
			want: "* agent updated: planner",
		},
	}
	for _, tc := range cases {
		if got := plainLine(tc.ch); got != tc.want {
			t.Errorf("%s: plainLine = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestPlainLineToolComplete(t *testing.T) {
	e := message.NewToolEntry("c1", "exec_command", `{"command":"ls -la"}`, message.StatusSuccess)
	got := plainLine(message.Change{Op: message.OpComplete, Entry: e})
	if !strings.Contains(got, "exec_command") || !strings.Contains(got, "success") || !strings.Contains(got, "ls -la") {
		t.Fatalf("plainLine = %q", got)
	}
}

func TestToolSummaryVariants(t *testing.T) {
	cases := []struct {
		name string
		args string
		want string
	}{
		{"exec_command", `{"command":"go version"}`, "go version"},
		{"read_file", `{"path":"main.go"}`, "main.go"},
		{"write_file", `{"path":"out.txt","content":"x"}`, "out.txt"},
		{"task", `{"description":"audit deps","prompt":"..."}`, "audit deps"},
		{"github__search", `{}`, "github/search"},
	}
	for _, tc := range cases {
		e := message.NewToolEntry("c", tc.name, tc.args, message.StatusExecuting)
		if got := toolSummary(e); got != tc.want {
			t.Errorf("%s: summary = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestToolSummaryNilTool(t *testing.T) {
	if got := toolSummary(message.Entry{Kind: message.KindTool}); got != "" {
		t.Fatalf("summary = %q, want empty", got)
	}
}

func TestTruncateDisplay(t *testing.T) {
	if got := truncateDisplay("short", 20); got != "short" {
		t.Fatalf("got %q", got)
	}
	got := truncateDisplay("a long line that will not fit", 10)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("got %q, want ellipsis suffix", got)
	}
	if got := truncateDisplay("anything", 0); got != "anything" {
		t.Fatalf("zero width should pass through, got %q", got)
	}
}

func TestHeadLines(t *testing.T) {
	got := headLines("a\nb\nc\nd\n", 2)
	if len(got) != 3 || got[0] != "a" || got[2] != "…" {
		t.Fatalf("got %v", got)
	}
	if got := headLines("only", 3); len(got) != 1 {
		t.Fatalf("got %v", got)
	}
}

func TestApplyChangeKeepsOrderAndBusy(t *testing.T) {
	m := testModel()
	m.applyChange(message.Change{Op: message.OpAppend, Entry: message.Entry{ID: "1", Kind: message.KindUser, Text: "hi", Status: message.StatusIdle}})
	m.applyChange(message.Change{Op: message.OpAppend, Entry: message.Entry{ID: "2", Kind: message.KindAgent, Status: message.StatusExecuting}})
	m.applyChange(message.Change{Op: message.OpUpdate, Entry: message.Entry{ID: "2", Kind: message.KindAgent, Text: "Hel", Status: message.StatusExecuting}})

	if len(m.order) != 2 {
		t.Fatalf("order = %v", m.order)
	}
	if !m.busy() {
		t.Fatal("expected busy while an entry is executing")
	}

	m.applyChange(message.Change{Op: message.OpComplete, Entry: message.Entry{ID: "2", Kind: message.KindAgent, Text: "Hello", Status: message.StatusSuccess}})
	if m.busy() {
		t.Fatal("expected idle after completion")
	}
	if m.entries["2"].Text != "Hello" {
		t.Fatalf("entry text = %q", m.entries["2"].Text)
	}
}

func TestRenderEntryNestsSubAgentChildren(t *testing.T) {
	m := testModel()
	m.applyChange(message.Change{Op: message.OpAppend, Entry: message.Entry{ID: "p", Kind: message.KindSubAgent, Text: "side quest", Status: message.StatusSuccess}})
	m.applyChange(message.Change{Op: message.OpAppend, Entry: message.Entry{ID: "c", ParentID: "p", Kind: message.KindAgent, Text: "child answer", Status: message.StatusSuccess}})

	lines := m.renderEntry(m.entries["p"], 80, 0)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "side quest") || !strings.Contains(joined, "child answer") {
		t.Fatalf("rendered:\n%s", joined)
	}
}

func TestRerenderSkipsChildEntriesAtTopLevel(t *testing.T) {
	m := testModel()
	m.viewport.Width = 80
	m.viewport.Height = 10
	m.applyChange(message.Change{Op: message.OpAppend, Entry: message.Entry{ID: "p", Kind: message.KindSubAgent, Text: "outer", Status: message.StatusSuccess}})
	m.applyChange(message.Change{Op: message.OpAppend, Entry: message.Entry{ID: "c", ParentID: "p", Kind: message.KindAgent, Text: "inner", Status: message.StatusSuccess}})
	m.rerender()

	content := m.viewport.View()
	if strings.Count(content, "inner") > 1 {
		t.Fatalf("child rendered more than once:\n%s", content)
	}
}
