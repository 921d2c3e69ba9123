package message

import (
	"strings"
	"testing"
)

func TestAppendAssignsIDAndOrder(t *testing.T) {
	c := NewConversation()
	h1 := c.Append(Entry{Kind: KindUser, Text: "hi", Status: StatusSuccess})
	h2 := c.Append(Entry{Kind: KindAgent, Status: StatusExecuting})
	if !h1.Valid() || !h2.Valid() {
		t.Fatalf("expected valid handles")
	}
	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != KindUser || entries[1].Kind != KindAgent {
		t.Fatalf("entries out of order: %v %v", entries[0].Kind, entries[1].Kind)
	}
	if entries[0].ID == "" || entries[0].CreatedAt.IsZero() {
		t.Fatalf("append did not fill id/timestamp")
	}
}

func TestAppendTextAccumulates(t *testing.T) {
	c := NewConversation()
	h := c.Append(Entry{Kind: KindAgent, Status: StatusExecuting})
	c.AppendText(h, "Hel")
	got := c.AppendText(h, "lo")
	if got != "Hello" {
		t.Fatalf("expected accumulated text Hello, got %q", got)
	}
	e, ok := c.Entry(h)
	if !ok || e.Text != "Hello" {
		t.Fatalf("entry text = %q", e.Text)
	}
}

func TestUpdateAfterTerminalIgnored(t *testing.T) {
	c := NewConversation()
	h := c.Append(Entry{Kind: KindAgent, Status: StatusExecuting, Text: "done"})
	if _, err := c.Complete(h, StatusSuccess, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	c.AppendText(h, " extra")
	c.UpdateText(h, "overwritten")
	e, _ := c.Entry(h)
	if e.Text != "done" {
		t.Fatalf("terminal entry mutated: %q", e.Text)
	}
}

func TestCompleteIdempotent(t *testing.T) {
	c := NewConversation()
	h := c.Append(Entry{Kind: KindAgent, Status: StatusExecuting})
	committed, err := c.Complete(h, StatusSuccess, "")
	if err != nil || !committed {
		t.Fatalf("first complete: committed=%v err=%v", committed, err)
	}
	committed, err = c.Complete(h, StatusSuccess, "")
	if err != nil {
		t.Fatalf("repeat complete errored: %v", err)
	}
	if committed {
		t.Fatalf("repeat complete reported committed")
	}
	if _, err = c.Complete(h, StatusError, ""); err == nil {
		t.Fatalf("expected error for conflicting terminal status")
	}
}

func TestCompleteRejectsNonTerminal(t *testing.T) {
	c := NewConversation()
	h := c.Append(Entry{Kind: KindAgent, Status: StatusExecuting})
	if _, err := c.Complete(h, StatusExecuting, ""); err == nil {
		t.Fatalf("expected error for non-terminal status")
	}
}

func TestFindToolEntry(t *testing.T) {
	c := NewConversation()
	c.Append(NewToolEntry("call-1", "read_file", `{"path":"main.go"}`, StatusExecuting))
	h, ok := c.FindToolEntry("call-1")
	if !ok {
		t.Fatalf("tool entry not found")
	}
	e, _ := c.Entry(h)
	if e.Tool == nil || e.Tool.Name != "read_file" {
		t.Fatalf("unexpected tool entry: %+v", e.Tool)
	}
	if _, ok := c.FindToolEntry("missing"); ok {
		t.Fatalf("found entry for unknown call id")
	}
}

func TestCompleteToolSetsOutput(t *testing.T) {
	c := NewConversation()
	h := c.Append(NewToolEntry("call-2", "exec_command", `{"command":"ls"}`, StatusExecuting))
	if _, err := c.Complete(h, StatusSuccess, "main.go\n"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	e, _ := c.Entry(h)
	if e.Tool.Output != "main.go\n" {
		t.Fatalf("tool output = %q", e.Tool.Output)
	}
	if !strings.Contains(e.DisplayText(), "main.go") {
		t.Fatalf("display text missing output: %q", e.DisplayText())
	}
}

func TestChildrenFollowParent(t *testing.T) {
	c := NewConversation()
	parent := c.Append(Entry{Kind: KindSubAgent, AgentName: "researcher", Status: StatusExecuting})
	c.Append(Entry{Kind: KindAgent, ParentID: parent.ID(), Text: "child", Status: StatusExecuting})
	c.Append(Entry{Kind: KindAgent, Text: "top level", Status: StatusExecuting})
	kids := c.Children(parent.ID())
	if len(kids) != 1 || kids[0].Text != "child" {
		t.Fatalf("unexpected children: %+v", kids)
	}
}

func TestOpenEntries(t *testing.T) {
	c := NewConversation()
	running := c.Append(Entry{Kind: KindAgent, Status: StatusExecuting})
	done := c.Append(Entry{Kind: KindAgent, Status: StatusExecuting})
	if _, err := c.Complete(done, StatusSuccess, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	open := c.OpenEntries("")
	if len(open) != 1 || open[0].ID() != running.ID() {
		t.Fatalf("unexpected open entries: %+v", open)
	}
}

func TestSubscribeSeesChanges(t *testing.T) {
	c := NewConversation()
	ch, cancel := c.Subscribe()
	defer cancel()
	h := c.Append(Entry{Kind: KindAgent, Status: StatusExecuting})
	c.AppendText(h, "hi")
	if _, err := c.Complete(h, StatusSuccess, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	ops := []ChangeOp{OpAppend, OpUpdate, OpComplete}
	for _, want := range ops {
		got := <-ch
		if got.Op != want {
			t.Fatalf("expected op %s, got %s", want, got.Op)
		}
	}
	_, repeatErr := c.Complete(h, StatusSuccess, "")
	if repeatErr != nil {
		t.Fatalf("repeat complete: %v", repeatErr)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected change after idempotent complete: %+v", extra)
	default:
	}
}
