package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"vibeterm/internal/message"
	"vibeterm/internal/stream"
)

type scriptedAgent struct {
	name   string
	script func(ctx context.Context, runID string, events chan<- stream.Event) error
}

func (a *scriptedAgent) Name() string {
	if a.name == "" {
		return "assistant"
	}
	return a.name
}

func (a *scriptedAgent) Run(ctx context.Context, runID, prompt string, events chan<- stream.Event) error {
	return a.script(ctx, runID, events)
}

func newTestFlow() *Flow {
	conv := message.NewConversation()
	return NewFlow(stream.NewRouter(conv, nil), nil)
}

func TestRunAgentCompletes(t *testing.T) {
	f := newTestFlow()
	ag := &scriptedAgent{script: func(ctx context.Context, runID string, events chan<- stream.Event) error {
		events <- stream.Event{Type: stream.EventTextDelta, RunID: runID, Delta: "hi"}
		events <- stream.Event{Type: stream.EventMessageFinal, RunID: runID, Text: "hi there"}
		return nil
	}}
	runID, outcome, err := f.RunAgent(context.Background(), ag, "hello", "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome != stream.OutcomeCompleted {
		t.Fatalf("outcome = %v", outcome)
	}
	if !strings.HasPrefix(runID, "run-") {
		t.Fatalf("run id = %q", runID)
	}
	entries := f.Conversation().Entries()
	if len(entries) != 1 || entries[0].Text != "hi there" || entries[0].Status != message.StatusSuccess {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestRunAgentProducerErrorFailsRun(t *testing.T) {
	f := newTestFlow()
	cause := errors.New("stream broke")
	ag := &scriptedAgent{script: func(ctx context.Context, runID string, events chan<- stream.Event) error {
		events <- stream.Event{Type: stream.EventTextDelta, RunID: runID, Delta: "part"}
		return cause
	}}
	_, outcome, err := f.RunAgent(context.Background(), ag, "go", "")
	if outcome != stream.OutcomeFailed {
		t.Fatalf("outcome = %v", outcome)
	}
	var failure *stream.RunFailure
	if !errors.As(err, &failure) || !errors.Is(err, cause) {
		t.Fatalf("err = %v", err)
	}
	for _, e := range f.Conversation().Entries() {
		if e.Status != message.StatusError {
			t.Fatalf("entry not errored: %+v", e)
		}
	}
}

func TestRunAgentRunErrorEventFailsRun(t *testing.T) {
	f := newTestFlow()
	cause := errors.New("guardrail tripped")
	ag := &scriptedAgent{script: func(ctx context.Context, runID string, events chan<- stream.Event) error {
		events <- stream.Event{Type: stream.EventRunError, RunID: runID, Err: cause}
		return nil
	}}
	_, outcome, err := f.RunAgent(context.Background(), ag, "go", "")
	if outcome != stream.OutcomeFailed {
		t.Fatalf("outcome = %v", outcome)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunAgentCancelled(t *testing.T) {
	f := newTestFlow()
	started := make(chan string, 1)
	ag := &scriptedAgent{script: func(ctx context.Context, runID string, events chan<- stream.Event) error {
		events <- stream.Event{Type: stream.EventTextDelta, RunID: runID, Delta: "working"}
		started <- runID
		<-ctx.Done()
		return ctx.Err()
	}}
	done := make(chan struct{})
	var outcome stream.Outcome
	var runErr error
	go func() {
		defer close(done)
		_, outcome, runErr = f.RunAgent(context.Background(), ag, "go", "")
	}()
	runID := <-started
	for !f.Cancel(runID) {
		time.Sleep(time.Millisecond)
	}
	<-done
	if runErr != nil {
		t.Fatalf("cancelled run returned error: %v", runErr)
	}
	if outcome != stream.OutcomeCancelled {
		t.Fatalf("outcome = %v", outcome)
	}
	for _, e := range f.Conversation().Entries() {
		if e.Status != message.StatusCancelled {
			t.Fatalf("entry not cancelled: %+v", e)
		}
	}
}

func TestSubmitQueuesFIFO(t *testing.T) {
	f := newTestFlow()
	f.Submit("first")
	f.Submit("second")
	ctx := context.Background()
	for _, want := range []string{"first", "second"} {
		got, err := f.UserInput(ctx)
		if err != nil || got != want {
			t.Fatalf("input = %q err=%v, want %q", got, err, want)
		}
	}
	entries := f.Conversation().Entries()
	if len(entries) != 2 || entries[0].Kind != message.KindUser {
		t.Fatalf("user entries = %+v", entries)
	}
}

func TestUserInputWaitsForSubmit(t *testing.T) {
	f := newTestFlow()
	got := make(chan string, 1)
	go func() {
		text, err := f.UserInput(context.Background())
		if err != nil {
			got <- "err:" + err.Error()
			return
		}
		got <- text
	}()
	time.Sleep(10 * time.Millisecond)
	f.Submit("late answer")
	if text := <-got; text != "late answer" {
		t.Fatalf("input = %q", text)
	}
}

func TestSecondConcurrentUserInputRejected(t *testing.T) {
	f := newTestFlow()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waiting := make(chan struct{})
	go func() {
		close(waiting)
		_, _ = f.UserInput(ctx)
	}()
	<-waiting
	time.Sleep(10 * time.Millisecond)
	if _, err := f.UserInput(ctx); !errors.Is(err, ErrInputPending) {
		t.Fatalf("expected ErrInputPending, got %v", err)
	}
}

func TestUserInputCancelled(t *testing.T) {
	f := newTestFlow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.UserInput(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	// The queue must be usable again after the wait aborts.
	f.Submit("next")
	if got, err := f.UserInput(context.Background()); err != nil || got != "next" {
		t.Fatalf("input after abort = %q err=%v", got, err)
	}
}

func TestRunSubAgentNestsAndReturnsFinalText(t *testing.T) {
	f := newTestFlow()
	ag := &scriptedAgent{name: "worker", script: func(ctx context.Context, runID string, events chan<- stream.Event) error {
		events <- stream.Event{Type: stream.EventTextDelta, RunID: runID, Delta: "dug "}
		events <- stream.Event{Type: stream.EventMessageFinal, RunID: runID, Text: "dug through repo"}
		return nil
	}}
	text, outcome, err := f.RunSubAgent(context.Background(), ag, "explore", "look around")
	if err != nil || outcome != stream.OutcomeCompleted {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	if text != "dug through repo" {
		t.Fatalf("final text = %q", text)
	}
	entries := f.Conversation().Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	parent := entries[0]
	if parent.Kind != message.KindSubAgent || parent.Status != message.StatusSuccess {
		t.Fatalf("parent = %+v", parent)
	}
	if entries[1].ParentID != parent.ID {
		t.Fatalf("child not nested: %+v", entries[1])
	}
}

func TestRunSubAgentFailureMirrorsStatus(t *testing.T) {
	f := newTestFlow()
	ag := &scriptedAgent{name: "worker", script: func(ctx context.Context, runID string, events chan<- stream.Event) error {
		return errors.New("boom")
	}}
	_, outcome, err := f.RunSubAgent(context.Background(), ag, "", "go")
	if outcome != stream.OutcomeFailed || err == nil {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	parent := f.Conversation().Entries()[0]
	if parent.Status != message.StatusError {
		t.Fatalf("parent status = %s", parent.Status)
	}
}

func TestRunSubAgentsConcurrent(t *testing.T) {
	f := newTestFlow()
	ag := &scriptedAgent{name: "worker", script: func(ctx context.Context, runID string, events chan<- stream.Event) error {
		events <- stream.Event{Type: stream.EventMessageFinal, RunID: runID, Text: "done"}
		return nil
	}}
	if err := f.RunSubAgents(context.Background(), ag, []string{"a", "b", "c"}); err != nil {
		t.Fatalf("run sub agents: %v", err)
	}
	parents := 0
	for _, e := range f.Conversation().Entries() {
		if e.Kind == message.KindSubAgent {
			parents++
			if e.Status != message.StatusSuccess {
				t.Fatalf("parent not settled: %+v", e)
			}
		}
	}
	if parents != 3 {
		t.Fatalf("expected 3 subagent entries, got %d", parents)
	}
}

func TestEmitStatus(t *testing.T) {
	f := newTestFlow()
	f.EmitStatus("compacting history")
	entries := f.Conversation().Entries()
	if len(entries) != 1 || entries[0].Kind != message.KindStatus || entries[0].Text != "compacting history" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestGenerateRunID(t *testing.T) {
	a, b := GenerateRunID(), GenerateRunID()
	if a == b {
		t.Fatalf("run ids collide: %s", a)
	}
	if !strings.HasPrefix(a, "run-") {
		t.Fatalf("run id = %q", a)
	}
}
