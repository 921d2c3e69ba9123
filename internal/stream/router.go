package stream

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vibeterm/internal/message"
)

// Recorder persists entry snapshots. *session.Log satisfies it.
type Recorder interface {
	Append(e message.Entry) (int64, error)
}

// snapshotInterval bounds how often a run's growing entries are flushed to
// the session log. Terminal and structural records always go through.
const snapshotInterval = 500 * time.Millisecond

// Router turns run events into conversation mutations and session records.
// Each run gets isolated bookkeeping, so concurrent runs can interleave on
// Dispatch without corrupting each other.
type Router struct {
	conv *message.Conversation
	rec  Recorder

	mu       sync.Mutex
	runs     map[string]*runState
	finished map[string]Outcome
	failures map[string]error

	warnf func(format string, args ...any)
}

type runState struct {
	id        string
	parentID  string
	agentName string
	text      message.Handle
	reasoning message.Handle
	open      map[string]message.Handle
	limiter   *rate.Limiter
	err       error
}

func NewRouter(conv *message.Conversation, rec Recorder) *Router {
	return &Router{
		conv:     conv,
		rec:      rec,
		runs:     make(map[string]*runState),
		finished: make(map[string]Outcome),
		failures: make(map[string]error),
		warnf: func(format string, args ...any) {
			fmt.Fprintln(os.Stderr, "warning: "+fmt.Sprintf(format, args...))
		},
	}
}

func (r *Router) Conversation() *message.Conversation { return r.conv }

// StartRun registers a run before its events arrive. parentID is the
// subagent entry the run's output nests under, empty for a top-level run.
func (r *Router) StartRun(runID, agentName, parentID string) error {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[runID]; exists {
		return fmt.Errorf("run %s already started", runID)
	}
	r.runs[runID] = &runState{
		id:        runID,
		parentID:  parentID,
		agentName: agentName,
		open:      make(map[string]message.Handle),
		limiter:   rate.NewLimiter(rate.Every(snapshotInterval), 1),
	}
	return nil
}

// Consume drains the event channel into Dispatch until the channel closes
// or the context ends. Once the context ends no further event is applied,
// buffered or not. Recoverable dispatch errors are logged and skipped; they
// never stop the stream.
func (r *Router) Consume(ctx context.Context, events <-chan Event) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Dispatch(ev); err != nil {
				r.warnf("dispatch %s: %v", ev.Type, err)
			}
		}
	}
}

// Dispatch applies one event. Events for finished or unknown runs are
// rejected with ErrUnknownRun; a tool_invoked reusing a call id is rejected
// with ErrDuplicateToolCall; a tool_result with no matching invocation is
// dropped. The conversation is never left half-mutated by a rejected event.
func (r *Router) Dispatch(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.runs[ev.RunID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRun, ev.RunID)
	}

	switch ev.Type {
	case EventTextDelta:
		h := r.ensureGrowingLocked(st, &st.text, message.KindAgent)
		r.conv.AppendText(h, ev.Delta)
		r.recordLocked(st, h, false)
		return nil

	case EventReasoningDelta:
		h := r.ensureGrowingLocked(st, &st.reasoning, message.KindReasoning)
		r.conv.AppendText(h, ev.Delta)
		r.recordLocked(st, h, false)
		return nil

	case EventMessageFinal:
		r.closeGrowingLocked(st, &st.reasoning, message.StatusSuccess, "")
		if !st.text.Valid() && ev.Text == "" {
			// A tool-only turn ends with an empty final; there is no
			// message to materialize.
			return nil
		}
		h := r.ensureGrowingLocked(st, &st.text, message.KindAgent)
		if ev.Text != "" {
			// The final text is authoritative over accumulated deltas.
			r.conv.UpdateText(h, ev.Text)
		}
		r.closeGrowingLocked(st, &st.text, message.StatusSuccess, "")
		return nil

	case EventToolInvoked:
		if _, dup := r.conv.FindToolEntry(ev.CallID); dup {
			return fmt.Errorf("%w: %s", ErrDuplicateToolCall, ev.CallID)
		}
		entry := message.NewToolEntry(ev.CallID, ev.ToolName, ev.Arguments, message.StatusExecuting)
		entry.ParentID = st.parentID
		entry.AgentName = st.agentName
		h := r.conv.Append(entry)
		st.open[h.ID()] = h
		r.recordLocked(st, h, true)
		return nil

	case EventToolResult:
		h, found := r.conv.FindToolEntry(ev.CallID)
		if !found {
			r.warnf("dropping result for unknown tool call %s", ev.CallID)
			return nil
		}
		status := message.StatusSuccess
		if ev.IsError {
			status = message.StatusError
		}
		committed, err := r.conv.Complete(h, status, ev.Output)
		if err != nil {
			return err
		}
		if committed {
			delete(st.open, h.ID())
			r.recordLocked(st, h, true)
		}
		return nil

	case EventAgentUpdated:
		r.closeGrowingLocked(st, &st.text, message.StatusSuccess, "")
		r.closeGrowingLocked(st, &st.reasoning, message.StatusSuccess, "")
		st.agentName = ev.AgentName
		h := r.conv.Append(message.Entry{
			Kind:      message.KindStatus,
			ParentID:  st.parentID,
			AgentName: ev.AgentName,
			Text:      "agent updated: " + ev.AgentName,
			Status:    message.StatusSuccess,
		})
		r.recordLocked(st, h, true)
		return nil

	case EventRunError:
		st.err = ev.Err
		r.finishRunLocked(st, OutcomeFailed)
		return nil

	default:
		return fmt.Errorf("unhandled event type %q", ev.Type)
	}
}

// CompleteRun ends a run normally, closing anything still growing.
func (r *Router) CompleteRun(runID string) error {
	return r.endRun(runID, OutcomeCompleted)
}

// CancelRun ends a run after a mid-stream cancellation. Entries still
// executing become cancelled, never error.
func (r *Router) CancelRun(runID string) error {
	return r.endRun(runID, OutcomeCancelled)
}

// FailRun ends a run on a producer-side error that never made it into the
// stream as a run_error event.
func (r *Router) FailRun(runID string, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	st.err = cause
	r.finishRunLocked(st, OutcomeFailed)
	return nil
}

func (r *Router) endRun(runID string, outcome Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[runID]
	if !ok {
		if prior, done := r.finished[runID]; done && prior == outcome {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	r.finishRunLocked(st, outcome)
	return nil
}

// RunOutcome reports how a finished run ended.
func (r *Router) RunOutcome(runID string) (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome, ok := r.finished[runID]
	return outcome, ok
}

// RunFailureErr returns the failure for a run that ended in OutcomeFailed.
func (r *Router) RunFailureErr(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if outcome, ok := r.finished[runID]; !ok || outcome != OutcomeFailed {
		return nil
	}
	err := r.failures[runID]
	if err == nil {
		err = fmt.Errorf("run failed")
	}
	return &RunFailure{RunID: runID, Err: err}
}

func (r *Router) ensureGrowingLocked(st *runState, slot *message.Handle, kind message.Kind) message.Handle {
	if slot.Valid() {
		return *slot
	}
	h := r.conv.Append(message.Entry{
		Kind:      kind,
		ParentID:  st.parentID,
		AgentName: st.agentName,
		Status:    message.StatusExecuting,
	})
	*slot = h
	st.open[h.ID()] = h
	// The creation record is structural: it pins the entry's position in
	// the log before any throttled snapshot can land.
	r.recordLocked(st, h, true)
	return h
}

func (r *Router) closeGrowingLocked(st *runState, slot *message.Handle, status message.Status, output string) {
	if !slot.Valid() {
		return
	}
	h := *slot
	*slot = message.Handle{}
	committed, err := r.conv.Complete(h, status, output)
	if err != nil {
		r.warnf("close entry %s: %v", h.ID(), err)
		return
	}
	if committed {
		delete(st.open, h.ID())
		r.recordLocked(st, h, true)
	}
}

func (r *Router) finishRunLocked(st *runState, outcome Outcome) {
	status := message.StatusSuccess
	output := ""
	switch outcome {
	case OutcomeFailed:
		status = message.StatusError
		output = "interrupted"
		if st.err != nil {
			output = st.err.Error()
		}
	case OutcomeCancelled:
		status = message.StatusCancelled
		output = "cancelled"
	}

	st.text = message.Handle{}
	st.reasoning = message.Handle{}
	for id, h := range st.open {
		s, out := status, output
		if outcome == OutcomeCompleted {
			// A run that ends cleanly must not leave a tool call without
			// a result behind it.
			if e, ok := r.conv.Entry(h); ok && e.Kind == message.KindTool {
				s, out = message.StatusError, "interrupted"
			}
		}
		committed, err := r.conv.Complete(h, s, out)
		if err != nil {
			r.warnf("finish run %s entry %s: %v", st.id, id, err)
			continue
		}
		if committed {
			r.recordLocked(st, h, true)
		}
	}
	st.open = nil
	delete(r.runs, st.id)
	r.finished[st.id] = outcome
	if outcome == OutcomeFailed && st.err != nil {
		r.failures[st.id] = st.err
	}
}

// recordLocked persists the entry behind h. Terminal and structural writes
// always land; delta snapshots are throttled per run.
func (r *Router) recordLocked(st *runState, h message.Handle, force bool) {
	if r.rec == nil {
		return
	}
	if !force && st != nil && !st.limiter.Allow() {
		return
	}
	e, ok := r.conv.Entry(h)
	if !ok {
		return
	}
	if _, err := r.rec.Append(e); err != nil {
		r.warnf("session append: %v", err)
	}
}
