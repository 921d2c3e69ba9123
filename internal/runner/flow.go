package runner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vibeterm/internal/message"
	"vibeterm/internal/stream"
)

// ErrInputPending reports a second UserInput call while an earlier one is
// still waiting. Only one consumer may wait on the input queue at a time.
var ErrInputPending = errors.New("user input already awaited")

// Agent produces the event stream of one run. Every emitted event must
// carry the given runID. Run must stop and return promptly once ctx ends,
// and must not close or keep writing to events after returning.
type Agent interface {
	Name() string
	Run(ctx context.Context, runID, prompt string, events chan<- stream.Event) error
}

const eventBuffer = 512

// Flow orchestrates runs for one session: it owns the user input queue,
// launches agents, and settles each run into a terminal outcome on the
// router. A Flow is safe for concurrent use.
type Flow struct {
	router *stream.Router
	rec    stream.Recorder

	mu      sync.Mutex
	queue   []string
	waiter  chan string
	cancels map[string]context.CancelFunc
}

func NewFlow(router *stream.Router, rec stream.Recorder) *Flow {
	return &Flow{
		router:  router,
		rec:     rec,
		cancels: make(map[string]context.CancelFunc),
	}
}

func (f *Flow) Conversation() *message.Conversation { return f.router.Conversation() }

// Submit records a user message and hands it to a pending UserInput call,
// or queues it in FIFO order if nobody is waiting yet.
func (f *Flow) Submit(text string) message.Handle {
	h := f.appendRecorded(message.Entry{
		Kind:   message.KindUser,
		Text:   text,
		Status: message.StatusSuccess,
	})
	f.mu.Lock()
	if f.waiter != nil {
		w := f.waiter
		f.waiter = nil
		f.mu.Unlock()
		w <- text
		return h
	}
	f.queue = append(f.queue, text)
	f.mu.Unlock()
	return h
}

// UserInput returns the next submitted input, waiting for one if the queue
// is empty. A run asking for input while another wait is outstanding gets
// ErrInputPending.
func (f *Flow) UserInput(ctx context.Context) (string, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		text := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return text, nil
	}
	if f.waiter != nil {
		f.mu.Unlock()
		return "", ErrInputPending
	}
	w := make(chan string, 1)
	f.waiter = w
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		f.mu.Lock()
		if f.waiter == w {
			f.waiter = nil
		}
		f.mu.Unlock()
		select {
		case text := <-w:
			// Submit won the race; keep the input for the next caller.
			f.mu.Lock()
			f.queue = append([]string{text}, f.queue...)
			f.mu.Unlock()
		default:
		}
		return "", ctx.Err()
	case text := <-w:
		return text, nil
	}
}

// EmitStatus records a transient status line in the conversation.
func (f *Flow) EmitStatus(text string) message.Handle {
	return f.appendRecorded(message.Entry{
		Kind:   message.KindStatus,
		Text:   text,
		Status: message.StatusSuccess,
	})
}

// RunAgent drives one agent run to a terminal outcome. The producer and the
// router consumer run concurrently; whichever fails first tears the other
// down through the shared context. A context cancelled from outside settles
// the run as cancelled, a producer error as failed.
func (f *Flow) RunAgent(ctx context.Context, ag Agent, prompt, parentID string) (string, stream.Outcome, error) {
	runID := GenerateRunID()
	if err := f.router.StartRun(runID, ag.Name(), parentID); err != nil {
		return runID, stream.OutcomeFailed, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancels[runID] = cancel
	f.mu.Unlock()
	defer func() {
		cancel()
		f.mu.Lock()
		delete(f.cancels, runID)
		f.mu.Unlock()
	}()

	events := make(chan stream.Event, eventBuffer)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer close(events)
		return ag.Run(gctx, runID, prompt, events)
	})
	g.Go(func() error {
		return f.router.Consume(gctx, events)
	})
	err := g.Wait()

	if outcome, done := f.router.RunOutcome(runID); done {
		// A run_error event already settled the run.
		return runID, outcome, f.router.RunFailureErr(runID)
	}
	switch {
	case runCtx.Err() != nil && errors.Is(err, context.Canceled):
		if cerr := f.router.CancelRun(runID); cerr != nil {
			return runID, stream.OutcomeCancelled, cerr
		}
		return runID, stream.OutcomeCancelled, nil
	case err != nil:
		if ferr := f.router.FailRun(runID, err); ferr != nil {
			return runID, stream.OutcomeFailed, ferr
		}
		return runID, stream.OutcomeFailed, f.router.RunFailureErr(runID)
	default:
		if cerr := f.router.CompleteRun(runID); cerr != nil {
			return runID, stream.OutcomeFailed, cerr
		}
		return runID, stream.OutcomeCompleted, nil
	}
}

// RunSubAgent nests an agent run under a fresh subagent entry and returns
// the final text the nested run produced. The subagent entry's terminal
// status mirrors the nested outcome.
func (f *Flow) RunSubAgent(ctx context.Context, ag Agent, description, prompt string) (string, stream.Outcome, error) {
	conv := f.Conversation()
	parent := conv.Append(message.Entry{
		Kind:      message.KindSubAgent,
		AgentName: ag.Name(),
		Text:      description,
		Status:    message.StatusExecuting,
	})
	f.record(parent)

	_, outcome, err := f.RunAgent(ctx, ag, prompt, parent.ID())

	status := message.StatusSuccess
	switch outcome {
	case stream.OutcomeFailed:
		status = message.StatusError
	case stream.OutcomeCancelled:
		status = message.StatusCancelled
	}
	if _, cerr := conv.Complete(parent, status, ""); cerr == nil {
		f.record(parent)
	}
	return f.finalText(parent.ID()), outcome, err
}

// RunSubAgents launches several nested runs concurrently and waits for all
// of them. The first error is returned once every run has settled.
func (f *Flow) RunSubAgents(ctx context.Context, ag Agent, prompts []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, prompt := range prompts {
		g.Go(func() error {
			_, _, err := f.RunSubAgent(gctx, ag, "", prompt)
			return err
		})
	}
	return g.Wait()
}

// Cancel tears down one active run.
func (f *Flow) Cancel(runID string) bool {
	f.mu.Lock()
	cancel, ok := f.cancels[runID]
	f.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// CancelAll tears down every active run.
func (f *Flow) CancelAll() {
	f.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(f.cancels))
	for _, c := range f.cancels {
		cancels = append(cancels, c)
	}
	f.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (f *Flow) finalText(parentID string) string {
	var text string
	for _, e := range f.Conversation().Children(parentID) {
		if e.Kind == message.KindAgent && e.Text != "" {
			text = e.Text
		}
	}
	return text
}

func (f *Flow) appendRecorded(e message.Entry) message.Handle {
	h := f.Conversation().Append(e)
	f.record(h)
	return h
}

func (f *Flow) record(h message.Handle) {
	if f.rec == nil {
		return
	}
	if e, ok := f.Conversation().Entry(h); ok {
		_, _ = f.rec.Append(e)
	}
}

// GenerateRunID returns a unique, time-ordered run identifier.
func GenerateRunID() string {
	return "run-" + time.Now().UTC().Format("20060102-150405") + "-" + randomHex(3)
}

func randomHex(n int) string {
	if n <= 0 {
		n = 4
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return strings.ReplaceAll(time.Now().UTC().Format("150405.000000000"), ".", "")
	}
	return hex.EncodeToString(buf)
}
