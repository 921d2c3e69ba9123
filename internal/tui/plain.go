package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"vibeterm/internal/message"
)

// RunPlain is the line-oriented fallback for non-TTY stdout. Finished
// entries print as they settle; input lines go straight to the flow.
func RunPlain(ctx context.Context, in io.Reader, out io.Writer, opts Options) error {
	if opts.Flow == nil {
		return errors.New("plain ui requires a flow")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes, unsubscribe := opts.Flow.Conversation().Subscribe()
	defer unsubscribe()
	go func() {
		for {
			select {
			case ch, ok := <-changes:
				if !ok {
					return
				}
				if line := plainLine(ch); line != "" {
					fmt.Fprintln(out, line)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" || text == "/exit" {
			break
		}
		opts.Flow.Submit(text)
	}
	opts.Flow.CancelAll()
	return scanner.Err()
}

func plainLine(ch message.Change) string {
	e := ch.Entry
	switch e.Kind {
	case message.KindUser:
		if ch.Op == message.OpAppend {
			return "> " + e.Text
		}
	case message.KindAgent:
		if ch.Op == message.OpComplete && strings.TrimSpace(e.Text) != "" {
			return e.Text
		}
	case message.KindTool:
		if ch.Op == message.OpComplete {
			return fmt.Sprintf("[%s %s] %s", e.ToolName(), e.Status, flattenText(toolSummary(e)))
		}
	case message.KindSubAgent:
		if ch.Op == message.OpComplete {
			return fmt.Sprintf("[task %s] %s", e.Status, e.Text)
		}
	case message.KindStatus:
		if ch.Op == message.OpAppend {
			return "* " + e.Text
		}
	}
	return ""
}
