package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"vibeterm/internal/message"
	"vibeterm/internal/runner"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

type Options struct {
	Flow  *runner.Flow
	Title string
}

// Run starts the interactive terminal UI and blocks until the user quits.
// The flow's conversation drives the transcript; user input goes back
// through Flow.Submit.
func Run(ctx context.Context, in io.Reader, out io.Writer, opts Options) error {
	if opts.Flow == nil {
		return errors.New("tui requires a flow")
	}
	if f, ok := out.(*os.File); ok {
		if !term.IsTerminal(int(f.Fd())) {
			return fmt.Errorf("stdout is not a TTY; use --plain")
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newModel(ctx, opts)
	changes, unsubscribe := opts.Flow.Conversation().Subscribe()
	defer unsubscribe()
	go func() {
		for {
			select {
			case ch, ok := <-changes:
				if !ok {
					return
				}
				select {
				case model.events <- changeMsg{Change: ch}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	prog := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	_, err := prog.Run()
	return err
}

type changeMsg struct {
	Change message.Change
}

type tickMsg struct{}

type model struct {
	ctx  context.Context
	flow *runner.Flow

	events chan tea.Msg

	title  string
	width  int
	height int

	order   []string
	entries map[string]message.Entry

	input    textinput.Model
	viewport viewport.Model
	markdown *renderer

	spinnerFrame  int
	stickToBottom bool
	notice        string
}

func newModel(ctx context.Context, opts Options) *model {
	inp := textinput.New()
	inp.Placeholder = "Type a message…"
	inp.Prompt = "› "
	inp.CharLimit = 0
	inp.Focus()

	vp := viewport.New(0, 0)
	vp.SetContent("")

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = "vibeterm"
	}

	return &model{
		ctx:           ctx,
		flow:          opts.Flow,
		events:        make(chan tea.Msg, 512),
		title:         title,
		entries:       make(map[string]message.Entry),
		input:         inp,
		viewport:      vp,
		markdown:      newRenderer(80),
		stickToBottom: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tickCmd(),
		waitAsyncCmd(m.events),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func waitAsyncCmd(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.rerender()
		return m, nil

	case changeMsg:
		m.applyChange(msg.Change)
		m.rerender()
		return m, waitAsyncCmd(m.events)

	case tickMsg:
		if m.busy() {
			m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		}
		return m, tickCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.flow.CancelAll()
		return m, tea.Quit
	case "esc":
		if m.busy() {
			m.flow.CancelAll()
			m.notice = "cancelling…"
			return m, nil
		}
		return m, tea.Quit
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.SetValue("")
		m.notice = ""
		m.flow.Submit(text)
		return m, nil
	case "pgup", "pgdown", "up", "down":
		m.stickToBottom = false
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		if m.viewport.AtBottom() {
			m.stickToBottom = true
		}
		return m, cmd
	case "end":
		m.stickToBottom = true
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) applyChange(ch message.Change) {
	if _, seen := m.entries[ch.Entry.ID]; !seen {
		m.order = append(m.order, ch.Entry.ID)
	}
	m.entries[ch.Entry.ID] = ch.Entry
}

func (m *model) busy() bool {
	for _, e := range m.entries {
		if e.Status == message.StatusExecuting {
			return true
		}
	}
	return false
}

func (m *model) spinner() string {
	return spinnerFrames[m.spinnerFrame%len(spinnerFrames)]
}

func (m *model) resize() {
	inputH := 1
	headerH := 1
	footerH := 1
	m.viewport.Width = max(0, m.width)
	m.viewport.Height = max(0, m.height-inputH-headerH-footerH)
	m.input.Width = max(10, m.width-4)
	m.markdown = newRenderer(max(20, m.width-4))
}

func (m *model) rerender() {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	var lines []string
	for _, id := range m.order {
		e := m.entries[id]
		if e.ParentID != "" {
			continue
		}
		lines = append(lines, m.renderEntry(e, width, 0)...)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if m.stickToBottom {
		m.viewport.GotoBottom()
	}
}

func (m *model) childrenOf(parentID string) []message.Entry {
	var out []message.Entry
	for _, id := range m.order {
		e := m.entries[id]
		if e.ParentID == parentID {
			out = append(out, e)
		}
	}
	return out
}

func (m *model) View() string {
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	if m.busy() {
		header += " " + lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Render(m.spinner()+" working (esc to cancel)")
	}
	footer := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("enter send · esc cancel/quit · ctrl+c quit")
	if m.notice != "" {
		footer = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Render(m.notice)
	}
	return header + "\n" + m.viewport.View() + "\n" + m.input.View() + "\n" + footer
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
