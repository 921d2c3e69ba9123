package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"vibeterm/internal/message"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	agentStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	reasoningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	toolStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	runStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

type renderer struct {
	term *glamour.TermRenderer
}

func newRenderer(wrap int) *renderer {
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		tr = nil
	}
	return &renderer{term: tr}
}

// markdown renders md content for the terminal, falling back to the raw
// text when rendering fails.
func (r *renderer) markdown(content string) string {
	if r == nil || r.term == nil {
		return content
	}
	out, err := r.term.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

func (m *model) renderEntry(e message.Entry, width, depth int) []string {
	indent := strings.Repeat("  ", depth)
	var lines []string

	switch e.Kind {
	case message.KindUser:
		for _, l := range strings.Split(e.Text, "\n") {
			lines = append(lines, indent+userStyle.Render("› "+l))
		}

	case message.KindAgent:
		text := e.Text
		if e.Terminal() && depth == 0 {
			text = m.markdown.markdown(text)
		}
		for _, l := range strings.Split(text, "\n") {
			lines = append(lines, indent+agentStyle.Render(l))
		}
		if e.Status == message.StatusExecuting {
			lines = append(lines, indent+runStyle.Render(m.spinner()))
		}

	case message.KindReasoning:
		lines = append(lines, indent+reasoningStyle.Render(truncateDisplay("thinking: "+flattenText(e.Text), width-len(indent))))

	case message.KindTool:
		lines = append(lines, indent+renderToolLine(e, width-len(indent), m.spinner()))
		lines = append(lines, renderToolDetails(e, indent, width)...)

	case message.KindSubAgent:
		label := e.Text
		if label == "" {
			label = "task"
		}
		lines = append(lines, indent+toolStyle.Render("↳ "+label)+" "+statusBadge(e.Status, m.spinner()))
		for _, child := range m.childrenOf(e.ID) {
			lines = append(lines, m.renderEntry(child, width, depth+1)...)
		}

	case message.KindStatus:
		lines = append(lines, indent+statusStyle.Render("· "+e.Text))
	}

	return lines
}

func renderToolLine(e message.Entry, width int, spinner string) string {
	name := e.ToolName()
	if name == "" {
		name = "tool"
	}
	line := toolStyle.Render("⚙ "+name) + " " + statusBadge(e.Status, spinner)
	if summary := toolSummary(e); summary != "" {
		line += " " + dimStyle.Render(truncateDisplay(summary, width-runewidth.StringWidth(name)-8))
	}
	return line
}

func renderToolDetails(e message.Entry, indent string, width int) []string {
	if e.Tool == nil {
		return nil
	}
	var lines []string
	if e.Status == message.StatusError && e.Tool.Output != "" {
		for _, l := range headLines(e.Tool.Output, 3) {
			lines = append(lines, indent+"  "+errStyle.Render(truncateDisplay(l, width-4)))
		}
		return lines
	}
	if e.Tool.Detail.Variant == message.VariantTodo {
		for _, item := range e.Tool.Detail.Todos {
			mark := "[ ]"
			switch item.Status {
			case "in_progress":
				mark = "[~]"
			case "completed":
				mark = "[x]"
			}
			lines = append(lines, indent+"  "+dimStyle.Render(truncateDisplay(mark+" "+item.Content, width-4)))
		}
	}
	return lines
}

func toolSummary(e message.Entry) string {
	if e.Tool == nil {
		return ""
	}
	d := e.Tool.Detail
	switch d.Variant {
	case message.VariantShell:
		return d.Command
	case message.VariantRead, message.VariantWrite, message.VariantEdit:
		return d.FilePath
	case message.VariantPython:
		return flattenText(d.Code)
	case message.VariantTask:
		if d.Description != "" {
			return d.Description
		}
		return flattenText(d.Prompt)
	case message.VariantTodo:
		return fmt.Sprintf("%d items", len(d.Todos))
	case message.VariantMCP:
		return d.ServerName + "/" + d.ToolName
	}
	return flattenText(e.Tool.Arguments)
}

func statusBadge(s message.Status, spinner string) string {
	switch s {
	case message.StatusExecuting:
		return runStyle.Render(spinner)
	case message.StatusSuccess:
		return okStyle.Render("✓")
	case message.StatusError:
		return errStyle.Render("✗")
	case message.StatusCancelled:
		return dimStyle.Render("⊘")
	}
	return ""
}

func flattenText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func headLines(s string, n int) []string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = append(lines[:n:n], "…")
	}
	return lines
}

// truncateDisplay shortens plain text to the given display width. Styles
// are applied after truncation, so ANSI sequences never get cut.
func truncateDisplay(s string, width int) string {
	if width <= 0 {
		return s
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
