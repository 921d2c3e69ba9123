package agent

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// SystemPrompt assembles the default system prompt for an interactive
// terminal session.
func SystemPrompt(workDir string, extraTools []string) string {
	var b strings.Builder
	b.WriteString("You are a capable coding assistant running inside a terminal chat.\n")
	b.WriteString("Answer concisely in markdown. Use the available tools to inspect and change files, run commands, and track todos instead of guessing.\n")
	b.WriteString("When a task is large and self-contained, delegate it with the task tool.\n\n")
	fmt.Fprintf(&b, "Working directory: %s\n", workDir)
	fmt.Fprintf(&b, "OS: %s\n", runtime.GOOS)
	fmt.Fprintf(&b, "Date: %s\n", time.Now().Format("2006-01-02"))
	if len(extraTools) > 0 {
		fmt.Fprintf(&b, "Additional MCP tools available: %s\n", strings.Join(extraTools, ", "))
	}
	return b.String()
}
