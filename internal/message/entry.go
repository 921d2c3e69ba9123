package message

import (
	"strings"
	"time"
)

type Kind string

const (
	KindUser      Kind = "user"
	KindAgent     Kind = "agent"
	KindReasoning Kind = "reasoning"
	KindTool      Kind = "tool"
	KindSubAgent  Kind = "subagent"
	KindStatus    Kind = "status"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusExecuting Status = "executing"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

func IsTerminalStatus(status Status) bool {
	switch status {
	case StatusSuccess, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// Entry is one node of conversation content. All entries, including those
// nested under a sub-agent run, live in one flat sequence; ParentID links a
// nested entry to its owning subagent entry.
type Entry struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Kind      Kind      `json:"kind"`
	AgentName string    `json:"agent_name,omitempty"`
	Text      string    `json:"text,omitempty"`
	Status    Status    `json:"status"`
	Tool      *ToolCall `json:"tool,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolCall carries the invocation and completion data of a tool entry.
// Arguments are fixed at invocation; Output is set exactly once on
// completion.
type ToolCall struct {
	CallID    string     `json:"call_id"`
	Name      string     `json:"name"`
	Arguments string     `json:"arguments,omitempty"`
	Output    string     `json:"output,omitempty"`
	Detail    ToolDetail `json:"detail"`
}

type ToolVariant string

const (
	VariantGeneric ToolVariant = "generic"
	VariantShell   ToolVariant = "shell"
	VariantRead    ToolVariant = "read"
	VariantWrite   ToolVariant = "write"
	VariantEdit    ToolVariant = "edit"
	VariantPython  ToolVariant = "python"
	VariantTodo    ToolVariant = "todo"
	VariantTask    ToolVariant = "task"
	VariantMCP     ToolVariant = "mcp"
)

// ToolDetail is the parsed, render-ready view of a tool call. Only the
// fields of the active variant are populated; everything else stays zero.
type ToolDetail struct {
	Variant     ToolVariant `json:"variant"`
	FilePath    string      `json:"file_path,omitempty"`
	Content     string      `json:"content,omitempty"`
	Command     string      `json:"command,omitempty"`
	Code        string      `json:"code,omitempty"`
	Description string      `json:"description,omitempty"`
	Prompt      string      `json:"prompt,omitempty"`
	ServerName  string      `json:"server_name,omitempty"`
	ToolName    string      `json:"tool_name,omitempty"`
	Todos       []TodoItem  `json:"todos,omitempty"`
}

type TodoItem struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

func (e Entry) Terminal() bool {
	return IsTerminalStatus(e.Status)
}

// DisplayText returns the text the renderer should show for this entry.
func (e Entry) DisplayText() string {
	if e.Kind == KindTool && e.Tool != nil {
		return e.Tool.Output
	}
	return e.Text
}

func (e Entry) ToolName() string {
	if e.Tool == nil {
		return ""
	}
	return strings.TrimSpace(e.Tool.Name)
}
