package message

import (
	"encoding/json"
	"strings"
	"time"
)

// NewToolEntry builds a tool entry from the raw invocation data. The
// variant is chosen from the tool name; arguments that do not parse as the
// variant expects degrade to zero-value detail fields instead of failing,
// so the raw arguments always stay renderable.
func NewToolEntry(callID, name, arguments string, status Status) Entry {
	name = strings.TrimSpace(name)
	return Entry{
		Kind:   KindTool,
		Status: status,
		Tool: &ToolCall{
			CallID:    callID,
			Name:      name,
			Arguments: arguments,
			Detail:    parseDetail(name, arguments),
		},
		CreatedAt: time.Now().UTC(),
	}
}

func parseDetail(name, arguments string) ToolDetail {
	switch name {
	case "exec_command", "bash":
		var args struct {
			Command string `json:"command"`
		}
		decodeArgs(arguments, &args)
		return ToolDetail{Variant: VariantShell, Command: args.Command}
	case "read_file", "read":
		var args struct {
			Path     string `json:"path"`
			FilePath string `json:"file_path"`
		}
		decodeArgs(arguments, &args)
		return ToolDetail{Variant: VariantRead, FilePath: firstNonEmpty(args.Path, args.FilePath)}
	case "write_file", "write":
		var args struct {
			Path     string `json:"path"`
			FilePath string `json:"file_path"`
			Content  string `json:"content"`
		}
		decodeArgs(arguments, &args)
		return ToolDetail{Variant: VariantWrite, FilePath: firstNonEmpty(args.Path, args.FilePath), Content: args.Content}
	case "edit_file", "edit":
		var args struct {
			Path     string `json:"path"`
			FilePath string `json:"file_path"`
		}
		decodeArgs(arguments, &args)
		return ToolDetail{Variant: VariantEdit, FilePath: firstNonEmpty(args.Path, args.FilePath)}
	case "execute_python":
		var args struct {
			Code string `json:"code"`
		}
		decodeArgs(arguments, &args)
		return ToolDetail{Variant: VariantPython, Code: args.Code}
	case "todo_write", "todo_read":
		var args struct {
			Todos []TodoItem `json:"todos"`
		}
		decodeArgs(arguments, &args)
		return ToolDetail{Variant: VariantTodo, Todos: args.Todos}
	case "task":
		var args struct {
			Description string `json:"description"`
			Prompt      string `json:"prompt"`
		}
		decodeArgs(arguments, &args)
		return ToolDetail{Variant: VariantTask, Description: args.Description, Prompt: args.Prompt}
	}
	if server, tool, ok := splitMCPName(name); ok {
		return ToolDetail{Variant: VariantMCP, ServerName: server, ToolName: tool}
	}
	return ToolDetail{Variant: VariantGeneric}
}

// DetailForOutput refreshes detail fields that only become known once the
// tool has produced output. Today that is the todo list, whose final state
// rides on the tool output.
func DetailForOutput(d ToolDetail, output string) ToolDetail {
	if d.Variant != VariantTodo || len(d.Todos) != 0 {
		return d
	}
	var todos []TodoItem
	if err := json.Unmarshal([]byte(output), &todos); err == nil {
		d.Todos = todos
	}
	return d
}

// splitMCPName splits the qualified server__tool name an MCP registration
// produces. Names without the separator are not MCP calls.
func splitMCPName(name string) (server, tool string, ok bool) {
	name = strings.TrimPrefix(name, "mcp__")
	i := strings.Index(name, "__")
	if i <= 0 || i+2 >= len(name) {
		return "", "", false
	}
	return name[:i], name[i+2:], true
}

func decodeArgs(arguments string, dst any) {
	if strings.TrimSpace(arguments) == "" {
		return
	}
	// Malformed arguments leave dst zero-valued.
	_ = json.Unmarshal([]byte(arguments), dst)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
