package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"vibeterm/internal/llm"
)

// MCPTool adapts one remote tool to the registry's Tool interface. The
// local name is "<server>__<tool>" so collisions across servers cannot
// shadow each other or the built-in tools.
type MCPTool struct {
	ServerName  string
	LocalName   string
	RemoteName  string
	Description string
	InputSchema any
	Session     *mcp.ClientSession
}

func newTool(server *Server, remote *mcp.Tool) *MCPTool {
	desc := strings.TrimSpace(remote.Description)
	if desc == "" {
		desc = fmt.Sprintf("MCP tool from %s", server.Name)
	} else {
		desc = fmt.Sprintf("[MCP:%s] %s", server.Name, desc)
	}
	schema := remote.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &MCPTool{
		ServerName:  server.Name,
		LocalName:   qualifiedName(server.Name, remote.Name),
		RemoteName:  remote.Name,
		Description: desc,
		InputSchema: schema,
		Session:     server.session,
	}
}

func (t *MCPTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunctionDef{
			Name:        t.LocalName,
			Description: t.Description,
			Parameters:  t.InputSchema,
		},
	}
}

func (t *MCPTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	if t == nil || t.Session == nil {
		return "", fmt.Errorf("mcp tool %s is not connected", t.LocalName)
	}
	var parsed any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &parsed); err != nil {
			return "", err
		}
	}
	res, err := t.Session.CallTool(ctx, &mcp.CallToolParams{
		Name:      t.RemoteName,
		Arguments: parsed,
	})
	if err != nil {
		return "", err
	}
	return resultText(res)
}

// resultText flattens a pure-text result into plain lines; anything with
// structured or non-text content goes back as raw JSON.
func resultText(res *mcp.CallToolResult) (string, error) {
	if res == nil {
		return "", nil
	}
	if res.StructuredContent == nil {
		parts := make([]string, 0, len(res.Content))
		textOnly := true
		for _, item := range res.Content {
			text, ok := item.(*mcp.TextContent)
			if !ok {
				textOnly = false
				break
			}
			parts = append(parts, text.Text)
		}
		if textOnly {
			return strings.Join(parts, "\n"), nil
		}
	}
	data, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func qualifiedName(serverName, toolName string) string {
	server := cleanName(serverName)
	tool := cleanName(toolName)
	switch {
	case server == "":
		return tool
	case tool == "":
		return server
	default:
		return server + "__" + tool
	}
}

func cleanName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
}
