package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server is one live session plus the tool listing taken at dial time.
type Server struct {
	Name    string
	session *mcp.ClientSession
	tools   []*mcp.Tool
}

func (s *Server) Close() error {
	if s == nil || s.session == nil {
		return nil
	}
	return s.session.Close()
}

// dial connects one configured server and snapshots its tools. The session
// is closed again on any failure after connect.
func dial(ctx context.Context, client *mcp.Client, cfg ServerConfig) (*Server, error) {
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	tools, err := listTools(ctx, session)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return &Server{Name: strings.TrimSpace(cfg.Name), session: session, tools: tools}, nil
}

func listTools(ctx context.Context, session *mcp.ClientSession) ([]*mcp.Tool, error) {
	var tools []*mcp.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		params.Cursor = res.NextCursor
	}
}

func newTransport(cfg ServerConfig) (mcp.Transport, error) {
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Transport)); kind {
	case "", "command", "stdio":
		if strings.TrimSpace(cfg.Command) == "" {
			return nil, errors.New("command is required for stdio transport")
		}
		cmd := exec.Command(cfg.Command, cfg.Args...)
		if dir := strings.TrimSpace(cfg.Dir); dir != "" {
			cmd.Dir = dir
		}
		cmd.Env = commandEnv(cfg)
		return &mcp.CommandTransport{Command: cmd}, nil
	case "sse":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("url is required for sse transport")
		}
		return &mcp.SSEClientTransport{
			Endpoint:   cfg.URL,
			HTTPClient: httpClient(cfg.Headers),
		}, nil
	case "streamable_http", "streamable", "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("url is required for streamable_http transport")
		}
		return &mcp.StreamableClientTransport{
			Endpoint:   cfg.URL,
			HTTPClient: httpClient(cfg.Headers),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", kind)
	}
}

// commandEnv resolves the child process environment. Inheriting is the
// default; explicit entries land last so they win over inherited ones.
func commandEnv(cfg ServerConfig) []string {
	inherit := cfg.InheritEnv == nil || *cfg.InheritEnv
	var env []string
	if inherit {
		env = os.Environ()
	}
	if !inherit && len(cfg.Env) == 0 {
		// Leaving cmd.Env nil would inherit anyway.
		env = []string{}
	}
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	return env
}

type headerTransport struct {
	headers map[string]string
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range h.headers {
		if strings.TrimSpace(k) == "" {
			continue
		}
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return http.DefaultTransport.RoundTrip(req)
}

func httpClient(headers map[string]string) *http.Client {
	if len(headers) == 0 {
		return nil
	}
	return &http.Client{Transport: &headerTransport{headers: headers}}
}
