package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"vibeterm/internal/appinfo"
)

// Runtime owns the live MCP sessions and the tools exposed through them.
// Reload swaps the whole set atomically, so a broken config edit never
// takes down the sessions that were already working before the swap.
type Runtime struct {
	mu         sync.RWMutex
	configPath string
	warnf      func(format string, args ...any)
	servers    []*Server
	tools      []*MCPTool
}

// Report summarizes one reload. Skipped holds per-server and per-tool
// problems that did not abort the reload.
type Report struct {
	ConfigPath string
	Servers    int
	Tools      int
	Skipped    []string
}

func NewRuntime(configPath string) *Runtime {
	return &Runtime{
		configPath: strings.TrimSpace(configPath),
		warnf: func(format string, args ...any) {
			fmt.Fprintln(os.Stderr, "warning: "+fmt.Sprintf(format, args...))
		},
	}
}

// Reload reads the config, dials every enabled server and replaces the
// current set. A server that fails to dial is skipped, not fatal; the
// reload only errors when servers are configured and none came up.
func (r *Runtime) Reload(ctx context.Context) (Report, error) {
	path := r.configPath
	if path == "" {
		path = DefaultConfigPath
	}
	report := Report{ConfigPath: path}

	cfg, err := LoadConfig(path)
	if err != nil {
		return report, err
	}
	configs, problems := cfg.enabled()
	report.Skipped = append(report.Skipped, problems...)

	client := mcp.NewClient(&mcp.Implementation{
		Name:    appinfo.Name,
		Version: appinfo.Version,
	}, nil)

	var servers []*Server
	var tools []*MCPTool
	used := make(map[string]bool)
	for _, sc := range configs {
		srv, err := dial(ctx, client, sc)
		if err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: %v", strings.TrimSpace(sc.Name), err))
			continue
		}
		servers = append(servers, srv)
		for _, remote := range srv.tools {
			tool := newTool(srv, remote)
			if tool.LocalName == "" || used[tool.LocalName] {
				report.Skipped = append(report.Skipped, fmt.Sprintf("%s: unusable tool name %q", srv.Name, tool.LocalName))
				continue
			}
			used[tool.LocalName] = true
			tools = append(tools, tool)
		}
	}

	if len(configs) > 0 && len(servers) == 0 {
		return report, fmt.Errorf("no MCP servers reachable: %s", strings.Join(report.Skipped, "; "))
	}

	r.mu.Lock()
	previous := r.servers
	r.servers = servers
	r.tools = tools
	r.mu.Unlock()

	if err := closeAll(previous); err != nil {
		r.warnf("close previous mcp sessions: %v", err)
	}

	report.Servers = len(servers)
	report.Tools = len(tools)
	return report, nil
}

func (r *Runtime) Tools() []*MCPTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*MCPTool, len(r.tools))
	copy(out, r.tools)
	return out
}

func (r *Runtime) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for _, tool := range r.tools {
		names = append(names, tool.LocalName)
	}
	return names
}

func (r *Runtime) Close() error {
	r.mu.Lock()
	previous := r.servers
	r.servers = nil
	r.tools = nil
	r.mu.Unlock()
	return closeAll(previous)
}

func closeAll(servers []*Server) error {
	var errs []error
	for _, srv := range servers {
		if err := srv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", srv.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (rep Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mcp reload complete: config=%s servers=%d tools=%d", rep.ConfigPath, rep.Servers, rep.Tools)
	for _, skipped := range rep.Skipped {
		b.WriteString("\nskipped: ")
		b.WriteString(skipped)
	}
	return b.String()
}
