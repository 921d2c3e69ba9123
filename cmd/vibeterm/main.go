package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"vibeterm/internal/agent"
	"vibeterm/internal/appinfo"
	"vibeterm/internal/llm"
	"vibeterm/internal/mcpclient"
	"vibeterm/internal/message"
	"vibeterm/internal/runner"
	"vibeterm/internal/session"
	"vibeterm/internal/stream"
	"vibeterm/internal/tools"
	"vibeterm/internal/tui"
)

func main() {
	args := os.Args[1:]
	var err error
	if len(args) > 0 {
		switch args[0] {
		case "chat":
			err = runChat(args[1:])
		case "sessions":
			err = runSessions(args[1:])
		case "version":
			fmt.Println(appinfo.Display())
		default:
			err = runChat(args)
		}
	} else {
		err = runChat(nil)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	mcpConfigPath := fs.String("mcp-config", "mcp.json", "path to MCP server config")
	sessionID := fs.String("session", "", "resume the given session id")
	resume := fs.Bool("resume", false, "resume the most recent session for this directory")
	plain := fs.Bool("plain", false, "line-oriented output instead of the full-screen UI")
	temperature := fs.Float64("temperature", 0.2, "LLM temperature")
	agentName := fs.String("name", "assistant", "display name of the main agent")
	listSessions := fs.Bool("list-sessions", false, "print stored sessions for this directory and exit")
	fs.Parse(args)

	if *listSessions {
		return runSessions(nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := loadClient(*configPath)
	if err != nil {
		return err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	baseDir, err := session.DefaultBaseDir()
	if err != nil {
		return err
	}

	id, resuming, err := resolveSession(baseDir, workDir, *sessionID, *resume)
	if err != nil {
		return err
	}
	log, err := session.Open(baseDir, workDir, id)
	if err != nil {
		return err
	}

	conv := message.NewConversation()
	if resuming {
		conv, err = log.Replay()
		if err != nil {
			return fmt.Errorf("replay session %s: %w", id, err)
		}
	}

	router := stream.NewRouter(conv, log)
	flow := runner.NewFlow(router, log)

	todos := tools.NewTodoStore()
	registry := tools.NewRegistry()
	registry.Register(&tools.ListFilesTool{})
	registry.Register(&tools.ReadFileTool{})
	registry.Register(&tools.WriteFileTool{})
	registry.Register(&tools.EditFileTool{})
	registry.Register(&tools.ExecCommandTool{})
	registry.Register(&tools.TodoWriteTool{Store: todos})
	registry.Register(&tools.TodoReadTool{Store: todos})

	mcp := mcpclient.NewRuntime(*mcpConfigPath)
	defer func() {
		if closeErr := mcp.Close(); closeErr != nil {
			fmt.Fprintln(os.Stderr, "warning:", closeErr)
		}
	}()
	if _, statErr := os.Stat(*mcpConfigPath); statErr == nil {
		if report, reloadErr := mcp.Reload(ctx); reloadErr != nil {
			fmt.Fprintln(os.Stderr, "warning:", reloadErr)
		} else {
			for _, skipped := range report.Skipped {
				fmt.Fprintln(os.Stderr, "warning:", skipped)
			}
		}
		for _, tool := range mcp.Tools() {
			registry.Register(tool)
		}
	}
	registry.Register(&tools.MCPReloadTool{Reload: func(ctx context.Context) (string, error) {
		report, err := mcp.Reload(ctx)
		if err != nil {
			return "", err
		}
		for _, tool := range mcp.Tools() {
			registry.Register(tool)
		}
		return report.String(), nil
	}})

	prompt := agent.SystemPrompt(workDir, mcp.ToolNames())
	ag := agent.New(*agentName, client, registry, prompt)
	ag.Temperature = float32(*temperature)
	if resuming {
		ag.SeedHistory(agent.HistoryFromEntries(conv.Entries()))
	}

	spawn := func(name string) *agent.Agent {
		sub := agent.New(name, client, registry, prompt)
		sub.Temperature = ag.Temperature
		return sub
	}
	registry.Register(agent.NewTaskTool(flow, spawn))

	go driveRuns(ctx, flow, ag)

	opts := tui.Options{Flow: flow, Title: appinfo.Display() + " · " + id}
	if *plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return tui.RunPlain(ctx, os.Stdin, os.Stdout, opts)
	}
	return tui.Run(ctx, os.Stdin, os.Stdout, opts)
}

// driveRuns serializes the session's top-level runs: one prompt in, one
// settled run out, until the context ends.
func driveRuns(ctx context.Context, flow *runner.Flow, ag *agent.Agent) {
	for {
		prompt, err := flow.UserInput(ctx)
		if err != nil {
			return
		}
		if _, _, runErr := flow.RunAgent(ctx, ag, prompt, ""); runErr != nil {
			fmt.Fprintln(os.Stderr, "warning: run failed:", runErr)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func loadClient(configPath string) (*llm.Client, error) {
	if _, err := os.Stat(configPath); err == nil {
		return llm.NewClientFromConfig(configPath)
	}
	return llm.NewClientFromEnv()
}

func resolveSession(baseDir, workDir, explicit string, resume bool) (id string, resuming bool, err error) {
	if strings.TrimSpace(explicit) != "" {
		return strings.TrimSpace(explicit), true, nil
	}
	if resume {
		latest, ok, lerr := session.Latest(baseDir, workDir)
		if lerr != nil {
			return "", false, lerr
		}
		if ok {
			return latest.ID, true, nil
		}
	}
	return session.NewSessionID(), false, nil
}

func runSessions(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	fs.Parse(args)

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	baseDir, err := session.DefaultBaseDir()
	if err != nil {
		return err
	}
	infos, err := session.List(baseDir, workDir)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no sessions for", workDir)
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%s  %s  %d bytes\n", info.ID, info.ModifiedAt.Format("2006-01-02 15:04:05"), info.Size)
	}
	return nil
}
