package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"vibeterm/internal/llm"
)

type ExecCommandTool struct{}

type execCommandArgs struct {
	Command        string `json:"command"`
	Dir            string `json:"dir"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxOutputBytes int    `json:"max_output_bytes"`
}

func (t *ExecCommandTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunctionDef{
			Name:        "exec_command",
			Description: "Run a shell command and return its output and exit code.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command":          map[string]interface{}{"type": "string"},
					"dir":              map[string]interface{}{"type": "string"},
					"timeout_seconds":  map[string]interface{}{"type": "integer"},
					"max_output_bytes": map[string]interface{}{"type": "integer", "description": "Max bytes captured per stream (default 65536)"},
				},
				"required": []string{"command"},
			},
		},
	}
}

func (t *ExecCommandTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in execCommandArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("exec_command: invalid JSON arguments: %w", err)
	}
	command := strings.TrimSpace(in.Command)
	if command == "" {
		return "", errors.New("command is required")
	}

	timeout := time.Duration(in.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxBytes := in.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = 65536
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	stdoutCapture := &limitedBuffer{buf: &stdout, max: maxBytes}
	stderrCapture := &limitedBuffer{buf: &stderr, max: maxBytes}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(cmdCtx, "sh", "-c", command)
	}
	if in.Dir != "" {
		cmd.Dir = in.Dir
	}
	cmd.Env = os.Environ()
	cmd.Stdout = stdoutCapture
	cmd.Stderr = stderrCapture
	// Bound how long Wait can hang after cancellation if orphaned
	// subprocesses keep the output pipes open.
	cmd.WaitDelay = 500 * time.Millisecond
	configureExecCommandCancellation(cmd)

	start := time.Now()
	err := cmd.Run()

	ctxErr := cmdCtx.Err()
	timedOut := errors.Is(ctxErr, context.DeadlineExceeded)
	canceled := errors.Is(ctxErr, context.Canceled)
	if canceled {
		return "", context.Canceled
	}

	exitCode := 0
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		exitCode = exitErr.ExitCode()
	default:
		exitCode = -1
	}
	if timedOut {
		exitCode = -1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "exit_code: %d\n", exitCode)
	fmt.Fprintf(&b, "duration_ms: %d\n", time.Since(start).Milliseconds())
	if timedOut {
		fmt.Fprintf(&b, "timed_out: true\n")
	}
	if n := stdoutCapture.TruncatedBytes() + stderrCapture.TruncatedBytes(); n > 0 {
		fmt.Fprintf(&b, "output_truncated_bytes: %d\n", n)
	}
	fmt.Fprintf(&b, "stdout:\n%s\n", strings.TrimRight(stdout.String(), "\n"))
	fmt.Fprintf(&b, "stderr:\n%s", strings.TrimRight(stderr.String(), "\n"))

	if err != nil && exitCode == -1 && !timedOut {
		return b.String(), err
	}
	return b.String(), nil
}

type limitedBuffer struct {
	buf       *bytes.Buffer
	max       int
	truncated int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.max <= 0 {
		return l.buf.Write(p)
	}
	remaining := l.max - l.buf.Len()
	if remaining <= 0 {
		l.truncated += len(p)
		return len(p), nil
	}
	n := len(p)
	if len(p) > remaining {
		l.truncated += len(p) - remaining
		p = p[:remaining]
	}
	if _, err := l.buf.Write(p); err != nil {
		return 0, err
	}
	return n, nil
}

func (l *limitedBuffer) TruncatedBytes() int {
	return l.truncated
}
