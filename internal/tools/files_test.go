package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func callTool(t *testing.T, tool Tool, payload any) string {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	out, err := tool.Call(context.Background(), json.RawMessage(data))
	if err != nil {
		t.Fatalf("%s returned error: %v", tool.Definition().Function.Name, err)
	}
	return out
}

func TestReadFileLineRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := callTool(t, &ReadFileTool{}, map[string]any{"path": path, "start_line": 2, "end_line": 3})
	if out != "two\nthree" {
		t.Fatalf("out = %q", out)
	}
	out = callTool(t, &ReadFileTool{}, map[string]any{"path": path, "with_line_numbers": true})
	if !strings.Contains(out, "1: one") {
		t.Fatalf("line numbers missing: %q", out)
	}
}

func TestWriteFileOverwriteAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "f.txt")
	callTool(t, &WriteFileTool{}, map[string]any{"path": path, "content": "alpha\n", "create_dirs": true})
	callTool(t, &WriteFileTool{}, map[string]any{"path": path, "content": "beta\n", "append": true})
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "alpha\nbeta\n" {
		t.Fatalf("content = %q", data)
	}
}

func TestEditFileReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.go")
	if err := os.WriteFile(path, []byte("package old\n// old old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	callTool(t, &EditFileTool{}, map[string]any{
		"path": path,
		"edits": []map[string]any{
			{"old_text": "package old", "new_text": "package new"},
			{"old_text": "old", "new_text": "gone", "replace_all": true},
		},
	})
	data, _ := os.ReadFile(path)
	if string(data) != "package new\n// gone gone" {
		t.Fatalf("content = %q", data)
	}

	tool := &EditFileTool{}
	raw, _ := json.Marshal(map[string]any{"path": path, "edits": []map[string]any{{"old_text": "missing", "new_text": "x"}}})
	if _, err := tool.Call(context.Background(), raw); err == nil {
		t.Fatalf("expected error for unmatched old_text")
	}
}

func TestListFilesSkipsHidden(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", ".hidden"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	out := callTool(t, &ListFilesTool{}, map[string]any{"path": dir})
	if !strings.Contains(out, "a.txt") || strings.Contains(out, ".hidden") {
		t.Fatalf("out = %q", out)
	}
}

func TestListFilesRecursiveLimit(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for i := 0; i < 5; i++ {
		name := filepath.Join(sub, fmt.Sprintf("f%d.txt", i))
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	out := callTool(t, &ListFilesTool{}, map[string]any{"path": dir, "recursive": true, "max_entries": 3})
	if got := len(strings.Split(out, "\n")); got != 3 {
		t.Fatalf("expected 3 entries, got %d:\n%s", got, out)
	}
}
