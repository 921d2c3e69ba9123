package llm

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{"model_type":"anthropic","api_key":"sk-test","model":"claude-sonnet-4-20250514","max_tokens":2048}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	client, err := NewClientFromConfig(path)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.Type != ModelTypeAnthropics {
		t.Fatalf("type = %v", client.Type)
	}
	if client.Model != "claude-sonnet-4-20250514" || client.MaxTokens != 2048 {
		t.Fatalf("client = %+v", client)
	}
}

func TestNewClientFromConfigRequiresKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"model_type":"openai"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := NewClientFromConfig(path); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestParseModelType(t *testing.T) {
	cases := map[string]ModelType{
		"":           ModelTypeOpenAI,
		"openai":     ModelTypeOpenAI,
		"anthropic":  ModelTypeAnthropics,
		"anthropics": ModelTypeAnthropics,
		" Anthropic ": ModelTypeAnthropics,
	}
	for raw, want := range cases {
		got, err := ParseModelType(raw)
		if err != nil || got != want {
			t.Fatalf("ParseModelType(%q) = %v, %v", raw, got, err)
		}
	}
	if _, err := ParseModelType("gemini"); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
