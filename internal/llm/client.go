package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
)

// Client talks to one chat completion backend. Type selects the wire
// protocol; everything above this package speaks the shared request and
// response types regardless of backend.
type Client struct {
	Type       ModelType
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client

	anthropicSDK anthropic.Client
	openaiSDK    openai.Client
	openaiReady  bool
}

type Config struct {
	ModelType string `json:"model_type"`
	APIKey    string `json:"api_key"`
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}

func NewClientFromEnv() (*Client, error) {
	modelType, err := ParseModelType(os.Getenv("VIBETERM_MODEL_TYPE"))
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(os.Getenv("VIBETERM_API_KEY"))
	if apiKey == "" {
		if modelType == ModelTypeAnthropics {
			apiKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		} else {
			apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		}
	}
	if apiKey == "" {
		return nil, errors.New("api key is required (VIBETERM_API_KEY)")
	}
	maxTokens := 0
	if raw := strings.TrimSpace(os.Getenv("VIBETERM_MAX_TOKENS")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			maxTokens = v
		}
	}
	return newClient(modelType, Config{
		APIKey:    apiKey,
		BaseURL:   os.Getenv("VIBETERM_BASE_URL"),
		Model:     os.Getenv("VIBETERM_MODEL"),
		MaxTokens: maxTokens,
	}), nil
}

func NewClientFromConfig(path string) (*Client, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api_key is required in config.json")
	}
	modelType, err := ParseModelType(cfg.ModelType)
	if err != nil {
		return nil, err
	}
	return newClient(modelType, cfg), nil
}

func newClient(modelType ModelType, cfg Config) *Client {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		if modelType == ModelTypeAnthropics {
			model = "claude-sonnet-4-20250514"
		} else {
			model = "gpt-4o-mini"
		}
	}
	return &Client{
		Type:      modelType,
		BaseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		APIKey:    strings.TrimSpace(cfg.APIKey),
		Model:     model,
		MaxTokens: cfg.MaxTokens,
		HTTPClient: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
}

func LoadConfig(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = "config.json"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config.json: %w", err)
	}
	return cfg, nil
}

// Chat performs one non-streaming completion.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	switch c.Type {
	case ModelTypeAnthropics:
		return c.chatAnthropics(ctx, req, nil)
	default:
		return c.chatOpenAI(ctx, req, nil)
	}
}

// ChatStream performs one completion, invoking fn for every delta as it
// arrives, and returns the fully accumulated response. Tool calls are only
// reported on the final response, never mid-stream.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, fn StreamHandler) (*ChatResponse, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	if fn == nil {
		fn = func(StreamDelta) {}
	}
	switch c.Type {
	case ModelTypeAnthropics:
		return c.chatAnthropics(ctx, req, fn)
	default:
		return c.chatOpenAI(ctx, req, fn)
	}
}
