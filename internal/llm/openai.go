package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"
)

func (c *Client) ensureOpenAISDK() error {
	if c == nil {
		return errors.New("nil client")
	}
	if c.openaiReady {
		return nil
	}
	apiKey := strings.TrimSpace(c.APIKey)
	if apiKey == "" {
		return errors.New("api key is required")
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
	}
	if base := strings.TrimSpace(c.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/v1") {
			base = strings.TrimRight(base, "/") + "/v1"
		}
		opts = append(opts, openaioption.WithBaseURL(base))
	}
	if c.HTTPClient != nil {
		opts = append(opts, openaioption.WithHTTPClient(c.HTTPClient))
	}
	c.openaiSDK = openai.NewClient(opts...)
	c.openaiReady = true
	return nil
}

func (c *Client) chatOpenAI(ctx context.Context, req ChatRequest, fn StreamHandler) (*ChatResponse, error) {
	if err := c.ensureOpenAISDK(); err != nil {
		return nil, err
	}
	params, err := c.toOpenAIParams(req)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	if fn == nil {
		completion, err := c.openaiSDK.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, err
		}
		return fromOpenAICompletion(completion, start), nil
	}

	stream := c.openaiSDK.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			fn(StreamDelta{Text: text})
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return fromOpenAICompletion(&acc.ChatCompletion, start), nil
}

func (c *Client) toOpenAIParams(req ChatRequest) (openai.ChatCompletionNewParams, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = strings.TrimSpace(c.Model)
	}
	if model == "" {
		return openai.ChatCompletionNewParams{}, errors.New("model is required")
	}

	messages, err := toOpenAIMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 && c.MaxTokens > 0 {
		maxTokens = c.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	if req.Temperature != 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		tools, err := toOpenAITools(req.Tools)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func toOpenAIMessages(msgs []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		role := strings.TrimSpace(strings.ToLower(m.Role))
		switch role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "user":
			out = append(out, openai.UserMessage(m.Content))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if strings.TrimSpace(m.Content) != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, call := range m.ToolCalls {
				name := strings.TrimSpace(call.Function.Name)
				if name == "" {
					return nil, errors.New("tool call missing function name")
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: call.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      name,
							Arguments: call.Function.Arguments,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case "tool":
			if strings.TrimSpace(m.ToolCallID) == "" {
				return nil, errors.New("tool message missing tool_call_id")
			}
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			if role == "" {
				return nil, errors.New("message role is required")
			}
			return nil, fmt.Errorf("unsupported message role: %q", m.Role)
		}
	}
	return out, nil
}

func toOpenAITools(tools []ToolDefinition) ([]openai.ChatCompletionToolUnionParam, error) {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		typ := strings.TrimSpace(strings.ToLower(t.Type))
		if typ != "" && typ != "function" {
			return nil, fmt.Errorf("unsupported tool type: %q", t.Type)
		}
		schema, err := toJSONSchemaMap(t.Function.Parameters)
		if err != nil {
			return nil, err
		}
		def := openai.FunctionDefinitionParam{
			Name:       t.Function.Name,
			Parameters: openai.FunctionParameters(schema),
		}
		if desc := strings.TrimSpace(t.Function.Description); desc != "" {
			def.Description = openai.String(desc)
		}
		out = append(out, openai.ChatCompletionFunctionTool(def))
	}
	return out, nil
}

func fromOpenAICompletion(completion *openai.ChatCompletion, startedAt time.Time) *ChatResponse {
	if completion == nil {
		return &ChatResponse{
			Choices: []Choice{{Index: 0, Message: Message{Role: "assistant"}}},
		}
	}
	choices := make([]Choice, 0, len(completion.Choices))
	for _, ch := range completion.Choices {
		msg := Message{
			Role:    "assistant",
			Content: ch.Message.Content,
		}
		for _, call := range ch.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   call.ID,
				Type: "function",
				Function: ToolCallFunction{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
		choices = append(choices, Choice{
			Index:        int(ch.Index),
			Message:      msg,
			FinishReason: string(ch.FinishReason),
		})
	}
	if len(choices) == 0 {
		choices = []Choice{{Index: 0, Message: Message{Role: "assistant"}}}
	}
	created := completion.Created
	if created == 0 {
		created = startedAt.Unix()
	}
	return &ChatResponse{
		ID:      completion.ID,
		Object:  string(completion.Object),
		Created: created,
		Model:   completion.Model,
		Choices: choices,
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
}
