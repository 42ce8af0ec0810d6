package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lynxbot/internal/logging"
	"lynxbot/internal/types"
)

// OpenAIConfig configures an OpenAI-compatible chat completions client.
// BaseURL points at any compatible server (OpenAI, Ollama, llama.cpp).
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIClient speaks the /chat/completions protocol.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	// backoff is the base delay between retries of 429/5xx responses.
	backoff time.Duration
}

// NewOpenAIClient creates an OpenAI-compatible client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    time.Second,
	}
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    any              `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    *float32              `json:"temperature,omitempty"`
	Tools          []openAITool          `json:"tools,omitempty"`
	ToolChoice     string                `json:"tool_choice,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string           `json:"role"`
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	body := openAIRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		body.ResponseFormat = &openAIResponseFormat{
			Type:       "json_schema",
			JSONSchema: &openAIJSONSchema{Name: name, Schema: req.Schema, Strict: true},
		}
	}
	if len(req.Tools) > 0 {
		body.Tools = make([]openAITool, len(req.Tools))
		for i, t := range req.Tools {
			body.Tools[i] = openAITool{
				Type:     "function",
				Function: openAIFunction{Name: t.Name, Description: t.Description, Parameters: t.InputSchema},
			}
		}
		switch req.ToolMode {
		case ToolModeRequireAny:
			body.ToolChoice = "required"
		case ToolModeNone:
			body.ToolChoice = "none"
		default:
			body.ToolChoice = "auto"
		}
	}

	parsed, status, err := c.execute(ctx, body)
	if err != nil {
		return nil, &Error{Provider: "openai", Model: model, StatusCode: status, Err: err}
	}
	if len(parsed.Choices) == 0 {
		return nil, &Error{Provider: "openai", Model: model, Err: fmt.Errorf("no choices in response")}
	}

	msg := parsed.Choices[0].Message
	out := &Response{
		Text:  msg.Content,
		Model: model,
		Usage: types.UsageMetadata{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, &Error{Provider: "openai", Model: model, Err: fmt.Errorf("failed to unmarshal arguments for tool %s: %w", tc.Function.Name, err)}
			}
		}
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: args})
	}
	return out, nil
}

// execute posts body with retries on 429 and 5xx.
func (c *OpenAIClient) execute(ctx context.Context, body openAIRequest) (*openAIResponse, int, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	var lastStatus int
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, lastStatus, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		resp.Body.Close()
		if err != nil {
			return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
		}

		lastStatus = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("retryable status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
			logging.APIWarn("openai attempt %d: %v", attempt+1, lastErr)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resp.StatusCode, fmt.Errorf("API request failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed openAIResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if parsed.Error != nil {
			return nil, resp.StatusCode, fmt.Errorf("API error: %s", parsed.Error.Message)
		}
		return &parsed, resp.StatusCode, nil
	}
	return nil, lastStatus, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func toOpenAIMessages(msgs []types.Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleTool:
			if m.ToolResult == nil {
				continue
			}
			out = append(out, openAIMessage{
				Role:       "tool",
				Content:    m.ToolResult.Output,
				ToolCallID: m.ToolResult.CallID,
				Name:       m.ToolResult.Name,
			})
		case types.RoleAssistant:
			om := openAIMessage{Role: "assistant", Content: m.Text}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Input)
				call := openAIToolCall{ID: tc.ID, Type: "function"}
				call.Function.Name = tc.Name
				call.Function.Arguments = string(args)
				om.ToolCalls = append(om.ToolCalls, call)
			}
			out = append(out, om)
		default:
			om := openAIMessage{Role: string(m.Role), Content: m.Text}
			if images := imageParts(m.Attachments); len(images) > 0 {
				parts := []openAIContentPart{{Type: "text", Text: m.Text}}
				om.Content = append(parts, images...)
			}
			out = append(out, om)
		}
	}
	return out
}

func imageParts(atts []types.Attachment) []openAIContentPart {
	var parts []openAIContentPart
	for _, a := range atts {
		if !a.IsImage() || len(a.Data) == 0 {
			continue
		}
		url := "data:" + a.MimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
		parts = append(parts, openAIContentPart{Type: "image_url", ImageURL: &openAIImageURL{URL: url}})
	}
	return parts
}
