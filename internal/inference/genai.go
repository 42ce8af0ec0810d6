package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"lynxbot/internal/logging"
	"lynxbot/internal/types"

	"google.golang.org/genai"
)

// GenAIConfig configures the Gemini client.
type GenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// HTTPClient is optional; tests point it at an httptest server.
	HTTPClient *http.Client
}

// GenAIClient talks to Gemini through the google.golang.org/genai SDK.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient creates a Gemini client.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GenAIClient{client: client, model: cfg.Model}, nil
}

// Complete implements Client.
func (g *GenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	contents, system := toGenAIContents(req.Messages)
	config := &genai.GenerateContentConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: int32(req.MaxOutputTokens),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(system)}}
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseJsonSchema = req.Schema
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.InputSchema,
			}
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genaiMode(req.ToolMode)},
		}
	}

	logging.APIDebug("gemini generate: model=%s contents=%d tools=%d schema=%v", model, len(contents), len(req.Tools), req.Schema != nil)
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		ie := &Error{Provider: "gemini", Model: model, Err: err}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			ie.StatusCode = apiErr.Code
		}
		return nil, ie
	}

	out := &Response{Model: model}
	for _, fc := range resp.FunctionCalls() {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{ID: fc.ID, Name: fc.Name, Input: fc.Args})
	}
	if len(out.ToolCalls) == 0 {
		out.Text = resp.Text()
	} else {
		out.Text = textParts(resp)
	}
	if resp.UsageMetadata != nil {
		out.Usage = types.UsageMetadata{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// textParts collects text from the first candidate without the SDK's
// warning about non-text parts.
func textParts(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func genaiMode(m ToolMode) genai.FunctionCallingConfigMode {
	switch m {
	case ToolModeRequireAny:
		return genai.FunctionCallingConfigModeAny
	case ToolModeNone:
		return genai.FunctionCallingConfigModeNone
	default:
		return genai.FunctionCallingConfigModeAuto
	}
}

// toGenAIContents splits messages into Gemini contents and a single system
// instruction. Gemini has no system role inside contents, so every system
// message is folded into the instruction in order.
func toGenAIContents(msgs []types.Message) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			system = append(system, m.Text)
		case types.RoleAssistant:
			parts := make([]*genai.Part, 0, 1+len(m.ToolCalls))
			if m.Text != "" {
				parts = append(parts, genai.NewPartFromText(m.Text))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, tc.Input))
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case types.RoleTool:
			if m.ToolResult == nil {
				continue
			}
			key := "output"
			if m.ToolResult.IsErr {
				key = "error"
			}
			part := genai.NewPartFromFunctionResponse(m.ToolResult.Name, map[string]any{key: m.ToolResult.Output})
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		default:
			parts := []*genai.Part{}
			if m.Text != "" {
				parts = append(parts, genai.NewPartFromText(m.Text))
			}
			for _, a := range m.Attachments {
				if len(a.Data) > 0 {
					parts = append(parts, genai.NewPartFromBytes(a.Data, a.MimeType))
				}
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
			}
		}
	}
	return contents, strings.Join(system, "\n\n")
}
