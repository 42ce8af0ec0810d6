package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"lynxbot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_SchemaRequest(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Write([]byte(`{"model":"llama3","choices":[{"message":{"role":"assistant","content":"{\"Respond\":true}"}}],"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1/", Model: "llama3"})
	resp, err := client.Complete(context.Background(), &Request{
		Messages:        []types.Message{types.SystemMessage("gate"), types.UserMessage("bob: hi foxbot")},
		Temperature:     Temperature(0),
		MaxOutputTokens: 20,
		Schema:          map[string]any{"type": "object"},
		SchemaName:      "respond",
	})
	require.NoError(t, err)

	assert.Equal(t, `{"Respond":true}`, resp.Text)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 4, resp.Usage.OutputTokens)

	assert.Equal(t, "llama3", captured["model"])
	assert.EqualValues(t, 20, captured["max_tokens"])
	assert.EqualValues(t, 0, captured["temperature"])
	format := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "respond", format["json_schema"].(map[string]any)["name"])
	msgs := captured["messages"].([]any)
	assert.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAIClient_RequireAnyTools(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"c1","type":"function","function":{"name":"search_web","arguments":"{\"query\":\"go iterators\"}"}}]}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, Model: "tool-model"})
	resp, err := client.Complete(context.Background(), &Request{
		Messages: []types.Message{types.UserMessage("search go iterators")},
		Tools: []types.ToolDefinition{{
			Name:        "search_web",
			Description: "Search the web",
			InputSchema: map[string]any{"type": "object"},
		}},
		ToolMode: ToolModeRequireAny,
	})
	require.NoError(t, err)

	assert.Equal(t, "required", captured["tool_choice"])
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "search_web", resp.ToolCalls[0].Name)
	assert.Equal(t, "go iterators", resp.ToolCalls[0].Input["query"])
}

func TestOpenAIClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL})
	client.backoff = time.Millisecond
	resp, err := client.Complete(context.Background(), &Request{Messages: []types.Message{types.UserMessage("x")}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.EqualValues(t, 2, hits.Load())
}

func TestOpenAIClient_ClientErrorIsInferenceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`bad model`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, Model: "nope"})
	_, err := client.Complete(context.Background(), &Request{})
	require.Error(t, err)

	var ie *Error
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, http.StatusBadRequest, ie.StatusCode)
	assert.Equal(t, "nope", ie.Model)
}

func TestToOpenAIMessages_ImagesAndToolResults(t *testing.T) {
	msgs := toOpenAIMessages([]types.Message{
		{Role: types.RoleUser, Text: "look", Attachments: []types.Attachment{{MimeType: "image/png", Data: []byte{0x89}}}},
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "c1", Name: "t", Input: map[string]any{"a": 1}}}},
		{Role: types.RoleTool, ToolResult: &types.ToolResult{CallID: "c1", Name: "t", Output: "done"}},
	})
	require.Len(t, msgs, 3)

	parts, ok := msgs[0].Content.([]openAIContentPart)
	require.True(t, ok, "image message should use content parts")
	require.Len(t, parts, 2)
	assert.Equal(t, "data:image/png;base64,iQ==", parts[1].ImageURL.URL)

	require.Len(t, msgs[1].ToolCalls, 1)
	assert.JSONEq(t, `{"a":1}`, msgs[1].ToolCalls[0].Function.Arguments)

	assert.Equal(t, "tool", msgs[2].Role)
	assert.Equal(t, "c1", msgs[2].ToolCallID)
}
