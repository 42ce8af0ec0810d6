package inference

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lynxbot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGenAITestClient(t *testing.T, handler http.HandlerFunc) *GenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewGenAIClient(context.Background(), GenAIConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "gemini-test",
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	return client
}

func TestGenAIClient_TextAndUsage(t *testing.T) {
	var body map[string]any
	client := newGenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"Respond\": false}"}]}}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":3,"totalTokenCount":10}}`))
	})

	resp, err := client.Complete(context.Background(), &Request{
		Messages: []types.Message{
			types.SystemMessage("first rule"),
			types.SystemMessage("second rule"),
			types.UserMessage("alice: hello"),
			types.AssistantMessage("hi alice"),
		},
		Temperature:     Temperature(0),
		MaxOutputTokens: 20,
		Schema:          map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"Respond": false}`, resp.Text)
	assert.Equal(t, 7, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)

	contents := body["contents"].([]any)
	assert.Len(t, contents, 2, "system messages are folded into the instruction")
	sys := body["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)["text"]
	assert.Equal(t, "first rule\n\nsecond rule", sys)
	gen := body["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", gen["responseMimeType"])
	assert.EqualValues(t, 20, gen["maxOutputTokens"])
}

func TestGenAIClient_FunctionCall(t *testing.T) {
	var body map[string]any
	client := newGenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"grab_site_content","args":{"url":"https://go.dev"}}}]}}]}`))
	})

	resp, err := client.Complete(context.Background(), &Request{
		Messages: []types.Message{types.UserMessage("what is on go.dev")},
		Tools: []types.ToolDefinition{{
			Name:        "grab_site_content",
			Description: "Read a website",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{"url": map[string]any{"type": "string"}}},
		}},
		ToolMode: ToolModeRequireAny,
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "grab_site_content", resp.ToolCalls[0].Name)
	assert.Equal(t, "https://go.dev", resp.ToolCalls[0].Input["url"])

	mode := body["toolConfig"].(map[string]any)["functionCallingConfig"].(map[string]any)["mode"]
	assert.Equal(t, "ANY", mode)
}

func TestGenAIClient_HTTPErrorCarriesStatus(t *testing.T) {
	client := newGenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := client.Complete(context.Background(), &Request{Messages: []types.Message{types.UserMessage("x")}})
	require.Error(t, err)
	assert.True(t, IsError(err))
}

func TestNewGenAIClient_RequiresKey(t *testing.T) {
	_, err := NewGenAIClient(context.Background(), GenAIConfig{})
	assert.Error(t, err)
}
