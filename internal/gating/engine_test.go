package gating

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lynxbot/internal/chatctx"
	"lynxbot/internal/inference"
	"lynxbot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTools string

func (f fakeTools) Describe() string { return string(f) }

// gateClient answers each gate by schema name.
func gateClient(respond, tools string) *inference.Scripted {
	return &inference.Scripted{Handler: func(req *inference.Request) (*inference.Response, error) {
		switch req.SchemaName {
		case "ShouldRespond":
			return &inference.Response{Text: respond}, nil
		case "ShouldUseTools":
			return &inference.Response{Text: tools}, nil
		}
		return nil, errors.New("unexpected request")
	}}
}

func newStore(t *testing.T) *chatctx.Store {
	t.Helper()
	store := chatctx.NewStore(15)
	store.EnsureConversation("chan-1", "chat preamble", "personality")
	require.NoError(t, store.Append("chan-1", types.UserMessage("Poofyfox: hey lynxbot, search the web for otters")))
	return store
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		respond string
		tools   string
		want    Decision
	}{
		{"silent", `{"Respond": false}`, `{"Tools": true}`, Silent},
		{"plain", `{"Respond": true}`, `{"Tools": false}`, Plain},
		{"tools", `{"Respond": true}`, `{"Tools": true}`, Tools},
		{"malformed respond", `sure!`, `{"Tools": true}`, Silent},
		{"malformed tools", `{"Respond": true}`, `{"Tool": true}`, Plain},
		{"empty respond", ``, `{"Tools": true}`, Silent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(newStore(t), gateClient(tt.respond, tt.tools), fakeTools(""), Config{})
			assert.Equal(t, tt.want, engine.Decide(context.Background(), "chan-1"))
		})
	}
}

func TestShouldRespondRequest(t *testing.T) {
	client := gateClient(`{"Respond": true}`, "")
	engine := NewEngine(newStore(t), client, nil, Config{
		Names:   []string{"Realynx Bot", "foxbot"},
		Mention: "<@42>",
		Model:   "gate-model",
	})

	require.True(t, engine.ShouldRespond(context.Background(), "chan-1"))

	calls := client.Calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, "gate-model", req.Model)
	assert.Equal(t, 20, req.MaxOutputTokens)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, float32(0), *req.Temperature)
	assert.Equal(t, RespondSchema, req.Schema)

	// system prompt, then only the conversational history
	require.Len(t, req.Messages, 2)
	assert.Equal(t, types.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Text, "'Realynx Bot', or 'foxbot'")
	assert.Contains(t, req.Messages[0].Text, "<@42>")
	assert.Equal(t, types.RoleUser, req.Messages[1].Role)
}

func TestShouldUseToolsListsCapabilities(t *testing.T) {
	client := gateClient("", `{"Tools": true}`)
	listing := "Function Name: search_web - Description: Searches the web\n"
	engine := NewEngine(newStore(t), client, fakeTools(listing), Config{})

	require.True(t, engine.ShouldUseTools(context.Background(), "chan-1"))

	req := client.Calls()[0]
	assert.Equal(t, 8, req.MaxOutputTokens)
	require.Len(t, req.Messages, 3)
	assert.True(t, strings.HasPrefix(req.Messages[1].Text, "Available Tools:"))
	assert.Contains(t, req.Messages[1].Text, "Function Name: search_web - Description: Searches the web")
	assert.Contains(t, req.Messages[0].Text, "Do not use tools for image analysis")
}

func TestGateFailuresResolveToFalse(t *testing.T) {
	failing := &inference.Scripted{Handler: func(*inference.Request) (*inference.Response, error) {
		return nil, &inference.Error{Provider: "scripted", Err: context.DeadlineExceeded}
	}}
	engine := NewEngine(newStore(t), failing, nil, Config{})

	assert.False(t, engine.ShouldRespond(context.Background(), "chan-1"))
	assert.False(t, engine.ShouldUseTools(context.Background(), "chan-1"))
	assert.Equal(t, Silent, engine.Decide(context.Background(), "chan-1"))
}

func TestGateOnUnknownConversation(t *testing.T) {
	client := gateClient(`{"Respond": true}`, `{"Tools": true}`)
	engine := NewEngine(newStore(t), client, nil, Config{})

	assert.False(t, engine.ShouldRespond(context.Background(), "missing"))
	assert.Empty(t, client.Calls())
}

func TestGatesDoNotRecord(t *testing.T) {
	store := newStore(t)
	engine := NewEngine(store, gateClient(`{"Respond": true}`, `{"Tools": false}`), nil, Config{})
	before := store.Len("chan-1")

	engine.Decide(context.Background(), "chan-1")
	assert.Equal(t, before, store.Len("chan-1"))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "silent", Silent.String())
	assert.Equal(t, "plain", Plain.String())
	assert.Equal(t, "tools", Tools.String())
}
