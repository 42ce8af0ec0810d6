package inference

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"lynxbot/internal/types"
	"lynxbot/internal/usage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeout_WrapsDeadline(t *testing.T) {
	slow := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := WithTimeout(slow, 10*time.Millisecond).Complete(context.Background(), &Request{Model: "m"})
	require.Error(t, err)
	assert.True(t, IsError(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestWithTimeout_PassesThrough(t *testing.T) {
	s := (&Scripted{}).Reply("fine")
	resp, err := WithTimeout(s, time.Second).Complete(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "fine", resp.Text)
}

func TestWithUsage_RecordsOperation(t *testing.T) {
	tracker := usage.NewTracker()
	s := (&Scripted{}).Push(&Response{Text: "x", Usage: types.UsageMetadata{InputTokens: 5, OutputTokens: 2}}, nil)

	ctx := usage.WithOperation(context.Background(), "gate_respond")
	_, err := WithUsage(s, tracker, "gemini").Complete(ctx, &Request{Model: "flash"})
	require.NoError(t, err)

	stats := tracker.Stats()
	assert.EqualValues(t, 7, stats.ByOperation["gate_respond"].Total)
	assert.EqualValues(t, 7, stats.ByModel["flash"].Total)
}

func TestWithDefaultModel(t *testing.T) {
	s := (&Scripted{}).Reply("a").Reply("b")
	c := WithDefaultModel(s, "chat-model")

	req := &Request{}
	_, err := c.Complete(context.Background(), req)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), &Request{Model: "vision"})
	require.NoError(t, err)

	calls := s.Calls()
	assert.Equal(t, "chat-model", calls[0].Model)
	assert.Equal(t, "vision", calls[1].Model)
	assert.Empty(t, req.Model, "caller's request must not be mutated")
}

func TestScripted_ExhaustedIsInferenceError(t *testing.T) {
	_, err := (&Scripted{}).Complete(context.Background(), &Request{})
	assert.True(t, IsError(err))
}

func TestEcho_SchemaAndPlain(t *testing.T) {
	e := NewEcho()
	resp, err := e.Complete(context.Background(), &Request{
		Messages: []types.Message{types.UserMessage("alice: hi")},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"Respond": map[string]any{"type": "boolean"},
				"Tools":   map[string]any{"type": "boolean"},
			},
		},
	})
	require.NoError(t, err)
	var out map[string]bool
	require.NoError(t, json.Unmarshal([]byte(resp.Text), &out))
	assert.True(t, out["Respond"])
	assert.False(t, out["Tools"])

	resp, err = e.Complete(context.Background(), &Request{Messages: []types.Message{types.UserMessage("alice: hi")}})
	require.NoError(t, err)
	assert.Equal(t, "echo: alice: hi", resp.Text)
}
