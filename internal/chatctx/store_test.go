package chatctx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"lynxbot/internal/inference"
	"lynxbot/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFor(t *testing.T) {
	assert.Equal(t, KeyFor("chan-1"), KeyFor("chan-1"))
	assert.NotEqual(t, KeyFor("chan-1"), KeyFor("chan-2"))
	assert.Equal(t, 5, int(KeyFor("chan-1").Version()))
}

func TestEnsureConversation_Idempotent(t *testing.T) {
	s := NewStore(15)

	assert.True(t, s.EnsureConversation("chan-1", "preamble"))
	require.NoError(t, s.Append("chan-1", types.UserMessage("alice: hi")))
	assert.False(t, s.EnsureConversation("chan-1", "other preamble"))

	msgs, err := s.Read("chan-1")
	require.NoError(t, err)
	want := []types.Message{types.SystemMessage("preamble"), types.UserMessage("alice: hi")}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestAppend_NotFound(t *testing.T) {
	s := NewStore(15)
	err := s.Append("nobody", types.UserMessage("x"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "nobody", nf.Seed)

	_, err = s.Read("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.ImportFilteredHistory("nobody", nil), ErrNotFound)
}

func TestAppend_PrunesKeepingPreamble(t *testing.T) {
	s := NewStore(15)
	s.EnsureConversation("chan-1", "You are a chat assistant.")

	for i := 0; i < 40; i++ {
		require.NoError(t, s.Append("chan-1", types.UserMessage(fmt.Sprintf("u%d", i))))
		assert.LessOrEqual(t, s.Len("chan-1"), 15)
	}

	msgs, err := s.Read("chan-1")
	require.NoError(t, err)
	require.Len(t, msgs, 15)
	assert.Equal(t, types.SystemMessage("You are a chat assistant."), msgs[0])
	assert.Equal(t, "u26", msgs[1].Text, "oldest non-system messages are evicted first")
	assert.Equal(t, "u39", msgs[14].Text)
}

func TestPrune_MultiSystemPreamble(t *testing.T) {
	s := NewStore(5)
	s.EnsureConversation("c", "rules", "personality")
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append("c", types.UserMessage(fmt.Sprint(i))))
	}

	msgs, _ := s.Read("c")
	require.Len(t, msgs, 5)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Equal(t, types.RoleSystem, msgs[1].Role)
	assert.Equal(t, []string{"7", "8", "9"}, []string{msgs[2].Text, msgs[3].Text, msgs[4].Text})
}

func TestPrune_SystemRunLongerThanMax(t *testing.T) {
	got := prune([]types.Message{
		types.SystemMessage("a"), types.SystemMessage("b"), types.SystemMessage("c"),
		types.UserMessage("u"),
	}, 2)
	assert.Len(t, got, 3)
	assert.Equal(t, "c", got[2].Text)
}

func TestRead_ReturnsCopy(t *testing.T) {
	s := NewStore(15)
	s.EnsureConversation("c")
	require.NoError(t, s.Append("c", types.UserMessage("original")))

	msgs, _ := s.Read("c")
	msgs[0].Text = "mutated"

	again, _ := s.Read("c")
	assert.Equal(t, "original", again[0].Text)
}

func TestImportFilteredHistory(t *testing.T) {
	s := NewStore(15)
	s.EnsureConversation("status", "make a status")

	other := []types.Message{
		types.SystemMessage("someone else's preamble"),
		types.UserMessage("bob: lol"),
		types.AssistantMessage("haha"),
	}
	require.NoError(t, s.ImportFilteredHistory("status", other))

	msgs, _ := s.Read("status")
	want := []types.Message{
		types.SystemMessage("make a status"),
		types.UserMessage("bob: lol"),
		types.AssistantMessage("haha"),
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("imported history mismatch (-want +got):\n%s", diff)
	}
}

func TestInfer_RecordsAssistantReply(t *testing.T) {
	s := NewStore(15)
	s.EnsureConversation("chan-1", "preamble")
	require.NoError(t, s.Append("chan-1", types.UserMessage("alice: hi")))

	client := (&inference.Scripted{}).Reply("hello alice")
	text, err := s.Infer(context.Background(), client, "chan-1",
		WithSchema("status", map[string]any{"type": "object"}),
		WithTemperature(0),
		WithMaxTokens(20),
		WithModel("status-model"),
	)
	require.NoError(t, err)
	assert.Equal(t, "hello alice", text)

	msgs, _ := s.Read("chan-1")
	require.Len(t, msgs, 3)
	assert.Equal(t, types.AssistantMessage("hello alice"), msgs[2])

	req := client.Calls()[0]
	assert.Len(t, req.Messages, 2)
	assert.Equal(t, "status", req.SchemaName)
	assert.Equal(t, float32(0), *req.Temperature)
	assert.Equal(t, 20, req.MaxOutputTokens)
	assert.Equal(t, "status-model", req.Model)
}

func TestInfer_StubEchoScenario(t *testing.T) {
	s := NewStore(15)
	s.EnsureConversation("chan-1", "you are a test bot")
	require.NoError(t, s.Append("chan-1", types.UserMessage("hello")))

	_, err := s.Infer(context.Background(), (&inference.Scripted{}).Reply("hi"), "chan-1")
	require.NoError(t, err)

	msgs, err := s.Read("chan-1")
	require.NoError(t, err)
	assert.Equal(t, []types.Message{
		types.SystemMessage("you are a test bot"),
		types.UserMessage("hello"),
		types.AssistantMessage("hi"),
	}, msgs)
}

func TestInfer_ErrorLeavesHistory(t *testing.T) {
	s := NewStore(15)
	s.EnsureConversation("c")
	require.NoError(t, s.Append("c", types.UserMessage("x")))

	client := (&inference.Scripted{}).Fail(&inference.Error{Provider: "p", Err: errors.New("down")})
	_, err := s.Infer(context.Background(), client, "c")
	require.Error(t, err)
	assert.True(t, inference.IsError(err))
	assert.Equal(t, 1, s.Len("c"))
}

func TestInfer_DoesNotHoldLockDuringInference(t *testing.T) {
	s := NewStore(15)
	s.EnsureConversation("c")

	client := &inference.Scripted{Handler: func(req *inference.Request) (*inference.Response, error) {
		// Would deadlock if Infer held the conversation lock.
		if err := s.Append("c", types.UserMessage("arrived mid-inference")); err != nil {
			return nil, err
		}
		return &inference.Response{Text: "reply"}, nil
	}}
	_, err := s.Infer(context.Background(), client, "c")
	require.NoError(t, err)

	msgs, _ := s.Read("c")
	require.Len(t, msgs, 2)
	assert.Equal(t, "arrived mid-inference", msgs[0].Text)
	assert.Equal(t, "reply", msgs[1].Text)
}

func TestStore_ConcurrentSeeds(t *testing.T) {
	s := NewStore(10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		seed := fmt.Sprintf("chan-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.EnsureConversation(seed, "p")
			for j := 0; j < 50; j++ {
				_ = s.Append(seed, types.UserMessage("m"))
				_, _ = s.Read(seed)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, s.Seeds(), 8)
	for _, seed := range s.Seeds() {
		assert.Equal(t, 10, s.Len(seed))
	}
}

func TestNewStore_DefaultMax(t *testing.T) {
	assert.Equal(t, DefaultMaxLength, NewStore(0).MaxLength())
	assert.False(t, NewStore(1).Exists("x"))
}
