package platform

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect(t *testing.T, c *Console) []Event {
	t.Helper()
	var events []Event
	err := c.Run(context.Background(), func(ctx context.Context, ev Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	return events
}

func TestConsoleRunParsesLines(t *testing.T) {
	in := strings.NewReader("Poofyfox: hey lynxbot\n\nhello there\n/join chan-2\nsee http://x.dev\n")
	var out bytes.Buffer
	c := NewConsole(ConsoleConfig{In: in, Out: &out, Seed: "chan-1", User: "me"})

	events := collect(t, c)
	require.Len(t, events, 3)

	assert.Equal(t, "Poofyfox", events[0].AuthorName)
	assert.Equal(t, "hey lynxbot", events[0].Text)
	assert.Equal(t, "chan-1", events[0].ConversationSeed)
	assert.NotEmpty(t, events[0].MessageID)
	assert.NotNil(t, events[0].Ref())

	assert.Equal(t, "me", events[1].AuthorName)
	assert.Equal(t, "hello there", events[1].Text)

	assert.Equal(t, "chan-2", events[2].ConversationSeed)
	assert.Equal(t, "see http://x.dev", events[2].Text)
	assert.Contains(t, out.String(), "joined chan-2")
}

func TestConsoleAuthorIDsAreStable(t *testing.T) {
	c := NewConsole(ConsoleConfig{In: strings.NewReader("a: one\na: two\nb: three\n"), Out: &bytes.Buffer{}})
	events := collect(t, c)
	require.Len(t, events, 3)
	assert.Equal(t, events[0].AuthorID, events[1].AuthorID)
	assert.NotEqual(t, events[0].AuthorID, events[2].AuthorID)
}

func TestConsoleRunStopsOnCancel(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()

	c := NewConsole(ConsoleConfig{In: r, Out: &bytes.Buffer{}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, func(context.Context, Event) {}) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	// unblock the reader goroutine
	r.Close()
	time.Sleep(10 * time.Millisecond)
}

func TestConsoleSendAndStatus(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(ConsoleConfig{In: strings.NewReader(""), Out: &out, Seed: "chan-1"})

	ref, err := c.Send(context.Background(), "chan-1", "hi there", &MessageRef{Target: "chan-1", ID: "abcdef123456"})
	require.NoError(t, err)
	assert.Equal(t, "chan-1", ref.Target)
	assert.NotEmpty(t, ref.ID)
	assert.Contains(t, out.String(), "lynxbot")
	assert.Contains(t, out.String(), "hi there")
	assert.Contains(t, out.String(), "abcdef12")

	require.NoError(t, c.SetStatus(context.Background(), "Chasing my own tail again"))
	assert.Equal(t, "Chasing my own tail again", c.Status())
	assert.Equal(t, 1, c.Sent())
}

func TestConsoleMarkdown(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(ConsoleConfig{In: strings.NewReader(""), Out: &out, Markdown: true, Width: 40})
	_, err := c.Send(context.Background(), "console", "**bold** move", nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "bold")
	assert.Contains(t, out.String(), "move")
}

func TestConsoleWorkspace(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	c := NewConsole(ConsoleConfig{In: strings.NewReader("Poofyfox: hi\n"), Out: &out, Seed: "general", FileDir: dir})
	collect(t, c)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, "general", "otters")
	require.NoError(t, err)
	assert.Equal(t, "thread", thread.Kind)
	_, err = c.CreateThread(ctx, "general", "  ")
	assert.Error(t, err)

	channels, err := c.ListChannels(ctx, "general")
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "general", channels[0].Name)
	assert.Equal(t, "otters", channels[1].Name)

	invite, err := c.CreateInvite(ctx, "general", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(invite, "https://invite.local/"))

	profile, err := c.LookupProfile(ctx, "general", "poofyfox")
	require.NoError(t, err)
	assert.Equal(t, "Poofyfox", profile.Name)
	_, err = c.LookupProfile(ctx, "general", "ghost")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = c.SendFile(ctx, "general", "../shot.png", []byte{1, 2, 3}, "a screenshot")
	require.NoError(t, err)
	files := c.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "shot.png", files[0].Name)
	data, err := os.ReadFile(filepath.Join(dir, "shot.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.Contains(t, out.String(), "[file shot.png, 3 bytes] a screenshot")
}

type countingGateway struct {
	mu    sync.Mutex
	sends int
}

func (g *countingGateway) Send(ctx context.Context, target, text string, replyTo *MessageRef) (MessageRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends++
	return MessageRef{Target: target, ID: "x"}, nil
}
func (g *countingGateway) SetStatus(ctx context.Context, text string) error { return nil }
func (g *countingGateway) Run(ctx context.Context, h Handler) error         { return nil }

func TestThrottleWaitsForTokens(t *testing.T) {
	inner := &countingGateway{}
	g := Throttle(inner, 1, 1)

	_, err := g.Send(context.Background(), "c", "one", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Send(ctx, "c", "two", nil)
	assert.Error(t, err, "second send must wait longer than the deadline")
	assert.Equal(t, 1, inner.sends)
}

func TestThrottleDisabled(t *testing.T) {
	inner := &countingGateway{}
	g := Throttle(inner, 0, 0)
	for i := 0; i < 10; i++ {
		_, err := g.Send(context.Background(), "c", "x", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 10, inner.sends)
	assert.NoError(t, g.SetStatus(context.Background(), "passes through"))
}
