package delivery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"lynxbot/internal/platform"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkToLinesShortText(t *testing.T) {
	got := slices.Collect(ChunkToLines("hello\nworld"))
	assert.Equal(t, []string{"hello\nworld"}, got)

	assert.Empty(t, slices.Collect(ChunkToLines("")))
}

func TestChunkToLinesExactLimit(t *testing.T) {
	text := strings.Repeat("a", DefaultMaxLength)
	got := slices.Collect(ChunkToLines(text))
	require.Len(t, got, 1)
	assert.Equal(t, text, got[0])
}

func TestChunkToLinesBacksOffToNewline(t *testing.T) {
	a := New(10)
	got := slices.Collect(a.ChunkToLines("abc\ndefghijkl\nmn"))

	want := []string{"abc", "\ndefghijkl", "\nmn"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestChunkToLinesNoCutInsideLine(t *testing.T) {
	a := New(20)
	lines := []string{"first line", "second line", "third", "fourth line here"}
	text := strings.Join(lines, "\n")

	chunks := slices.Collect(a.ChunkToLines(text))
	assert.Equal(t, text, strings.Join(chunks, ""))
	for i, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 20)
		if i > 0 {
			assert.True(t, strings.HasPrefix(c, "\n"), "chunk %d %q should start at a line break", i, c)
		}
	}
}

func TestChunkToLinesCutAtNewline(t *testing.T) {
	// character right after the cut is already a newline: no back-off
	a := New(5)
	got := slices.Collect(a.ChunkToLines("ab\ncd\nef"))
	assert.Equal(t, []string{"ab\ncd", "\nef"}, got)
}

func TestChunkToLinesLongLineIsHardCut(t *testing.T) {
	a := New(4)
	got := slices.Collect(a.ChunkToLines("\nabcdefg"))
	assert.Equal(t, []string{"\nabc", "defg"}, got)
}

func TestChunkToLinesRunes(t *testing.T) {
	a := New(3)
	got := slices.Collect(a.ChunkToLines("🦊🦊🦊🦊"))
	assert.Equal(t, []string{"🦊🦊🦊", "🦊"}, got)
}

func TestChunkToLinesRestartableAndStoppable(t *testing.T) {
	a := New(2)
	seq := a.ChunkToLines("aabbcc")
	assert.Equal(t, slices.Collect(seq), slices.Collect(seq))

	var first []string
	for c := range seq {
		first = append(first, c)
		break
	}
	assert.Equal(t, []string{"aa"}, first)
}

func TestChunkAndDeliver(t *testing.T) {
	a := New(3)
	var sent []string
	ok := a.ChunkAndDeliver("ab\ncdefg", func(s string) error {
		sent = append(sent, s)
		return nil
	})
	assert.True(t, ok)
	assert.Equal(t, []string{"ab\n", "cde", "fg"}, sent)
}

func TestChunkAndDeliverStopsOnFailure(t *testing.T) {
	a := New(2)
	calls := 0
	ok := a.ChunkAndDeliver("aabbcc", func(s string) error {
		calls++
		if calls == 2 {
			return errors.New("rate limited")
		}
		return nil
	})
	assert.False(t, ok)
	assert.Equal(t, 2, calls)
}

type recordingSender struct {
	texts   []string
	replies []*platform.MessageRef
	failAt  int
}

func (r *recordingSender) Send(ctx context.Context, target, text string, replyTo *platform.MessageRef) (platform.MessageRef, error) {
	if r.failAt > 0 && len(r.texts)+1 == r.failAt {
		return platform.MessageRef{}, errors.New("boom")
	}
	r.texts = append(r.texts, text)
	r.replies = append(r.replies, replyTo)
	return platform.MessageRef{Target: target, ID: fmt.Sprintf("m%d", len(r.texts))}, nil
}

func TestFollowUpThreadsChunks(t *testing.T) {
	a := New(4)
	sender := &recordingSender{}
	inbound := &platform.MessageRef{Target: "chan-1", ID: "in"}

	refs, err := a.FollowUp(context.Background(), sender, "chan-1", "abcdefghij", inbound)
	require.NoError(t, err)

	assert.Equal(t, []string{"abcd", "efgh", "ij"}, sender.texts)
	require.Len(t, refs, 3)
	assert.Equal(t, inbound, sender.replies[0])
	assert.Equal(t, "m1", sender.replies[1].ID)
	assert.Equal(t, "m2", sender.replies[2].ID)
}

func TestFollowUpStopsOnError(t *testing.T) {
	a := New(2)
	sender := &recordingSender{failAt: 2}

	refs, err := a.FollowUp(context.Background(), sender, "chan-1", "aabbcc", nil)
	assert.Error(t, err)
	assert.Len(t, refs, 1)
	assert.Nil(t, sender.replies[0])
}
