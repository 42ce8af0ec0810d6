// Package delivery splits generated text into platform-sized messages.
//
// Two chunking policies exist and callers choose deliberately:
// ChunkToLines backs off to line breaks and is used for threaded
// follow-ups; ChunkAndDeliver slices at fixed length.
package delivery

import (
	"context"
	"fmt"
	"iter"

	"lynxbot/internal/logging"
	"lynxbot/internal/platform"
)

// DefaultMaxLength is the platform message ceiling, in characters.
const DefaultMaxLength = 2000

// Adapter chunks and delivers text. The zero value uses DefaultMaxLength.
type Adapter struct {
	MaxLength int
}

// New returns an Adapter with the given ceiling.
func New(maxLength int) *Adapter {
	return &Adapter{MaxLength: maxLength}
}

func (a *Adapter) max() int {
	if a == nil || a.MaxLength <= 0 {
		return DefaultMaxLength
	}
	return a.MaxLength
}

// ChunkToLines yields chunks of at most MaxLength characters. When the
// character right after a cut is not a newline, the cut moves back to the
// last newline inside the chunk, which then starts the next chunk.
// The sequence can be ranged over more than once.
func (a *Adapter) ChunkToLines(text string) iter.Seq[string] {
	limit := a.max()
	return func(yield func(string) bool) {
		runes := []rune(text)
		for i := 0; i < len(runes); {
			n := min(limit, len(runes)-i)
			if len(runes)-i > n && runes[i+n] != '\n' {
				if nl := lastNewline(runes[i : i+n]); nl > 0 {
					n = nl
				}
			}
			if !yield(string(runes[i : i+n])) {
				return
			}
			i += n
		}
	}
}

func lastNewline(rs []rune) int {
	for j := len(rs) - 1; j >= 0; j-- {
		if rs[j] == '\n' {
			return j
		}
	}
	return -1
}

// ChunkAndDeliver sends text in fixed MaxLength slices. It stops at the
// first failed send and reports false; nothing is retried.
func (a *Adapter) ChunkAndDeliver(text string, send func(string) error) bool {
	limit := a.max()
	runes := []rune(text)
	for i := 0; i < len(runes); i += limit {
		chunk := string(runes[i:min(i+limit, len(runes))])
		if err := send(chunk); err != nil {
			logging.DeliveryWarn("chunk %d failed: %v", i/limit, err)
			return false
		}
	}
	return true
}

// FollowUp sends text as line-aware chunks. The first chunk replies to
// replyTo (which may be nil), each later chunk to the one before it.
// It returns the handles of the chunks that were sent.
func (a *Adapter) FollowUp(ctx context.Context, sender platform.Sender, target, text string, replyTo *platform.MessageRef) ([]platform.MessageRef, error) {
	var sent []platform.MessageRef
	prev := replyTo
	for chunk := range a.ChunkToLines(text) {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		ref, err := sender.Send(ctx, target, chunk, prev)
		if err != nil {
			return sent, fmt.Errorf("send chunk %d to %s: %w", len(sent), target, err)
		}
		sent = append(sent, ref)
		prev = &ref
	}
	logging.DeliveryDebug("delivered %d chunks to %s", len(sent), target)
	return sent, nil
}

var defaultAdapter = &Adapter{}

// ChunkToLines uses the default ceiling.
func ChunkToLines(text string) iter.Seq[string] { return defaultAdapter.ChunkToLines(text) }

// ChunkAndDeliver uses the default ceiling.
func ChunkAndDeliver(text string, send func(string) error) bool {
	return defaultAdapter.ChunkAndDeliver(text, send)
}

// FollowUp uses the default ceiling.
func FollowUp(ctx context.Context, sender platform.Sender, target, text string, replyTo *platform.MessageRef) ([]platform.MessageRef, error) {
	return defaultAdapter.FollowUp(ctx, sender, target, text, replyTo)
}
