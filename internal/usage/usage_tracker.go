// Package usage keeps in-memory token accounting for inference calls.
package usage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type operationKey struct{}
type conversationKey struct{}

// Tracker aggregates token usage. It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	stats AggregatedStats
	now   func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		now: time.Now,
		stats: AggregatedStats{
			ByProvider:     make(map[string]TokenCounts),
			ByModel:        make(map[string]TokenCounts),
			ByOperation:    make(map[string]TokenCounts),
			ByConversation: make(map[string]TokenCounts),
		},
	}
}

// Track records one call. Operation and conversation labels are read from ctx.
func (t *Tracker) Track(ctx context.Context, model, provider string, input, output int) {
	t.Record(Event{
		Timestamp:    t.now(),
		Model:        model,
		Provider:     provider,
		InputTokens:  input,
		OutputTokens: output,
		Operation:    OperationFrom(ctx),
		Conversation: ConversationFrom(ctx),
	})
}

// Record adds ev to the aggregates.
func (t *Tracker) Record(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Total.Add(ev.InputTokens, ev.OutputTokens)
	t.stats.Calls++
	addToMap(t.stats.ByProvider, labelOr(ev.Provider), ev.InputTokens, ev.OutputTokens)
	addToMap(t.stats.ByModel, labelOr(ev.Model), ev.InputTokens, ev.OutputTokens)
	addToMap(t.stats.ByOperation, labelOr(ev.Operation), ev.InputTokens, ev.OutputTokens)
	if ev.Conversation != "" {
		addToMap(t.stats.ByConversation, ev.Conversation, ev.InputTokens, ev.OutputTokens)
	}
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.stats
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByOperation = copyTokenCountsMap(stats.ByOperation)
	stats.ByConversation = copyTokenCountsMap(stats.ByConversation)
	return stats
}

// Summary renders the per-operation totals, one line each, sorted by name.
func (t *Tracker) Summary() string {
	stats := t.Stats()
	ops := make([]string, 0, len(stats.ByOperation))
	for op := range stats.ByOperation {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d calls, %d tokens (%d in / %d out)\n",
		stats.Calls, stats.Total.Total, stats.Total.Input, stats.Total.Output)
	for _, op := range ops {
		c := stats.ByOperation[op]
		fmt.Fprintf(&sb, "  %-14s %d\n", op, c.Total)
	}
	return sb.String()
}

func labelOr(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

// Context Helpers

// WithOperation labels calls made with ctx.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey{}, operation)
}

// OperationFrom returns the operation label, or "".
func OperationFrom(ctx context.Context) string {
	op, _ := ctx.Value(operationKey{}).(string)
	return op
}

// WithConversation attributes calls made with ctx to a conversation seed.
func WithConversation(ctx context.Context, seed string) context.Context {
	return context.WithValue(ctx, conversationKey{}, seed)
}

// ConversationFrom returns the conversation label, or "".
func ConversationFrom(ctx context.Context) string {
	seed, _ := ctx.Value(conversationKey{}).(string)
	return seed
}
