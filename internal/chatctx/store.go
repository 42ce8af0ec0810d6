// Package chatctx keeps the bounded, per-conversation message history that
// every inference call is built from.
package chatctx

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lynxbot/internal/inference"
	"lynxbot/internal/logging"
	"lynxbot/internal/types"

	"github.com/google/uuid"
)

// DefaultMaxLength bounds a conversation when the store is built with 0.
const DefaultMaxLength = 15

// namespace scopes conversation keys so they never collide with other v5 ids.
var namespace = uuid.MustParse("6f1c7e64-3b0a-5d49-9a55-4c1f0e6f2b7d")

// Key identifies a conversation. It is a deterministic one-way function of
// the seed, stable across restarts.
type Key = uuid.UUID

// KeyFor derives the conversation key for seed.
func KeyFor(seed string) Key {
	return uuid.NewSHA1(namespace, []byte(seed))
}

type conversation struct {
	mu       sync.Mutex
	key      Key
	seed     string
	messages []types.Message
}

// Store maps conversation keys to bounded message histories.
// The map lock and each conversation lock are never held across inference.
type Store struct {
	mu            sync.RWMutex
	conversations map[Key]*conversation
	maxLength     int
}

// NewStore creates a store that bounds every conversation to maxLength.
func NewStore(maxLength int) *Store {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Store{
		conversations: make(map[Key]*conversation),
		maxLength:     maxLength,
	}
}

// MaxLength returns the per-conversation bound.
func (s *Store) MaxLength() int { return s.maxLength }

func (s *Store) get(seed string) (*conversation, error) {
	s.mu.RLock()
	c, ok := s.conversations[KeyFor(seed)]
	s.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Seed: seed}
	}
	return c, nil
}

// EnsureConversation creates the conversation for seed if needed, with each
// preamble entry as a leading system message. It reports whether the
// conversation was created; an existing conversation is left untouched.
func (s *Store) EnsureConversation(seed string, preamble ...string) bool {
	key := KeyFor(seed)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[key]; ok {
		return false
	}

	c := &conversation{key: key, seed: seed}
	for _, p := range preamble {
		c.messages = append(c.messages, types.SystemMessage(p))
	}
	c.messages = prune(c.messages, s.maxLength)
	s.conversations[key] = c
	logging.ContextDebug("conversation created: seed=%s key=%s preamble=%d", seed, key, len(preamble))
	return true
}

// Exists reports whether seed has been ensured.
func (s *Store) Exists(seed string) bool {
	_, err := s.get(seed)
	return err == nil
}

// Append adds msg to the conversation and prunes it back to the bound.
func (s *Store) Append(seed string, msg types.Message) error {
	c, err := s.get(seed)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s.appendLocked(c, msg.Clone())
	return nil
}

func (s *Store) appendLocked(c *conversation, msgs ...types.Message) {
	before := len(c.messages)
	c.messages = append(c.messages, msgs...)
	c.messages = prune(c.messages, s.maxLength)
	if dropped := before + len(msgs) - len(c.messages); dropped > 0 {
		logging.ContextDebug("pruned %d oldest messages from %s", dropped, c.seed)
	}
}

// Read returns a copy of the conversation's messages.
func (s *Store) Read(seed string) ([]types.Message, error) {
	c, err := s.get(seed)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot(c.messages), nil
}

// Len returns the number of messages in seed's conversation, or 0.
func (s *Store) Len(seed string) int {
	c, err := s.get(seed)
	if err != nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// ImportFilteredHistory appends the user and assistant messages of other.
func (s *Store) ImportFilteredHistory(seed string, other []types.Message) error {
	c, err := s.get(seed)
	if err != nil {
		return err
	}
	imported := types.Conversational(other)
	c.mu.Lock()
	defer c.mu.Unlock()
	s.appendLocked(c, imported...)
	logging.ContextDebug("imported %d messages into %s", len(imported), seed)
	return nil
}

// Seeds returns every known conversation seed, sorted.
func (s *Store) Seeds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seeds := make([]string, 0, len(s.conversations))
	for _, c := range s.conversations {
		seeds = append(seeds, c.seed)
	}
	sort.Strings(seeds)
	return seeds
}

// InferOption adjusts the request built by Infer.
type InferOption func(*inference.Request)

// WithSchema constrains the reply to a JSON schema.
func WithSchema(name string, schema map[string]any) InferOption {
	return func(r *inference.Request) {
		r.Schema = schema
		r.SchemaName = name
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) InferOption {
	return func(r *inference.Request) { r.Temperature = inference.Temperature(t) }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) InferOption {
	return func(r *inference.Request) { r.MaxOutputTokens = n }
}

// WithModel selects a model other than the client default.
func WithModel(model string) InferOption {
	return func(r *inference.Request) { r.Model = model }
}

// Infer submits the conversation to client, records the reply as an
// assistant message and returns its text. The conversation is unlocked
// while the client runs, so other seeds and appends are not blocked.
func (s *Store) Infer(ctx context.Context, client inference.Client, seed string, opts ...InferOption) (string, error) {
	c, err := s.get(seed)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.messages = prune(c.messages, s.maxLength)
	req := &inference.Request{Messages: snapshot(c.messages)}
	c.mu.Unlock()

	for _, opt := range opts {
		opt(req)
	}

	resp, err := client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("infer %s: %w", seed, err)
	}

	c.mu.Lock()
	s.appendLocked(c, types.AssistantMessage(resp.Text))
	c.mu.Unlock()
	return resp.Text, nil
}

func snapshot(msgs []types.Message) []types.Message {
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// prune removes the oldest messages after the leading system run until
// len(msgs) <= max. A system run longer than max is never cut.
func prune(msgs []types.Message, max int) []types.Message {
	if len(msgs) <= max {
		return msgs
	}
	lead := 0
	for lead < len(msgs) && msgs[lead].Role == types.RoleSystem {
		lead++
	}
	remove := len(msgs) - max
	if remove > len(msgs)-lead {
		remove = len(msgs) - lead
	}
	return append(msgs[:lead], msgs[lead+remove:]...)
}
