package tools

import (
	"context"
	"fmt"
	"strings"
)

type conversationKey struct{}

// WithConversation tells tools which conversation they act for.
func WithConversation(ctx context.Context, seed string) context.Context {
	return context.WithValue(ctx, conversationKey{}, seed)
}

// ConversationFrom returns the seed set by WithConversation, or "".
func ConversationFrom(ctx context.Context) string {
	seed, _ := ctx.Value(conversationKey{}).(string)
	return seed
}

// StringArg returns a required, non-blank string argument.
func StringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredArg, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s should be string, got %T", ErrInvalidArgType, name, v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrMissingRequiredArg, name)
	}
	return s, nil
}

// OptionalString returns a string argument or def.
func OptionalString(args map[string]any, name, def string) string {
	if s, ok := args[name].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return def
}

// IntArg returns a numeric argument or def. JSON numbers decode as float64.
func IntArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

// BoolArg returns a boolean argument or def.
func BoolArg(args map[string]any, name string, def bool) bool {
	if b, ok := args[name].(bool); ok {
		return b
	}
	return def
}
