// Package inference is the transport boundary to language models. Every
// generation in lynxbot, gated or not, goes through a Client.
package inference

import (
	"context"
	"errors"
	"fmt"

	"lynxbot/internal/types"
)

// ToolMode controls whether the model may, must or must not call tools.
type ToolMode int

const (
	ToolModeAuto ToolMode = iota
	ToolModeNone
	// ToolModeRequireAny forces the model to select at least one tool.
	ToolModeRequireAny
)

func (m ToolMode) String() string {
	switch m {
	case ToolModeNone:
		return "none"
	case ToolModeRequireAny:
		return "require_any"
	default:
		return "auto"
	}
}

// Request is a single completion request.
type Request struct {
	// Model overrides the client's default model when set.
	Model    string
	Messages []types.Message

	// Temperature is nil for the provider default.
	Temperature     *float32
	MaxOutputTokens int

	// Schema is a JSON schema the reply text must satisfy.
	Schema     map[string]any
	SchemaName string

	Tools    []types.ToolDefinition
	ToolMode ToolMode
}

// Response is the model's reply.
type Response struct {
	Text      string
	ToolCalls []types.ToolCall
	Usage     types.UsageMetadata
	Model     string
}

// Client completes requests against a model provider.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ClientFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(t float32) *float32 { return &t }

// Error is returned for any transport or provider failure.
type Error struct {
	Provider   string
	Model      string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inference %s/%s: status %d: %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("inference %s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsError reports whether err is (or wraps) an inference Error.
func IsError(err error) bool {
	var ie *Error
	return errors.As(err, &ie)
}

// wrapError converts err to an *Error unless it already is one.
func wrapError(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return err
	}
	return &Error{Provider: provider, Model: model, Err: err}
}
