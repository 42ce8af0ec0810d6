package tools

import (
	"context"

	"lynxbot/internal/chatctx"
	"lynxbot/internal/inference"
	"lynxbot/internal/logging"
	"lynxbot/internal/types"
	"lynxbot/internal/usage"
)

const dispatchPrompt = `You are the tool dispatcher for a chat bot in a group chat.
Select the single tool that best fulfils the most recent user message and fill in its arguments from the conversation.
Never invent URLs; only use URLs that appear in the conversation or that are well known.`

const composePrompt = `The tool result above answers the most recent user message.
Write the chat reply that shares the result with the user. Respond with only the message text.`

// InvokerConfig configures capability dispatch.
type InvokerConfig struct {
	// Model is the tool-selection model; empty uses the client default.
	Model string
	// ChatModel composes the final reply; empty uses the client default.
	ChatModel string
	// MaxCycles above 1 lets the model chain further tool calls.
	MaxCycles int
	// ComposeReply turns the raw tool output into a chat reply.
	ComposeReply bool
	// Personality lines added to the compose step.
	Personality func() string
}

// Invoker dispatches one conversation turn to a registered capability.
type Invoker struct {
	registry *Registry
	store    *chatctx.Store
	client   inference.Client
	cfg      InvokerConfig
}

// NewInvoker creates an Invoker.
func NewInvoker(registry *Registry, store *chatctx.Store, client inference.Client, cfg InvokerConfig) *Invoker {
	if cfg.MaxCycles < 1 {
		cfg.MaxCycles = 1
	}
	return &Invoker{registry: registry, store: store, client: client, cfg: cfg}
}

// InvokeForConversation asks the tool model to pick a capability for the
// conversation's latest message, runs it and returns the reply text.
// The first selection is forced (RequireAny) at temperature 0.
func (inv *Invoker) InvokeForConversation(ctx context.Context, seed string) (string, error) {
	if inv.registry.Count() == 0 {
		return "", &ExecutionError{Err: ErrNoTools}
	}

	history, err := inv.store.Read(seed)
	if err != nil {
		return "", err
	}

	ctx = WithConversation(ctx, seed)
	ctx = usage.WithConversation(usage.WithOperation(ctx, "tool"), seed)

	msgs := append([]types.Message{types.SystemMessage(dispatchPrompt)}, history...)
	defs := inv.registry.Definitions()
	mode := inference.ToolModeRequireAny

	var lastOutput string
	executed := 0
	for cycle := 0; cycle < inv.cfg.MaxCycles; cycle++ {
		resp, err := inv.client.Complete(ctx, &inference.Request{
			Model:       inv.cfg.Model,
			Messages:    msgs,
			Temperature: inference.Temperature(0),
			Tools:       defs,
			ToolMode:    mode,
		})
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			if executed == 0 {
				return "", &ExecutionError{Err: ErrNoToolCall}
			}
			if resp.Text != "" {
				return resp.Text, nil
			}
			break
		}

		call := resp.ToolCalls[0]
		if len(resp.ToolCalls) > 1 {
			logging.ToolsWarn("model requested %d tools, running only %s", len(resp.ToolCalls), call.Name)
		}
		logging.Tools("dispatching %s for %s (cycle %d)", call.Name, seed, cycle+1)

		result, err := inv.registry.Execute(ctx, call.Name, call.Input)
		if err != nil {
			logging.ToolsError("tool %s failed: %v", call.Name, err)
			return "", &ExecutionError{Tool: call.Name, Err: err}
		}
		executed++
		lastOutput = result.Result

		msgs = append(msgs,
			types.Message{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{call}},
			types.Message{Role: types.RoleTool, ToolResult: &types.ToolResult{CallID: call.ID, Name: call.Name, Output: result.Result}},
		)
		mode = inference.ToolModeAuto
	}

	if !inv.cfg.ComposeReply {
		return lastOutput, nil
	}
	return inv.compose(ctx, msgs, defs, lastOutput)
}

// compose turns the tool transcript into a chat reply. A failed compose
// falls back to the raw tool output since the capability itself succeeded.
func (inv *Invoker) compose(ctx context.Context, msgs []types.Message, defs []types.ToolDefinition, raw string) (string, error) {
	final := append(msgs, types.SystemMessage(composePrompt))
	if inv.cfg.Personality != nil {
		if p := inv.cfg.Personality(); p != "" {
			final = append(final, types.SystemMessage(p))
		}
	}
	resp, err := inv.client.Complete(usage.WithOperation(ctx, "tool_compose"), &inference.Request{
		Model:    inv.cfg.ChatModel,
		Messages: final,
		Tools:    defs,
		ToolMode: inference.ToolModeNone,
	})
	if err != nil || resp.Text == "" {
		logging.ToolsWarn("compose failed, returning raw tool output: %v", err)
		return raw, nil
	}
	return resp.Text, nil
}
