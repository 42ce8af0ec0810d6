// Package gating decides, per inbound message, whether the bot replies and
// whether the reply needs a capability.
//
//	Received -> ShouldRespond? -> Silent
//	                           -> ShouldUseTools? -> Tools | Plain
//
// Every failure on a gate resolves to "no".
package gating

import (
	"context"
	"errors"
	"strings"

	"lynxbot/internal/chatctx"
	"lynxbot/internal/inference"
	"lynxbot/internal/logging"
	"lynxbot/internal/prompt"
	"lynxbot/internal/types"
	"lynxbot/internal/usage"
)

// Decision is the outcome of Decide.
type Decision int

const (
	Silent Decision = iota
	Plain
	Tools
)

func (d Decision) String() string {
	switch d {
	case Plain:
		return "plain"
	case Tools:
		return "tools"
	default:
		return "silent"
	}
}

const (
	respondMaxTokens = 20
	toolsMaxTokens   = 8
)

// ToolLister is the part of the capability registry the tools gate needs.
type ToolLister interface {
	Describe() string
}

// Config identifies the bot to the respond gate.
type Config struct {
	Names   []string
	Mention string
	// Model overrides the client default for both gates.
	Model string
}

// Engine runs the gates against a conversation's history.
type Engine struct {
	store  *chatctx.Store
	client inference.Client
	tools  ToolLister
	cfg    Config
	lib    *prompt.Library
}

// NewEngine creates an Engine.
func NewEngine(store *chatctx.Store, client inference.Client, tools ToolLister, cfg Config) *Engine {
	if len(cfg.Names) == 0 {
		cfg.Names = []string{"lynxbot"}
	}
	return &Engine{store: store, client: client, tools: tools, cfg: cfg, lib: prompt.Default()}
}

// Decide walks the gates for seed's latest message.
func (e *Engine) Decide(ctx context.Context, seed string) Decision {
	if !e.ShouldRespond(ctx, seed) {
		logging.GatingDebug("%s: silent", seed)
		return Silent
	}
	if e.ShouldUseTools(ctx, seed) {
		logging.Gating("%s: respond with tools", seed)
		return Tools
	}
	logging.Gating("%s: respond", seed)
	return Plain
}

// ShouldRespond reports whether the latest message is directed at the bot.
func (e *Engine) ShouldRespond(ctx context.Context, seed string) bool {
	system, err := e.lib.Render(prompt.ShouldRespond, e.identity())
	if err != nil {
		logging.GatingWarn("respond prompt: %v", err)
		return false
	}
	raw, ok := e.ask(usage.WithOperation(ctx, "gate_respond"), seed, []string{system}, RespondSchema, "ShouldRespond", respondMaxTokens)
	if !ok {
		return false
	}
	respond, err := ParseRespond(raw)
	if err != nil {
		logging.GatingWarn("%s: %v", seed, err)
		return false
	}
	return respond
}

// ShouldUseTools reports whether the latest message needs a capability.
// When no capability fits the model is still told to answer true, so the
// dispatcher can report the failure to the user.
func (e *Engine) ShouldUseTools(ctx context.Context, seed string) bool {
	system, err := e.lib.Render(prompt.ShouldUseTools, e.identity())
	if err != nil {
		logging.GatingWarn("tools prompt: %v", err)
		return false
	}
	listing := ""
	if e.tools != nil {
		listing = strings.TrimSpace(e.tools.Describe())
	}
	available, err := e.lib.Render(prompt.AvailableTools, map[string]any{"Tools": listing})
	if err != nil {
		logging.GatingWarn("tools listing prompt: %v", err)
		return false
	}

	raw, ok := e.ask(usage.WithOperation(ctx, "gate_tools"), seed, []string{system, available}, ToolsSchema, "ShouldUseTools", toolsMaxTokens)
	if !ok {
		return false
	}
	use, err := ParseTools(raw)
	if err != nil {
		logging.GatingWarn("%s: %v", seed, err)
		return false
	}
	return use
}

func (e *Engine) identity() map[string]any {
	return map[string]any{"Names": e.cfg.Names, "Mention": e.cfg.Mention}
}

// ask sends the system prompts plus the conversational history of seed.
// Gate replies are not recorded in the conversation.
func (e *Engine) ask(ctx context.Context, seed string, system []string, schema map[string]any, schemaName string, maxTokens int) (string, bool) {
	history, err := e.store.Read(seed)
	if err != nil {
		if errors.Is(err, chatctx.ErrNotFound) {
			logging.GatingWarn("gate on unknown conversation %s", seed)
		}
		return "", false
	}

	msgs := make([]types.Message, 0, len(system)+len(history))
	for _, s := range system {
		msgs = append(msgs, types.SystemMessage(s))
	}
	msgs = append(msgs, types.Conversational(history)...)

	resp, err := e.client.Complete(usage.WithConversation(ctx, seed), &inference.Request{
		Model:           e.cfg.Model,
		Messages:        msgs,
		Temperature:     inference.Temperature(0),
		MaxOutputTokens: maxTokens,
		Schema:          schema,
		SchemaName:      schemaName,
	})
	if err != nil {
		logging.GatingWarn("%s gate failed for %s: %v", schemaName, seed, err)
		return "", false
	}
	return resp.Text, true
}
