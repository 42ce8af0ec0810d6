// Package orchestrator turns inbound chat events into replies:
//
//	event -> context -> gate -> (capability | plain chat) -> delivery
//
// Slash commands are answered before any of that and leave no history.
//
// Each conversation's history lives in the chatctx store; a reply is
// threaded to the message that caused it.
package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"lynxbot/internal/ambient"
	"lynxbot/internal/chatctx"
	"lynxbot/internal/delivery"
	"lynxbot/internal/gating"
	"lynxbot/internal/inference"
	"lynxbot/internal/logging"
	"lynxbot/internal/platform"
	"lynxbot/internal/prompt"
	"lynxbot/internal/types"
	"lynxbot/internal/usage"
)

// DefaultErrorReply is posted when a turn fails.
const DefaultErrorReply = "Sorry, there was an error processing your message."

// Gate decides how to treat a conversation's latest message.
type Gate interface {
	Decide(ctx context.Context, seed string) gating.Decision
}

// Dispatcher runs a capability for a conversation.
type Dispatcher interface {
	InvokeForConversation(ctx context.Context, seed string) (string, error)
}

// Describer turns image attachments into text.
type Describer interface {
	DescribeAll(ctx context.Context, history []types.Message, atts []types.Attachment) []string
}

// CommandRunner answers slash commands. handled is false for messages that
// are not commands it knows.
type CommandRunner interface {
	Run(ctx context.Context, ev platform.Event) (handled bool, err error)
}

// Config tunes the handler.
type Config struct {
	// ChatModel answers plain turns; empty uses the client default.
	ChatModel  string
	ErrorReply string
}

// Deps are the handler's collaborators. Vision, Active, Persona and
// Commands may be nil.
type Deps struct {
	Store      *chatctx.Store
	Client     inference.Client
	Gate       Gate
	Dispatcher Dispatcher
	Sender     platform.Sender
	Vision     Describer
	Active     *ambient.ActiveSet
	Persona    *prompt.Persona
	Delivery   *delivery.Adapter
	Commands   CommandRunner
}

// Handler processes inbound events. It is safe for concurrent use; turns
// for different conversations proceed in parallel.
type Handler struct {
	deps Deps
	cfg  Config
	lib  *prompt.Library
	now  func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Deps, cfg Config) *Handler {
	if deps.Delivery == nil {
		deps.Delivery = delivery.New(delivery.DefaultMaxLength)
	}
	if cfg.ErrorReply == "" {
		cfg.ErrorReply = DefaultErrorReply
	}
	return &Handler{deps: deps, cfg: cfg, lib: prompt.Default(), now: time.Now}
}

// Handle adapts the handler to platform.Handler.
func (h *Handler) Handle() platform.Handler {
	return func(ctx context.Context, ev platform.Event) {
		if err := h.OnMessage(ctx, ev); err != nil {
			logging.PlatformError("message %s in %s: %v", ev.MessageID, ev.ConversationSeed, err)
		}
	}
}

// OnMessage runs one turn for ev. Model and capability failures are
// answered with the generic error reply; the returned error only reports
// failures to record or deliver.
func (h *Handler) OnMessage(ctx context.Context, ev platform.Event) error {
	if ev.AuthorIsBot {
		return nil
	}
	seed := ev.ConversationSeed
	if seed == "" {
		return fmt.Errorf("event %s has no conversation", ev.MessageID)
	}
	if h.deps.Commands != nil {
		handled, err := h.deps.Commands.Run(ctx, ev)
		if handled {
			return err
		}
	}
	ctx = usage.WithConversation(ctx, seed)

	timer := logging.StartTimer(logging.CategoryPlatform, "turn "+seed)
	defer timer.StopWithThreshold(10 * time.Second)

	if err := h.ensure(seed); err != nil {
		return err
	}

	text := UserLine(ev)
	atts := ev.Attachments
	if descs := h.describeImages(ctx, seed, atts); len(descs) > 0 {
		for _, d := range descs {
			text += "\n[image: " + d + "]"
		}
		// Described images stay in the history as text only.
		atts = slices.DeleteFunc(slices.Clone(atts), types.Attachment.IsImage)
	}
	msg := types.UserMessage(text)
	msg.Attachments = atts
	if err := h.deps.Store.Append(seed, msg); err != nil {
		return err
	}
	if h.deps.Active != nil {
		at := ev.CreatedAt
		if at.IsZero() {
			at = h.now()
		}
		h.deps.Active.Touch(seed, at)
	}

	decision := h.deps.Gate.Decide(ctx, seed)
	logging.GatingDebug("%s: %s", seed, decision)

	var reply string
	var err error
	switch decision {
	case gating.Silent:
		return nil
	case gating.Tools:
		reply, err = h.deps.Dispatcher.InvokeForConversation(ctx, seed)
		if err == nil {
			err = h.deps.Store.Append(seed, types.AssistantMessage(reply))
		}
	default:
		reply, err = h.deps.Store.Infer(usage.WithOperation(ctx, "chat"), h.deps.Client, seed, chatctx.WithModel(h.cfg.ChatModel))
	}
	if err != nil {
		logging.PlatformError("turn in %s failed (%s): %v", seed, decision, err)
		reply = h.cfg.ErrorReply
	}

	if strings.TrimSpace(reply) == "" {
		logging.PlatformDebug("empty reply in %s, nothing sent", seed)
		return nil
	}
	if _, err := h.deps.Delivery.FollowUp(ctx, h.deps.Sender, seed, reply, ev.Ref()); err != nil {
		return fmt.Errorf("deliver reply: %w", err)
	}
	return nil
}

// ensure creates the conversation with the chat preamble and personality.
func (h *Handler) ensure(seed string) error {
	preamble, err := h.lib.Render(prompt.ChatPreamble, nil)
	if err != nil {
		return err
	}
	seeds := []string{preamble}
	if p := h.deps.Persona.Prompt(); p != "" {
		seeds = append(seeds, p)
	}
	if h.deps.Store.EnsureConversation(seed, seeds...) {
		logging.Context("new conversation %s", seed)
	}
	return nil
}

func (h *Handler) describeImages(ctx context.Context, seed string, atts []types.Attachment) []string {
	if h.deps.Vision == nil || !hasImage(atts) {
		return nil
	}
	history, err := h.deps.Store.Read(seed)
	if err != nil {
		return nil
	}
	return h.deps.Vision.DescribeAll(ctx, history, atts)
}

func hasImage(atts []types.Attachment) bool {
	for _, a := range atts {
		if a.IsImage() {
			return true
		}
	}
	return false
}

// UserLine renders ev as it is stored: "<author>: <text>", prefixed with
// the message it replies to.
func UserLine(ev platform.Event) string {
	line := ev.AuthorName + ": " + ev.Text
	if ev.ReplyToText != "" {
		line = fmt.Sprintf("(replying to %s: %q) %s", ev.ReplyToAuthor, ev.ReplyToText, line)
	}
	return line
}
