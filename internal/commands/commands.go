// Package commands answers slash commands (/gpt, /google, /website,
// /screenshot, /help) typed into a conversation. Commands bypass gating and
// the conversation's history; their answers are posted as plain, unthreaded
// follow-ups.
package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"lynxbot/internal/browser"
	"lynxbot/internal/chatctx"
	"lynxbot/internal/delivery"
	"lynxbot/internal/inference"
	"lynxbot/internal/logging"
	"lynxbot/internal/platform"
	"lynxbot/internal/prompt"
	"lynxbot/internal/types"
	"lynxbot/internal/usage"
)

const (
	// DefaultErrorReply is posted when a command fails.
	DefaultErrorReply = "There was an error."

	// DefaultHistoryLength bounds the /gpt conversation.
	DefaultHistoryLength = 12

	screenshotCaption = "Here is your screenshot!"
	gptSeed           = "commands/gpt"
)

// ErrUsage marks a command invoked with missing arguments.
var ErrUsage = errors.New("usage")

// Analyzer researches the web for /google and /website.
type Analyzer interface {
	SearchWeb(ctx context.Context, request string) (string, error)
	SummarizeWebsite(ctx context.Context, url, question string) (string, error)
}

// Screenshotter captures a PNG of a web page.
type Screenshotter interface {
	Screenshot(ctx context.Context, address string, fullPage bool) ([]byte, error)
}

// FileSender uploads a file to a conversation.
type FileSender interface {
	SendFile(ctx context.Context, target, name string, data []byte, caption string) (platform.MessageRef, error)
}

// Deps are the router's collaborators. Commands whose collaborator is nil
// are not offered.
type Deps struct {
	Client   inference.Client
	Persona  *prompt.Persona
	Analyzer Analyzer
	Browser  Screenshotter
	Files    FileSender
	Sender   platform.Sender
	Delivery *delivery.Adapter
}

// Config tunes the router.
type Config struct {
	ChatModel     string
	ErrorReply    string
	HistoryLength int
}

// command is one slash command. run returns the text to post; an empty
// result posts nothing.
type command struct {
	name  string
	usage string
	help  string
	run   func(ctx context.Context, ev platform.Event, args string) (string, error)
}

// Router maps slash commands to their handlers.
type Router struct {
	deps     Deps
	cfg      Config
	history  *chatctx.Store
	lib      *prompt.Library
	now      func() time.Time
	commands map[string]*command
}

// New creates a Router offering every command deps can back.
func New(deps Deps, cfg Config) *Router {
	if deps.Delivery == nil {
		deps.Delivery = delivery.New(delivery.DefaultMaxLength)
	}
	if cfg.ErrorReply == "" {
		cfg.ErrorReply = DefaultErrorReply
	}
	if cfg.HistoryLength <= 0 {
		cfg.HistoryLength = DefaultHistoryLength
	}
	r := &Router{
		deps:     deps,
		cfg:      cfg,
		history:  chatctx.NewStore(cfg.HistoryLength),
		lib:      prompt.Default(),
		now:      time.Now,
		commands: make(map[string]*command),
	}

	r.add(&command{name: "help", usage: "/help", help: "List the available commands.", run: r.runHelp})
	if deps.Client != nil {
		r.add(&command{name: "gpt", usage: "/gpt <prompt>", help: "Replies with an AI generated response.", run: r.runGPT})
	}
	if deps.Analyzer != nil {
		r.add(&command{name: "google", usage: "/google <query>", help: "Searches the web and summarises the results.", run: r.runGoogle})
		r.add(&command{name: "website", usage: "/website <url> [question]", help: "Visits a website and summarises it, optionally answering a question.", run: r.runWebsite})
	}
	if deps.Browser != nil && deps.Files != nil {
		r.add(&command{name: "screenshot", usage: "/screenshot <url> [full]", help: "Takes a screenshot of a website and uploads it to the channel.", run: r.runScreenshot})
	}
	return r
}

func (r *Router) add(c *command) { r.commands[c.name] = c }

// Names returns the offered commands, sorted.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Parse splits "/name rest" into the command name and its raw arguments.
// ok is false when text is not a slash command.
func Parse(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	name, args, _ = strings.Cut(text[1:], " ")
	name = strings.ToLower(name)
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}

// Run answers ev if it is a known command. Unknown commands and plain
// messages report handled=false so the caller can treat them as chat.
// Command failures are answered with the error reply; err only reports a
// failed delivery.
func (r *Router) Run(ctx context.Context, ev platform.Event) (handled bool, err error) {
	name, args, ok := Parse(ev.Text)
	if !ok {
		return false, nil
	}
	cmd, ok := r.commands[name]
	if !ok {
		return false, nil
	}
	seed := ev.ConversationSeed
	ctx = usage.WithOperation(usage.WithConversation(ctx, seed), "command")
	logging.Platform("/%s from %s in %s", name, ev.AuthorName, seed)

	reply, err := cmd.run(ctx, ev, args)
	switch {
	case errors.Is(err, ErrUsage):
		reply = "Usage: " + cmd.usage
	case err != nil:
		logging.PlatformError("/%s in %s failed: %v", name, seed, err)
		reply = r.cfg.ErrorReply
	}
	if strings.TrimSpace(reply) == "" {
		return true, nil
	}

	var sendErr error
	delivered := r.deps.Delivery.ChunkAndDeliver(reply, func(chunk string) error {
		_, sendErr = r.deps.Sender.Send(ctx, seed, chunk, nil)
		return sendErr
	})
	if !delivered {
		return true, fmt.Errorf("deliver /%s reply: %w", name, sendErr)
	}
	return true, nil
}

func (r *Router) runHelp(ctx context.Context, ev platform.Event, args string) (string, error) {
	var sb strings.Builder
	for _, name := range r.Names() {
		c := r.commands[name]
		fmt.Fprintf(&sb, "%s - %s\n", c.usage, c.help)
	}
	return sb.String(), nil
}

// runGPT answers from a single history shared by every /gpt caller.
func (r *Router) runGPT(ctx context.Context, ev platform.Event, args string) (string, error) {
	if args == "" {
		return "", ErrUsage
	}
	preamble, err := r.lib.Render(prompt.ChatPreamble, nil)
	if err != nil {
		return "", err
	}
	seeds := []string{preamble}
	if p := r.deps.Persona.Prompt(); p != "" {
		seeds = append(seeds, p)
	}
	r.history.EnsureConversation(gptSeed, seeds...)
	if err := r.history.Append(gptSeed, types.UserMessage(ev.AuthorName+": "+args)); err != nil {
		return "", err
	}
	return r.history.Infer(ctx, r.deps.Client, gptSeed, chatctx.WithModel(r.cfg.ChatModel))
}

func (r *Router) runGoogle(ctx context.Context, ev platform.Event, args string) (string, error) {
	if args == "" {
		return "", ErrUsage
	}
	return r.deps.Analyzer.SearchWeb(ctx, args)
}

func (r *Router) runWebsite(ctx context.Context, ev platform.Event, args string) (string, error) {
	address, question, _ := strings.Cut(args, " ")
	if address == "" {
		return "", ErrUsage
	}
	return r.deps.Analyzer.SummarizeWebsite(ctx, address, strings.TrimSpace(question))
}

func (r *Router) runScreenshot(ctx context.Context, ev platform.Event, args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return "", ErrUsage
	}
	full := false
	if len(fields) == 2 {
		f, err := parseFull(fields[1])
		if err != nil {
			return "", ErrUsage
		}
		full = f
	}
	address, err := browser.NormalizeURL(fields[0])
	if err != nil {
		return "", err
	}
	png, err := r.deps.Browser.Screenshot(ctx, address, full)
	if err != nil {
		return "", fmt.Errorf("screenshot %s: %w", address, err)
	}
	if _, err := r.deps.Files.SendFile(ctx, ev.ConversationSeed, r.screenshotName(address), png, screenshotCaption); err != nil {
		return "", fmt.Errorf("upload screenshot: %w", err)
	}
	return "", nil
}

func (r *Router) screenshotName(address string) string {
	host := address
	if u, err := url.Parse(address); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("Screenshot-%s-%s.png", host, r.now().Format("20060102-1504"))
}

func parseFull(s string) (bool, error) {
	if strings.EqualFold(s, "full") {
		return true, nil
	}
	return strconv.ParseBool(s)
}
