package platform

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"lynxbot/internal/logging"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

// ConsoleConfig configures a Console.
type ConsoleConfig struct {
	In  io.Reader
	Out io.Writer

	// Seed is the conversation lines belong to until a /join.
	Seed string
	// User authors lines without a "name:" prefix.
	User string
	// BotName labels outgoing messages.
	BotName string

	// Markdown renders replies with glamour.
	Markdown bool
	Width    int

	// FileDir receives files sent through SendFile; empty keeps them in memory only.
	FileDir string
}

// SentFile is a file posted through the console.
type SentFile struct {
	Target  string
	Name    string
	Caption string
	Size    int
}

// Console is a local gateway over a reader/writer pair. Each input line is
// one message, "name: text" or plain text from the configured user.
// "/join <seed>" switches conversation. It keeps an in-memory workspace so
// platform tools can be exercised without a real server.
type Console struct {
	cfg      ConsoleConfig
	renderer *glamour.TermRenderer

	botStyle    lipgloss.Style
	metaStyle   lipgloss.Style
	statusStyle lipgloss.Style

	mu       sync.Mutex
	status   string
	channels map[string]Channel
	profiles map[string]Profile
	files    []SentFile
	sent     int
}

// NewConsole creates a Console.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Seed == "" {
		cfg.Seed = "console"
	}
	if cfg.User == "" {
		cfg.User = "you"
	}
	if cfg.BotName == "" {
		cfg.BotName = "lynxbot"
	}
	if cfg.Width <= 0 {
		cfg.Width = 80
	}

	r := lipgloss.NewRenderer(cfg.Out)
	c := &Console{
		cfg:         cfg,
		botStyle:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		metaStyle:   r.NewStyle().Foreground(lipgloss.Color("241")),
		statusStyle: r.NewStyle().Italic(true).Foreground(lipgloss.Color("86")),
		channels:    make(map[string]Channel),
		profiles:    make(map[string]Profile),
	}
	if cfg.Markdown {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(cfg.Width),
		)
		if err != nil {
			logging.PlatformError("markdown renderer unavailable: %v", err)
		} else {
			c.renderer = renderer
		}
	}
	c.addChannel(cfg.Seed, "text")
	return c
}

// Run reads lines until EOF or ctx is done. Events are handled one at a
// time in input order.
func (c *Console) Run(ctx context.Context, h Handler) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.cfg.In)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	seed := c.cfg.Seed
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if rest, found := strings.CutPrefix(line, "/join "); found {
				seed = strings.TrimSpace(rest)
				c.addChannel(seed, "text")
				c.printMeta(fmt.Sprintf("joined %s", seed))
				continue
			}
			h(ctx, c.event(seed, line))
		}
	}
}

func (c *Console) event(seed, line string) Event {
	author, text := c.cfg.User, line
	if name, rest, found := strings.Cut(line, ":"); found && name != "" && strings.HasPrefix(rest, " ") && !strings.ContainsAny(name, " \t/") {
		author, text = name, strings.TrimSpace(rest)
	}

	c.mu.Lock()
	if _, ok := c.profiles[author]; !ok {
		c.profiles[author] = Profile{
			ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(author)).String(),
			Name:        author,
			DisplayName: author,
			JoinedAt:    time.Now(),
		}
	}
	id := c.profiles[author].ID
	c.mu.Unlock()

	return Event{
		ConversationSeed: seed,
		MessageID:        uuid.NewString(),
		AuthorID:         id,
		AuthorName:       author,
		Text:             text,
		CreatedAt:        time.Now(),
	}
}

// Send prints a bot message.
func (c *Console) Send(ctx context.Context, target, text string, replyTo *MessageRef) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, err
	}
	body := text
	if c.renderer != nil {
		if out, err := c.renderer.Render(text); err == nil {
			body = strings.TrimRight(out, "\n")
		}
	}
	header := c.botStyle.Render(c.cfg.BotName)
	if target != c.cfg.Seed {
		header += c.metaStyle.Render(" #" + target)
	}
	if replyTo != nil {
		header += c.metaStyle.Render(" ↳ " + shortID(replyTo.ID))
	}

	ref := MessageRef{Target: target, ID: uuid.NewString()}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	_, err := fmt.Fprintf(c.cfg.Out, "%s: %s\n", header, body)
	return ref, err
}

// SetStatus prints and remembers the presence status.
func (c *Console) SetStatus(ctx context.Context, text string) error {
	c.mu.Lock()
	c.status = text
	c.mu.Unlock()
	c.printMeta(c.statusStyle.Render("status: " + text))
	return nil
}

// Status returns the last published status.
func (c *Console) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Sent returns the number of messages sent.
func (c *Console) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// Files returns the files sent so far.
func (c *Console) Files() []SentFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentFile(nil), c.files...)
}

func (c *Console) printMeta(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.cfg.Out, c.metaStyle.Render(s))
}

func (c *Console) addChannel(name, kind string) Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[name]; ok {
		return ch
	}
	ch := Channel{ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String(), Name: name, Kind: kind}
	c.channels[name] = ch
	return ch
}

// CreateThread implements Workspace.
func (c *Console) CreateThread(ctx context.Context, target, name string) (Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Channel{}, fmt.Errorf("thread name is empty")
	}
	ch := c.addChannel(name, "thread")
	c.printMeta(fmt.Sprintf("thread %q created from %s", name, target))
	return ch, nil
}

// ListChannels implements Workspace.
func (c *Console) ListChannels(ctx context.Context, target string) ([]Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateInvite implements Workspace.
func (c *Console) CreateInvite(ctx context.Context, target string, maxAge time.Duration) (string, error) {
	code := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return "https://invite.local/" + code, nil
}

// LookupProfile implements Workspace. Only authors seen on this console are known.
func (c *Console) LookupProfile(ctx context.Context, target, user string) (Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.profiles {
		if strings.EqualFold(p.Name, user) || p.ID == user {
			p.Roles = append([]string(nil), p.Roles...)
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, user)
}

// SendFile implements Workspace.
func (c *Console) SendFile(ctx context.Context, target, name string, data []byte, caption string) (MessageRef, error) {
	name = filepath.Base(name)
	if c.cfg.FileDir != "" {
		if err := os.MkdirAll(c.cfg.FileDir, 0o755); err != nil {
			return MessageRef{}, fmt.Errorf("create file dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(c.cfg.FileDir, name), data, 0o644); err != nil {
			return MessageRef{}, fmt.Errorf("write %s: %w", name, err)
		}
	}
	c.mu.Lock()
	c.files = append(c.files, SentFile{Target: target, Name: name, Caption: caption, Size: len(data)})
	c.mu.Unlock()

	line := fmt.Sprintf("[file %s, %d bytes]", name, len(data))
	if caption != "" {
		line += " " + caption
	}
	return c.Send(ctx, target, line, nil)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
