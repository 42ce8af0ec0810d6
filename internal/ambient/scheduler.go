// Package ambient runs the bot's background life: it forgets idle
// conversations, occasionally volunteers a thought in an active one and
// keeps the presence status fresh.
package ambient

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

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

// StatusSeed is the conversation status generation runs in.
const StatusSeed = "discord_status"

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Config tunes the scheduler. Zero durations fall back to defaults;
// ThoughtOneIn <= 0 disables thoughts and StatusInterval < 0 disables
// status updates.
type Config struct {
	TickInterval   time.Duration
	ThoughtOneIn   int
	StatusInterval time.Duration
	CallTimeout    time.Duration

	ChatModel   string
	StatusModel string
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 30 * time.Second
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = 15 * time.Minute
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 45 * time.Second
	}
	return c
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRand replaces the random source used for thought rolls and picks.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = rng }
}

// WithDelivery replaces the default delivery adapter.
func WithDelivery(a *delivery.Adapter) Option {
	return func(s *Scheduler) { s.delivery = a }
}

// Scheduler owns one ticker. Ticks never overlap.
type Scheduler struct {
	store    *chatctx.Store
	client   inference.Client
	gateway  Gateway
	active   *ActiveSet
	persona  *prompt.Persona
	delivery *delivery.Adapter
	lib      *prompt.Library
	cfg      Config
	now      func() time.Time
	rng      *rand.Rand

	tickMu     sync.Mutex
	lastStatus time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Gateway is what the scheduler talks to the platform through.
type Gateway interface {
	platform.Sender
	platform.StatusPublisher
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(store *chatctx.Store, client inference.Client, gw Gateway, active *ActiveSet, persona *prompt.Persona, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		client:   client,
		gateway:  gw,
		active:   active,
		persona:  persona,
		delivery: delivery.New(delivery.DefaultMaxLength),
		lib:      prompt.Default(),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6c796e78)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs Tick every TickInterval until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
	logging.Ambient("scheduler started (tick=%v, thought 1 in %d, status every %v)",
		s.cfg.TickInterval, s.cfg.ThoughtOneIn, s.cfg.StatusInterval)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop halts the ticker and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logging.Ambient("scheduler stopped")
}

// Tick runs one round: sweep idle conversations, maybe think, maybe
// refresh the status. Errors are logged; a panic is recovered.
func (s *Scheduler) Tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			logging.AmbientError("tick panicked: %v", r)
		}
	}()

	now := s.now()
	if evicted := s.active.Sweep(now); len(evicted) > 0 {
		logging.AmbientDebug("evicted idle conversations: %v", evicted)
	}

	if s.cfg.ThoughtOneIn > 0 && s.rng.IntN(s.cfg.ThoughtOneIn) == 0 {
		if seed, ok := s.active.Pick(s.rng); ok {
			if err := s.think(ctx, seed); err != nil {
				logging.AmbientError("thought for %s: %v", seed, err)
			}
		}
	}

	if s.cfg.StatusInterval > 0 && (s.lastStatus.IsZero() || now.Sub(s.lastStatus) >= s.cfg.StatusInterval) {
		s.lastStatus = now
		if err := s.updateStatus(ctx); err != nil {
			logging.AmbientError("status update: %v", err)
		}
	}
}

// think generates an unsolicited message for seed, records it and posts it.
func (s *Scheduler) think(ctx context.Context, seed string) error {
	history, err := s.store.Read(seed)
	if err != nil {
		return err
	}
	instruction, err := s.lib.Render(prompt.Thought, nil)
	if err != nil {
		return err
	}
	msgs := append(types.Conversational(history), types.SystemMessage(instruction))
	msgs = s.persona.AppendTo(msgs)

	callCtx, cancel := context.WithTimeout(usage.WithConversation(usage.WithOperation(ctx, "thought"), seed), s.cfg.CallTimeout)
	defer cancel()

	resp, err := s.client.Complete(callCtx, &inference.Request{
		Model:       s.cfg.ChatModel,
		Messages:    msgs,
		Temperature: inference.Temperature(1.0),
	})
	if err != nil {
		return err
	}
	thought := strings.TrimSpace(resp.Text)
	if thought == "" {
		return nil
	}
	if err := s.store.Append(seed, types.AssistantMessage(thought)); err != nil {
		return err
	}

	sendCtx, cancelSend := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancelSend()
	if _, err := s.delivery.FollowUp(sendCtx, s.gateway, seed, thought, nil); err != nil {
		return fmt.Errorf("deliver thought: %w", err)
	}
	logging.Ambient("shared a thought in %s", seed)
	return nil
}

// updateStatus generates a short status from an active conversation, or
// any prior one when nothing is active, and publishes it.
func (s *Scheduler) updateStatus(ctx context.Context) error {
	source, ok := s.active.Pick(s.rng)
	if !ok {
		var prior []string
		for _, seed := range s.store.Seeds() {
			if seed != StatusSeed {
				prior = append(prior, seed)
			}
		}
		source, ok = pick(prior, s.rng)
	}
	if !ok {
		logging.AmbientDebug("no conversation to draw a status from")
		return nil
	}

	preamble, err := s.lib.Render(prompt.Status, map[string]any{"Personality": s.persona.Prompt()})
	if err != nil {
		return err
	}
	s.store.EnsureConversation(StatusSeed, preamble)

	history, err := s.store.Read(source)
	if err != nil {
		return err
	}
	if err := s.store.ImportFilteredHistory(StatusSeed, history); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(usage.WithOperation(ctx, "status"), s.cfg.CallTimeout)
	defer cancel()
	raw, err := s.store.Infer(callCtx, s.client, StatusSeed,
		chatctx.WithSchema("DiscordStatus", gating.StatusSchema),
		chatctx.WithModel(s.cfg.StatusModel),
	)
	if err != nil {
		return err
	}
	status, err := gating.ParseStatus(raw)
	if err != nil {
		logging.AmbientDebug("discarding status: %v", err)
		return nil
	}
	if status == "" {
		return nil
	}

	pubCtx, cancelPub := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancelPub()
	if err := s.gateway.SetStatus(pubCtx, status); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	logging.Ambient("status set to %q (from %s)", status, source)
	return nil
}
