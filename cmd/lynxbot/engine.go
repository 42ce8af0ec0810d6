package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lynxbot/internal/ambient"
	"lynxbot/internal/browser"
	"lynxbot/internal/chatctx"
	"lynxbot/internal/commands"
	"lynxbot/internal/config"
	"lynxbot/internal/delivery"
	"lynxbot/internal/gating"
	"lynxbot/internal/inference"
	"lynxbot/internal/logging"
	"lynxbot/internal/orchestrator"
	"lynxbot/internal/platform"
	"lynxbot/internal/prompt"
	"lynxbot/internal/tools"
	"lynxbot/internal/tools/chattools"
	"lynxbot/internal/tools/research"
	"lynxbot/internal/usage"
	"lynxbot/internal/vision"
)

// workspaceGateway is a gateway that also backs the platform tools.
type workspaceGateway interface {
	platform.Gateway
	platform.Workspace
}

// engine is one fully wired bot.
type engine struct {
	cfg       *config.Config
	gateway   workspaceGateway
	sender    *platform.Throttled
	tracker   *usage.Tracker
	client    inference.Client
	store     *chatctx.Store
	registry  *tools.Registry
	analyzer  *research.Analyzer
	commands  *commands.Router
	persona   *prompt.Persona
	active    *ambient.ActiveSet
	handler   *orchestrator.Handler
	scheduler *ambient.Scheduler
	browser   *browser.Manager
	watcher   *config.PersonalityWatcher
}

// newEngine wires every component for gw. A nil client builds the
// configured provider.
func newEngine(ctx context.Context, cfg *config.Config, gw workspaceGateway, client inference.Client) (*engine, error) {
	e := &engine{
		cfg:     cfg,
		gateway: gw,
		sender:  platform.Throttle(gw, cfg.Delivery.SendsPerSecond, cfg.Delivery.Burst),
		tracker: usage.NewTracker(),
		store:   chatctx.NewStore(cfg.Context.MaxLength),
		persona: prompt.NewPersona(cfg.Bot.Personality),
		active:  ambient.NewActiveSet(cfg.GetIdleWindow()),
	}

	if client == nil {
		c, err := inference.NewFromConfig(ctx, cfg, e.tracker)
		if err != nil {
			return nil, fmt.Errorf("inference: %w", err)
		}
		client = c
	}
	e.client = client

	if cfg.Browser.Enabled {
		e.browser = browser.NewManager(browser.Config{
			DebuggerURL:       cfg.Browser.DebuggerURL,
			Bin:               cfg.Browser.Bin,
			Headless:          cfg.Browser.Headless,
			ViewportWidth:     cfg.Browser.ViewportWidth,
			ViewportHeight:    cfg.Browser.ViewportHeight,
			NavigationTimeout: cfg.GetNavigationTimeout(),
		})
	}

	registry, err := e.buildRegistry()
	if err != nil {
		return nil, err
	}
	e.registry = registry

	adapter := delivery.New(cfg.Delivery.MaxLength)
	gate := gating.NewEngine(e.store, e.client, e.registry, gating.Config{
		Names:   cfg.Bot.Names,
		Mention: cfg.Bot.Mention,
		Model:   cfg.LLM.Models.Chat,
	})
	invoker := tools.NewInvoker(e.registry, e.store, e.client, tools.InvokerConfig{
		Model:        cfg.LLM.Models.Tool,
		ChatModel:    cfg.LLM.Models.Chat,
		MaxCycles:    min(cfg.Tools.MaxCycles, config.MaxToolCycles),
		ComposeReply: cfg.Tools.ComposeReply,
		Personality:  e.persona.Prompt,
	})
	cdeps := commands.Deps{
		Client:   e.client,
		Persona:  e.persona,
		Files:    e.gateway,
		Sender:   e.sender,
		Delivery: adapter,
	}
	if e.analyzer != nil {
		cdeps.Analyzer = e.analyzer
	}
	if e.browser != nil {
		cdeps.Browser = e.browser
	}
	e.commands = commands.New(cdeps, commands.Config{ChatModel: cfg.LLM.Models.Chat})

	e.handler = orchestrator.NewHandler(orchestrator.Deps{
		Store:      e.store,
		Client:     e.client,
		Gate:       gate,
		Dispatcher: invoker,
		Sender:     e.sender,
		Vision:     vision.NewDescriber(e.client, cfg.LLM.Models.Vision),
		Active:     e.active,
		Persona:    e.persona,
		Delivery:   adapter,
		Commands:   e.commands,
	}, orchestrator.Config{ChatModel: cfg.LLM.Models.Chat})

	if cfg.Ambient.Enabled {
		e.scheduler = ambient.NewScheduler(e.store, e.client, e.sender, e.active, e.persona, ambient.Config{
			TickInterval:   cfg.GetTickInterval(),
			ThoughtOneIn:   cfg.Ambient.ThoughtOneIn,
			StatusInterval: cfg.GetStatusInterval(),
			CallTimeout:    cfg.GetAmbientCallTimeout(),
			ChatModel:      cfg.LLM.Models.Chat,
			StatusModel:    cfg.LLM.Models.Status,
		}, ambient.WithDelivery(adapter))
	}

	logging.Boot("engine ready: %d capabilities, commands %v, context max %d, ambient=%v",
		e.registry.Count(), e.commands.Names(), e.store.MaxLength(), cfg.Ambient.Enabled)
	return e, nil
}

// buildRegistry registers every capability the configuration can back and
// seals the registry.
func (e *engine) buildRegistry() (*tools.Registry, error) {
	registry := tools.NewRegistry()
	registry.SetTimeout(e.cfg.GetToolTimeout())

	httpClient := &http.Client{Timeout: e.cfg.GetToolTimeout()}
	fetcher := research.NewFetcher(httpClient, research.NewPageCache(256, 30*time.Minute))
	rdeps := research.Deps{Fetcher: fetcher}

	searcher, err := research.NewSearchEngine(e.cfg.Search, httpClient)
	if err != nil {
		logging.BootWarn("web search disabled: %v", err)
	} else {
		rdeps.Analyzer = research.NewAnalyzer(e.client, searcher, fetcher, e.persona, research.AnalyzerConfig{
			Model:       e.cfg.LLM.Models.Chat,
			MaxResults:  e.cfg.Search.MaxResults,
			ResultChars: e.cfg.Search.ResultChars,
			PageChars:   e.cfg.Search.PageChars,
		})
		e.analyzer = rdeps.Analyzer
	}

	cdeps := chattools.Deps{Sender: e.sender, Workspace: e.gateway}
	if e.browser != nil {
		rdeps.JS = e.browser
		cdeps.Browser = e.browser
	}

	if err := research.RegisterAll(registry, rdeps); err != nil {
		return nil, err
	}
	if err := chattools.RegisterAll(registry, cdeps); err != nil {
		return nil, err
	}
	registry.Seal()
	return registry, nil
}

// run serves the gateway until ctx is done or input ends.
func (e *engine) run(ctx context.Context) error {
	if path := e.cfg.Bot.PersonalityFile; path != "" {
		w, err := config.WatchPersonality(ctx, path, e.persona.Set)
		if err != nil {
			logging.BootWarn("personality hot reload disabled: %v", err)
		} else {
			e.watcher = w
		}
	}
	if e.scheduler != nil {
		if err := e.scheduler.Start(ctx); err != nil {
			return err
		}
	}
	err := e.gateway.Run(ctx, e.handler.Handle())
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// close stops background work and the browser.
func (e *engine) close() {
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	if e.watcher != nil {
		e.watcher.Stop()
	}
	if e.browser != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.browser.Shutdown(ctx); err != nil {
			logging.BrowserError("shutdown: %v", err)
		}
	}
}
