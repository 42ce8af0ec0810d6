package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"lynxbot/internal/inference"
	"lynxbot/internal/logging"
	"lynxbot/internal/prompt"
	"lynxbot/internal/types"
	"lynxbot/internal/usage"

	"golang.org/x/sync/errgroup"
)

// AnalyzerConfig bounds how much of the web a single request reads.
type AnalyzerConfig struct {
	// Model used for query generation and summaries; empty for the client default.
	Model       string
	MaxResults  int
	ResultChars int
	PageChars   int
	// Parallel caps concurrent page fetches during a search.
	Parallel int
}

// DefaultAnalyzerConfig returns the limits the bot ships with.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{MaxResults: 5, ResultChars: 3500, PageChars: 10000, Parallel: 4}
}

// Analyzer answers questions from the web: it writes a search query, reads
// the results and summarises them in the bot's voice.
type Analyzer struct {
	client  inference.Client
	engine  SearchEngine
	fetcher *Fetcher
	persona *prompt.Persona
	lib     *prompt.Library
	cfg     AnalyzerConfig
	now     func() time.Time
}

// NewAnalyzer wires an analyzer. persona may be nil.
func NewAnalyzer(client inference.Client, engine SearchEngine, fetcher *Fetcher, persona *prompt.Persona, cfg AnalyzerConfig) *Analyzer {
	def := DefaultAnalyzerConfig()
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.ResultChars <= 0 {
		cfg.ResultChars = def.ResultChars
	}
	if cfg.PageChars <= 0 {
		cfg.PageChars = def.PageChars
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = def.Parallel
	}
	return &Analyzer{
		client:  client,
		engine:  engine,
		fetcher: fetcher,
		persona: persona,
		lib:     prompt.Default(),
		cfg:     cfg,
		now:     time.Now,
	}
}

// CreateQuery turns a free-form request into a single search query.
func (a *Analyzer) CreateQuery(ctx context.Context, request string) (string, error) {
	system, err := a.lib.Render(prompt.QueryGenerator, map[string]any{"Now": a.now().Format("January 2, 2006")})
	if err != nil {
		return "", err
	}
	resp, err := a.client.Complete(usage.WithOperation(ctx, "research"), &inference.Request{
		Model:           a.cfg.Model,
		Messages:        []types.Message{types.SystemMessage(system), types.UserMessage(request)},
		Temperature:     inference.Temperature(0.03),
		MaxOutputTokens: 50,
	})
	if err != nil {
		return "", fmt.Errorf("create query: %w", err)
	}
	query := strings.TrimSpace(resp.Text)
	if i := strings.IndexByte(query, '\n'); i >= 0 {
		query = query[:i]
	}
	query = strings.Trim(query, "`\"' ")
	if query == "" {
		query = request
	}
	return query, nil
}

// SearchWeb generates a query for request, extracts every result page and
// summarises what was found.
func (a *Analyzer) SearchWeb(ctx context.Context, request string) (string, error) {
	logging.Research("User query prompt: %s", request)

	query, err := a.CreateQuery(ctx, request)
	if err != nil {
		return "", err
	}
	logging.Research("Searching for: %s", query)

	results, err := a.engine.Search(ctx, query, a.cfg.MaxResults)
	if err != nil {
		return "", fmt.Errorf("search %q: %w", query, err)
	}
	contents, err := a.extractParallel(ctx, results)
	if err != nil {
		return "", fmt.Errorf("extract results: %w", err)
	}
	logging.ResearchDebug("Finished content extraction for %d results", len(contents))

	system, err := a.lib.Render(prompt.AnalyzeSearchResults, map[string]any{"Query": query})
	if err != nil {
		return "", err
	}
	msgs := []types.Message{types.SystemMessage(system), types.SystemMessage(strings.Join(contents, "\n"))}
	msgs = a.persona.AppendTo(msgs)
	msgs = append(msgs, types.UserMessage(request))
	return a.summarize(ctx, msgs)
}

// SummarizeWebsite reads url and summarises it, answering question when set.
func (a *Analyzer) SummarizeWebsite(ctx context.Context, url, question string) (string, error) {
	logging.Research("Grabbing website content from: %s", url)
	content := a.fetcher.GrabSiteContent(ctx, url, a.cfg.PageChars)

	system, err := a.lib.Render(prompt.SummarizeWebsite, map[string]any{"Question": question})
	if err != nil {
		return "", err
	}
	msgs := []types.Message{types.SystemMessage(system), types.SystemMessage(content)}
	msgs = a.persona.AppendTo(msgs)
	ask := "Summarize " + url
	if question != "" {
		ask = question
	}
	msgs = append(msgs, types.UserMessage(ask))
	return a.summarize(ctx, msgs)
}

func (a *Analyzer) summarize(ctx context.Context, msgs []types.Message) (string, error) {
	resp, err := a.client.Complete(usage.WithOperation(ctx, "research"), &inference.Request{
		Model:    a.cfg.Model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return resp.Text, nil
}

// extractParallel fetches every result page concurrently. Pages on the same
// registrable domain are fetched one at a time. Output order follows results.
// A failed page is reported inline; only cancellation of ctx is an error.
func (a *Analyzer) extractParallel(ctx context.Context, results []SearchResult) ([]string, error) {
	locks := make(map[string]*sync.Mutex)
	for _, r := range results {
		if _, ok := locks[domainKey(r.Host())]; !ok {
			locks[domainKey(r.Host())] = &sync.Mutex{}
		}
	}

	out := make([]string, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Parallel)
	for i, r := range results {
		g.Go(func() error {
			lock := locks[domainKey(r.Host())]
			lock.Lock()
			if err := gctx.Err(); err != nil {
				lock.Unlock()
				return err
			}
			body := a.fetcher.GrabSiteContent(gctx, r.URL, a.cfg.ResultChars)
			lock.Unlock()
			if err := gctx.Err(); err != nil {
				return err
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Title: %s\n", r.Title)
			fmt.Fprintf(&sb, "Link: %s\n", r.URL)
			fmt.Fprintf(&sb, "Description: %s\n", r.Snippet)
			fmt.Fprintf(&sb, "Body Text Content: %s\n", body)
			out[i] = sb.String()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// domainKey reduces a host to its last two labels, so www.go.dev and
// pkg.go.dev share a key.
func domainKey(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}
	return labels[len(labels)-2] + "." + labels[len(labels)-1]
}
