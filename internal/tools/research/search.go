package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"lynxbot/internal/config"
	"lynxbot/internal/logging"

	"golang.org/x/net/html"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// ErrSearchNotConfigured is returned when the Google engine lacks credentials.
var ErrSearchNotConfigured = errors.New("search engine not configured")

// SearchResult represents a single search result.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"displayLink"`
}

// Host returns the result's host name, falling back to DisplayLink when URL
// does not parse.
func (r SearchResult) Host() string {
	if u, err := url.Parse(r.URL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	host, _, _ := strings.Cut(r.DisplayLink, "/")
	return host
}

// SearchEngine runs a web query.
type SearchEngine interface {
	Search(ctx context.Context, query string, max int) ([]SearchResult, error)
}

// NewSearchEngine returns the engine selected by cfg. Google requires an API
// key and engine id; anything else falls back to DuckDuckGo.
func NewSearchEngine(cfg config.SearchConfig, client *http.Client) (SearchEngine, error) {
	switch strings.ToLower(cfg.Provider) {
	case "google":
		if cfg.APIKey == "" || cfg.EngineID == "" {
			return nil, fmt.Errorf("%w: google needs api_key and engine_id", ErrSearchNotConfigured)
		}
		return &GoogleCSE{APIKey: cfg.APIKey, EngineID: cfg.EngineID, Client: client}, nil
	case "", "duckduckgo", "ddg":
		return &DuckDuckGo{Client: client}, nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}
}

// DuckDuckGo searches the keyless HTML interface.
type DuckDuckGo struct {
	Client  *http.Client
	BaseURL string
}

// Search performs a search using the DuckDuckGo HTML interface.
func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]SearchResult, error) {
	base := d.BaseURL
	if base == "" {
		base = "https://html.duckduckgo.com/html/"
	}
	searchURL := base + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	body, err := doGet(clientOr(d.Client), req, 1<<20)
	if err != nil {
		return nil, err
	}
	results, err := parseDuckDuckGoResults(string(body), max)
	if err != nil {
		return nil, err
	}
	logging.ResearchDebug("duckduckgo %q: %d results", query, len(results))
	return results, nil
}

// parseDuckDuckGoResults extracts search results from DuckDuckGo HTML.
func parseDuckDuckGoResults(htmlContent string, maxResults int) ([]SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []SearchResult
	var findResults func(*html.Node)
	findResults = func(n *html.Node) {
		if maxResults > 0 && len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" {
			class := getAttr(n, "class")
			if strings.Contains(class, "result") && strings.Contains(class, "results_links") {
				result := extractResult(n)
				if result.URL != "" && result.Title != "" {
					results = append(results, result)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findResults(c)
		}
	}
	findResults(doc)
	return results, nil
}

// extractResult extracts a single search result from a result div.
func extractResult(n *html.Node) SearchResult {
	var result SearchResult

	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			class := getAttr(n, "class")
			switch {
			case strings.Contains(class, "result__a"):
				result.URL = getAttr(n, "href")
				result.Title = getTextContent(n)
			case strings.Contains(class, "result__snippet"):
				result.Snippet = getTextContent(n)
			case strings.Contains(class, "result__url"):
				result.DisplayLink = getTextContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)

	result.URL = unwrapRedirect(result.URL)
	return result
}

// unwrapRedirect resolves DuckDuckGo's //duckduckgo.com/l/?uddg= links.
func unwrapRedirect(link string) string {
	if !strings.Contains(link, "duckduckgo.com/l/") {
		return link
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return link
}

// getAttr returns the value of an attribute.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// getTextContent returns all text content within a node.
func getTextContent(n *html.Node) string {
	var sb strings.Builder
	var getText func(*html.Node)
	getText = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			getText(c)
		}
	}
	getText(n)
	return strings.TrimSpace(sb.String())
}

// GoogleCSE queries the Google Custom Search JSON API.
type GoogleCSE struct {
	APIKey   string
	EngineID string
	Client   *http.Client
	BaseURL  string
}

type cseResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Snippet     string `json:"snippet"`
		DisplayLink string `json:"displayLink"`
	} `json:"items"`
}

// Search runs query against the configured engine. The API returns at most
// ten items per page.
func (g *GoogleCSE) Search(ctx context.Context, query string, max int) ([]SearchResult, error) {
	base := g.BaseURL
	if base == "" {
		base = "https://customsearch.googleapis.com/customsearch/v1"
	}
	params := url.Values{}
	params.Set("key", g.APIKey)
	params.Set("cx", g.EngineID)
	params.Set("q", query)
	if max > 0 {
		params.Set("num", fmt.Sprint(min(max, 10)))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := doGet(clientOr(g.Client), req, 1<<20)
	if err != nil {
		return nil, err
	}
	var parsed cseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]SearchResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, SearchResult{
			Title:       item.Title,
			URL:         item.Link,
			Snippet:     item.Snippet,
			DisplayLink: item.DisplayLink,
		})
		if max > 0 && len(results) == max {
			break
		}
	}
	logging.Research("Got %d search result items.", len(results))
	return results, nil
}

func clientOr(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}

// doGet executes req and returns at most limit bytes of a 200 response body.
func doGet(client *http.Client, req *http.Request, limit int64) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
