package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"lynxbot/internal/logging"

	"golang.org/x/net/html"
)

// FetchFailureMessage is what GrabSiteContent hands the model when a page
// cannot be read.
const FetchFailureMessage = "Failed to fetch website content!"

var (
	mangledWordPattern = regexp.MustCompile(`\w{20,}`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// ErrUnsupportedContent is returned for responses that are not HTML or XML.
var ErrUnsupportedContent = errors.New("unsupported content type")

var acceptedContentTypes = []string{"text/html", "application/xhtml+xml", "application/xml"}

// Fetcher downloads pages and extracts their readable text.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	cache     *PageCache
}

// NewFetcher creates a fetcher. A nil cache disables caching.
func NewFetcher(client *http.Client, cache *PageCache) *Fetcher {
	return &Fetcher{
		Client:    client,
		UserAgent: "Mozilla/5.0 (compatible; lynxbot/1.0)",
		cache:     cache,
	}
}

// Fetch returns the text content of url truncated to limit characters.
// A limit of zero or less returns everything.
func (f *Fetcher) Fetch(ctx context.Context, url string, limit int) (string, error) {
	key := pageKey(url, limit)
	if text, ok := f.cache.Get(key); ok {
		logging.ResearchDebug("page cache hit: %s", url)
		return text, nil
	}

	timer := logging.StartTimer(logging.CategoryResearch, "fetch "+url)
	defer timer.StopWithThreshold(5 * time.Second)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := clientOr(f.Client).Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if !acceptedContentType(contentType) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	text := truncateText(extractContent(doc), limit)
	f.cache.Set(key, text)
	logging.Research("Visited %s (%d chars)", url, len([]rune(text)))
	return text, nil
}

// GrabSiteContent is Fetch for the model: failures become
// FetchFailureMessage instead of an error.
func (f *Fetcher) GrabSiteContent(ctx context.Context, url string, limit int) string {
	text, err := f.Fetch(ctx, url, limit)
	if err != nil {
		logging.ResearchWarn("Could not GET url '%s': %v", url, err)
		return FetchFailureMessage
	}
	return text
}

func acceptedContentType(ct string) bool {
	for _, prefix := range acceptedContentTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

// extractContent prefers <article> elements, then div.main-content, then
// the whole body.
func extractContent(doc *html.Node) string {
	nodes := findAll(doc, func(n *html.Node) bool { return n.Data == "article" })
	if len(nodes) == 0 {
		nodes = findAll(doc, func(n *html.Node) bool {
			return n.Data == "div" && strings.Contains(getAttr(n, "class"), "main-content")
		})
	}
	if len(nodes) == 0 {
		nodes = findAll(doc, func(n *html.Node) bool { return n.Data == "body" })
	}

	var sb strings.Builder
	for _, n := range nodes {
		writeText(n, &sb)
		sb.WriteString(" ")
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(sb.String(), " "))
}

// findAll returns the outermost element nodes matching match.
func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			found = append(found, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

func writeText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteString(" ")
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template", "svg":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, sb)
	}
}

// truncateText drops mangled words (20+ word characters, usually tokens or
// base64) once text is over limit, then cuts it to limit runes.
func truncateText(text string, limit int) string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return text
	}
	text = mangledWordPattern.ReplaceAllString(text, "")
	if rs := []rune(text); len(rs) > limit {
		text = string(rs[:limit])
	}
	return text
}
