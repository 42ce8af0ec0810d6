package research

import (
	"context"
	"encoding/json"
	"fmt"

	"lynxbot/internal/browser"
	"lynxbot/internal/logging"
	"lynxbot/internal/tools"
)

// JSRunner executes JavaScript and returns its console output.
type JSRunner interface {
	ExecuteJS(ctx context.Context, js string) ([]string, error)
}

// Deps are the collaborators the research tools need. A nil Analyzer skips
// search_web and summarize_website; a nil JS skips execute_js.
type Deps struct {
	Fetcher  *Fetcher
	Analyzer *Analyzer
	JS       JSRunner
}

// RegisterAll registers every research tool deps can back.
func RegisterAll(registry *tools.Registry, deps Deps) error {
	var all []*tools.Tool
	if deps.Fetcher != nil {
		all = append(all, GrabSiteContentTool(deps.Fetcher))
	}
	if deps.Analyzer != nil {
		all = append(all, SearchWebTool(deps.Analyzer), SummarizeWebsiteTool(deps.Analyzer))
	}
	if deps.JS != nil {
		all = append(all, ExecuteJSTool(deps.JS))
	}
	for _, t := range all {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name, err)
		}
	}
	logging.ToolsDebug("registered %d research tools", len(all))
	return nil
}

// GrabSiteContentTool reads the text of a single page.
func GrabSiteContentTool(f *Fetcher) *tools.Tool {
	return tools.Define("grab_site_content",
		"Grabs the textual content of a website from its url. Use this to read a page the user linked or mentioned.",
		tools.ToolSchema{
			Required: []string{"url"},
			Properties: map[string]tools.Property{
				"url":       {Type: "string", Description: "The website address to read"},
				"charLimit": {Type: "integer", Description: "Maximum characters to return, 0 for no limit", Default: 0},
			},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			raw, err := tools.StringArg(args, "url")
			if err != nil {
				return "", err
			}
			address, err := browser.NormalizeURL(raw)
			if err != nil {
				return "", err
			}
			return f.GrabSiteContent(ctx, address, tools.IntArg(args, "charLimit", 0)), nil
		},
	).In(tools.CategoryResearch)
}

// SearchWebTool searches the web and summarises the results.
func SearchWebTool(a *Analyzer) *tools.Tool {
	return tools.Define("search_web",
		"Searches the web for the given prompt, reads the top results and summarizes them with links. Use this for current events or anything you do not know.",
		tools.ToolSchema{
			Required: []string{"searchPrompt"},
			Properties: map[string]tools.Property{
				"searchPrompt": {Type: "string", Description: "What the user wants to find out"},
			},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			request, err := tools.StringArg(args, "searchPrompt")
			if err != nil {
				return "", err
			}
			return a.SearchWeb(ctx, request)
		},
	).In(tools.CategoryResearch)
}

// SummarizeWebsiteTool summarises one page.
func SummarizeWebsiteTool(a *Analyzer) *tools.Tool {
	return tools.Define("summarize_website",
		"Summarizes the content of a website, optionally answering a specific question about it.",
		tools.ToolSchema{
			Required: []string{"websiteUrl"},
			Properties: map[string]tools.Property{
				"websiteUrl": {Type: "string", Description: "The website address to summarize"},
				"question":   {Type: "string", Description: "A specific question about the site, if any"},
			},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			raw, err := tools.StringArg(args, "websiteUrl")
			if err != nil {
				return "", err
			}
			address, err := browser.NormalizeURL(raw)
			if err != nil {
				return "", err
			}
			return a.SummarizeWebsite(ctx, address, tools.OptionalString(args, "question", ""))
		},
	).In(tools.CategoryResearch)
}

// ExecuteJSTool runs JavaScript in the headless browser.
func ExecuteJSTool(r JSRunner) *tools.Tool {
	return tools.Define("execute_js",
		"Executes the provided JavaScript code within a secure web-browser sandbox and returns the output as an array of strings. Use this to dynamically evaluate and execute JavaScript.",
		tools.ToolSchema{
			Required: []string{"js"},
			Properties: map[string]tools.Property{
				"js": {Type: "string", Description: "The JavaScript source to run"},
			},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			js, err := tools.StringArg(args, "js")
			if err != nil {
				return "", err
			}
			lines, err := r.ExecuteJS(ctx, js)
			if err != nil {
				return "", err
			}
			if lines == nil {
				lines = []string{}
			}
			out, err := json.Marshal(lines)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	).In(tools.CategoryResearch)
}
