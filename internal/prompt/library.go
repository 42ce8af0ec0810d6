// Package prompt holds the bot's prompt texts and its personality.
//
// Prompts are YAML entries baked into the binary from prompts/*.yaml and
// rendered with text/template:
//
//	lib := prompt.Default()
//	text, err := lib.Render(prompt.ShouldRespond, gatingData)
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"

	"lynxbot/internal/logging"

	"gopkg.in/yaml.v3"
)

// Prompt ids.
const (
	ChatPreamble         = "chat_preamble"
	Personality          = "personality"
	Thought              = "thought"
	Status               = "status"
	ShouldRespond        = "should_respond"
	ShouldUseTools       = "should_use_tools"
	AvailableTools       = "available_tools"
	QueryGenerator       = "query_generator"
	SummarizeWebsite     = "summarize_website"
	AnalyzeSearchResults = "analyze_search_results"
	DescribeImage        = "describe_image"
)

//go:embed prompts
var embeddedPrompts embed.FS

// entry matches one item of prompts/*.yaml.
type entry struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description,omitempty"`
	Content     string `yaml:"content"`
}

var funcs = template.FuncMap{
	"join": strings.Join,
	// quoteList renders ["a", "b", "c"] as 'a', 'b', or 'c'.
	"quoteList": func(items []string) string {
		quoted := make([]string, len(items))
		for i, s := range items {
			quoted[i] = "'" + s + "'"
		}
		switch len(quoted) {
		case 0:
			return ""
		case 1:
			return quoted[0]
		}
		return strings.Join(quoted[:len(quoted)-1], ", ") + ", or " + quoted[len(quoted)-1]
	},
}

// Library is a parsed set of prompt templates. It is read-only after Load.
type Library struct {
	templates    map[string]*template.Template
	descriptions map[string]string
}

// Load parses every embedded prompt file.
func Load() (*Library, error) {
	return LoadFS(embeddedPrompts, "prompts")
}

// LoadFS parses every *.yaml file under dir in fsys.
func LoadFS(fsys fs.FS, dir string) (*Library, error) {
	lib := &Library{
		templates:    make(map[string]*template.Template),
		descriptions: make(map[string]string),
	}

	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		var entries []entry
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		for _, e := range entries {
			if e.ID == "" {
				return fmt.Errorf("%s: prompt without id", p)
			}
			if _, dup := lib.templates[e.ID]; dup {
				return fmt.Errorf("%s: duplicate prompt id %q", p, e.ID)
			}
			tmpl, err := template.New(e.ID).Funcs(funcs).Option("missingkey=error").Parse(strings.TrimRight(e.Content, "\n"))
			if err != nil {
				return fmt.Errorf("%s: prompt %q: %w", p, e.ID, err)
			}
			lib.templates[e.ID] = tmpl
			lib.descriptions[e.ID] = e.Description
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	logging.BootDebug("loaded %d prompts", len(lib.templates))
	return lib, nil
}

var (
	defaultOnce sync.Once
	defaultLib  *Library
)

// Default returns the embedded library. The embedded files are part of the
// binary, so a parse failure is a programming error and panics.
func Default() *Library {
	defaultOnce.Do(func() {
		lib, err := Load()
		if err != nil {
			panic(err)
		}
		defaultLib = lib
	})
	return defaultLib
}

// Render executes prompt id with data.
func (l *Library) Render(id string, data any) (string, error) {
	tmpl, ok := l.templates[id]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", id)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", id, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// MustRender is Render for prompts whose data is fixed at compile time.
func (l *Library) MustRender(id string, data any) string {
	s, err := l.Render(id, data)
	if err != nil {
		panic(err)
	}
	return s
}

// IDs returns every prompt id, sorted.
func (l *Library) IDs() []string {
	ids := make([]string, 0, len(l.templates))
	for id := range l.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Description returns the one-line description of prompt id.
func (l *Library) Description(id string) string {
	return l.descriptions[id]
}
