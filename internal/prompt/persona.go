package prompt

import (
	"strings"
	"sync"

	"lynxbot/internal/types"
)

// Persona holds the configured personality lines. It is swapped in place
// when the personality file changes.
type Persona struct {
	mu    sync.RWMutex
	lines []string
	lib   *Library
}

// NewPersona creates a persona rendered with the embedded library.
func NewPersona(lines []string) *Persona {
	p := &Persona{lib: Default()}
	p.Set(lines)
	return p
}

// Set replaces the personality lines. Blank lines are dropped.
func (p *Persona) Set(lines []string) {
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	p.mu.Lock()
	p.lines = kept
	p.mu.Unlock()
}

// Lines returns a copy of the current lines.
func (p *Persona) Lines() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.lines...)
}

// Prompt renders the personality system prompt, or "" when no lines are set.
func (p *Persona) Prompt() string {
	if p == nil {
		return ""
	}
	lines := p.Lines()
	if len(lines) == 0 {
		return ""
	}
	return p.lib.MustRender(Personality, map[string]any{"Lines": lines})
}

// AppendTo adds the personality as a system message to msgs.
func (p *Persona) AppendTo(msgs []types.Message) []types.Message {
	if s := p.Prompt(); s != "" {
		return append(msgs, types.SystemMessage(s))
	}
	return msgs
}
