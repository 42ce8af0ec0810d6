package prompt

import (
	"testing"
	"testing/fstest"

	"lynxbot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedLibraryHasEveryPrompt(t *testing.T) {
	lib, err := Load()
	require.NoError(t, err)

	for _, id := range []string{
		ChatPreamble, Personality, Thought, Status, ShouldRespond, ShouldUseTools,
		AvailableTools, QueryGenerator, SummarizeWebsite, AnalyzeSearchResults, DescribeImage,
	} {
		assert.Contains(t, lib.IDs(), id)
		assert.NotEmpty(t, lib.Description(id), id)
	}
}

func TestRenderShouldRespond(t *testing.T) {
	out, err := Default().Render(ShouldRespond, map[string]any{
		"Names":   []string{"Realynx Bot", "foxbot", "lynxbot"},
		"Mention": "<@1222229832738406501>",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "Your name is 'Realynx Bot', 'foxbot', or 'lynxbot'")
	assert.Contains(t, out, "'<@1222229832738406501>'")
	assert.Contains(t, out, `{ "Respond": false }`)
}

func TestRenderWithoutMention(t *testing.T) {
	out, err := Default().Render(ShouldUseTools, map[string]any{"Names": []string{"lynxbot"}, "Mention": ""})
	require.NoError(t, err)
	assert.Contains(t, out, "Your name is 'lynxbot'.")
	assert.Contains(t, out, "MOST RECENT")
}

func TestRenderMissingKeyFails(t *testing.T) {
	_, err := Default().Render(SummarizeWebsite, map[string]any{})
	assert.Error(t, err)

	_, err = Default().Render("nope", nil)
	assert.Error(t, err)
}

func TestStatusPromptPersonalityOptional(t *testing.T) {
	without := Default().MustRender(Status, map[string]any{"Personality": ""})
	with := Default().MustRender(Status, map[string]any{"Personality": "be a fox"})

	assert.Contains(t, without, "4 to 8 words")
	assert.NotContains(t, without, "be a fox")
	assert.True(t, len(with) > len(without))
	assert.Contains(t, with, "be a fox")
}

func TestLoadFSRejectsDuplicates(t *testing.T) {
	fsys := fstest.MapFS{
		"p/a.yaml": {Data: []byte("- id: x\n  content: one\n")},
		"p/b.yaml": {Data: []byte("- id: x\n  content: two\n")},
	}
	_, err := LoadFS(fsys, "p")
	assert.ErrorContains(t, err, "duplicate prompt id")
}

func TestLoadFSIgnoresOtherFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"p/a.yml":     {Data: []byte("- id: hello\n  content: |\n    hi {{.Name}}\n")},
		"p/README.md": {Data: []byte("# not a prompt")},
	}
	lib, err := LoadFS(fsys, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, lib.IDs())
	assert.Equal(t, "hi fox", lib.MustRender("hello", map[string]string{"Name": "fox"}))
}

func TestPersona(t *testing.T) {
	p := NewPersona([]string{"You are a fox.", "  ", "Keep it short."})

	assert.Equal(t, []string{"You are a fox.", "Keep it short."}, p.Lines())
	assert.Equal(t, "This is your personality rule set for guiding responses:\nYou are a fox.\nKeep it short.", p.Prompt())

	msgs := p.AppendTo([]types.Message{types.SystemMessage("preamble")})
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleSystem, msgs[1].Role)

	p.Set(nil)
	assert.Equal(t, "", p.Prompt())
	assert.Len(t, p.AppendTo(nil), 0)

	var nilPersona *Persona
	assert.Equal(t, "", nilPersona.Prompt())
}
