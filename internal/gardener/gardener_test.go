package gardener

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormlightlabs/grid/internal/eventlog"
	"github.com/stormlightlabs/grid/internal/memdoc"
	"github.com/stormlightlabs/grid/internal/memory"
)

func TestExtractFindsDecisionsAndGotchas(t *testing.T) {
	transcript := []memory.Message{
		{Role: "user", Content: "why did the build fail?"},
		{Role: "assistant", Content: "The build failed because of a missing dependency. I decided to pin the version."},
		{Role: "assistant", Content: "panic: nil pointer dereference when parsing the config."},
	}
	ex := Extract(transcript)
	require.NotEmpty(t, ex.Decisions)
	require.NotEmpty(t, ex.Gotchas)
	assert.Equal(t, GotchaBuild, ex.Gotchas[0].Category)
}

func TestProposeFromExtractionAssignsMonotonicADRNumbers(t *testing.T) {
	g, err := Open(t.TempDir())
	require.NoError(t, err)

	ex := Extraction{
		Decisions: []DecisionEntity{
			{Decision: "use postgres"},
			{Decision: "use bleve for fts"},
		},
	}
	patches := g.ProposeFromExtraction("2026-07-31T00-00-00Z", ex)
	require.Len(t, patches, 2)
	assert.Equal(t, "adr-1", patches[0].Document.ID)
	assert.Equal(t, "adr-2", patches[1].Document.ID)
}

func TestApplyWritesDocumentAndIndexesIt(t *testing.T) {
	dir := t.TempDir()
	g, err := Open(dir)
	require.NoError(t, err)

	ex := Extraction{Gotchas: []GotchaEntity{{Issue: "flaky test", Resolution: "added retry", Category: GotchaTest}}}
	patches := g.ProposeFromExtraction("s1", ex)
	require.Len(t, patches, 1)

	require.NoError(t, g.Apply(patches[0]))

	path, ok := g.Manifest.Path(patches[0].Document.ID)
	require.True(t, ok)
	assert.FileExists(t, path)
}

func TestHygieneFlagsDuplicateAndEmptyAndUntagged(t *testing.T) {
	dir := t.TempDir()
	g, err := Open(dir)
	require.NoError(t, err)

	mustApply := func(id, body string, tags []string) {
		require.NoError(t, g.Apply(MemoryPatch{
			Document: memdoc.Document{
				Frontmatter: memdoc.Frontmatter{ID: id, Kind: memdoc.KindFact, Tags: tags},
				Body:        body,
			},
		}))
	}
	mustApply("fact-a", "duplicate content here", nil)
	mustApply("fact-b", "duplicate content here", []string{"tag1"})
	mustApply("fact-c", "", []string{"tag1"})

	violations, err := g.Hygiene()
	require.NoError(t, err)

	var kinds []ViolationKind
	for _, v := range violations {
		kinds = append(kinds, v.Kind)
	}
	assert.Contains(t, kinds, ViolationDuplicate)
	assert.Contains(t, kinds, ViolationEmptyBody)
	assert.Contains(t, kinds, ViolationMissingTags)
}

func TestGenerateRecapWritesMonthBucketedDocument(t *testing.T) {
	dir := t.TempDir()
	g, err := Open(dir)
	require.NoError(t, err)

	events := []eventlog.LoggedEvent{
		{Seq: 0, Event: eventlog.UserMessage{Content: "hi"}},
		{Seq: 1, Event: eventlog.ShellCommand{Command: "go test ./..."}},
	}
	ex := Extraction{Decisions: []DecisionEntity{{Decision: "ship it"}}}

	result, err := g.GenerateRecap("2026-07-31T00-00-00Z", events, ex, []string{"patch_1"})
	require.NoError(t, err)
	assert.Equal(t, "recap.2026-07-31T00-00-00Z", result.DocID)
	assert.Equal(t, 2, result.Stats.EventCount)
	assert.Equal(t, 1, result.Stats.CommandsRun)
	assert.FileExists(t, result.Path)
	assert.Contains(t, filepath.Dir(result.Path), "2026-07")
}
