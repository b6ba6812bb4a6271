package memdoc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaultsForOptionalFields(t *testing.T) {
	raw := "---\nid: fact-001\nkind: fact\n---\nPostgres connection pooling uses pgbouncer in transaction mode.\n"
	d, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "fact-001", d.ID)
	assert.Equal(t, Unverified, d.Verification.Status)
	assert.Equal(t, "session", d.Provenance.Source)
	assert.NotEmpty(t, d.Body)
}

func TestParseRejectsMissingID(t *testing.T) {
	raw := "---\nkind: fact\n---\nbody\n"
	_, err := Parse(raw)
	assert.Error(t, err)
}

func TestParseRejectsUnknownKind(t *testing.T) {
	raw := "---\nid: x\nkind: scratchpad\n---\nbody\n"
	_, err := Parse(raw)
	assert.Error(t, err)
}

func TestWriteThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facts", "x.md")
	d := Document{
		Frontmatter: Frontmatter{ID: "fact-42", Kind: KindFact, Tags: []string{"db"}},
		Body:        "The staging DB uses a read replica.\n",
	}
	require.NoError(t, Write(path, d))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fact-42", loaded.ID)
	assert.Equal(t, []string{"db"}, loaded.Tags)
	assert.Contains(t, loaded.Body, "read replica")
}

func TestManifestRejectsDuplicateID(t *testing.T) {
	m, err := LoadManifest(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.Add("fact-1", "facts/a.md"))
	err = m.Add("fact-1", "facts/b.md")
	assert.Error(t, err)
}

func TestLoadManifestIndexesExistingDocuments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core", "goal.md")
	require.NoError(t, Write(path, Document{
		Frontmatter: Frontmatter{ID: "core-goal", Kind: KindCore},
		Body:        "Ship the harness.\n",
	}))

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	resolved, ok := m.Path("core-goal")
	require.True(t, ok)
	assert.Equal(t, path, resolved)
}
