package eventlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsDenseMonotonicSeq(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "2026-07-31T00-00-00Z")
	require.NoError(t, err)
	defer log.Close()

	var seqs []uint64
	for i := 0; i < 5; i++ {
		seq, err := log.Append(UserMessage{Content: "hi"})
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}

	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, seqs)

	events, bad, err := log.ReadAll()
	require.NoError(t, err)
	assert.Nil(t, bad)
	require.NoError(t, Validate(events))
}

func TestReadFromFiltersBySeq(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "s1")
	require.NoError(t, err)
	defer log.Close()

	for i := 0; i < 4; i++ {
		_, err := log.Append(ToolCall{Tool: "read", Arguments: map[string]interface{}{"n": i}})
		require.NoError(t, err)
	}

	events, bad, err := log.ReadFrom(2)
	require.NoError(t, err)
	assert.Nil(t, bad)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].Seq)
	assert.Equal(t, uint64(3), events[1].Seq)
}

func TestOpenResumesNextSeqAfterReopen(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "s1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := log.Append(UserMessage{Content: "x"})
		require.NoError(t, err)
	}
	require.NoError(t, log.Close())

	reopened, err := Open(dir, "s1")
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint64(3), reopened.NextSeq())

	seq, err := reopened.Append(UserMessage{Content: "y"})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
}

func TestReadAllRecoversPrefixBeforeCorruptLine(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "s1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := log.Append(UserMessage{Content: "good"})
		require.NoError(t, err)
	}
	require.NoError(t, log.Close())

	path := filepath.Join(dir, fileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, bad, err := readAll(path)
	require.NoError(t, err)
	require.NotNil(t, bad)
	assert.Equal(t, 4, bad.Line)
	assert.Len(t, events, 3)
	require.NoError(t, Validate(events))
}

func TestMarshalUnmarshalRoundTripsEachVariant(t *testing.T) {
	cases := []Payload{
		UserMessage{Content: "hello"},
		ModelMessage{Content: "hi there"},
		ToolCall{Tool: "bash", Arguments: map[string]interface{}{"cmd": "ls"}},
		ToolResult{Tool: "bash", Result: "ok", Success: true},
		Approval{Action: "write file", Approved: true},
		Patch{Name: "fix", Status: PatchProposed, Files: []string{"a.go"}, Diff: "diff"},
		ShellCommand{Command: "ls", Args: []string{"-la"}, Cwd: "/tmp"},
		GitSnapshot{Commit: "abc123", Branch: "main"},
		FileRead{FilePath: "a.go", LineCount: 10, Success: true},
		ApprovalModeChange{From: "read-only", To: "auto"},
		ViewEdit{View: "plan", ChangeType: "append", Content: "step 1"},
		ContextLoad{Source: "memory", Path: "core/goal.md", ContentHash: "deadbeef"},
		Checkpoint{Label: "pre-refactor", Description: "before touching auth"},
		PlanUpdate{Action: "add", Item: "write tests"},
		MemoryUpdate{MemKind: "fact", Path: "facts/x.md", Operation: "create", ContentHash: "abc"},
	}

	dir := t.TempDir()
	log, err := Open(dir, "s1")
	require.NoError(t, err)
	defer log.Close()

	for _, payload := range cases {
		_, err := log.Append(payload)
		require.NoError(t, err)
	}

	events, bad, err := log.ReadAll()
	require.NoError(t, err)
	assert.Nil(t, bad)
	require.Len(t, events, len(cases))
	for i, evt := range events {
		assert.Equal(t, cases[i].Kind(), evt.Event.Kind())
		assert.Equal(t, cases[i], evt.Event)
	}
}
