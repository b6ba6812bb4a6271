package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormlightlabs/grid/internal/eventlog"
)

func TestNewAndAppendBuildsConversation(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append(eventlog.UserMessage{Content: "hello"})
	require.NoError(t, err)
	assert.True(t, s.PendingTurn)

	_, err = s.Append(eventlog.ModelMessage{Content: "hi there"})
	require.NoError(t, err)
	assert.False(t, s.PendingTurn)

	require.Len(t, s.Turns, 2)
	assert.Equal(t, "user", s.Turns[0].Role)
	assert.Equal(t, "model", s.Turns[1].Role)
}

func TestOpenReplaysPendingTurn(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	id := s.ID
	_, err = s.Append(eventlog.UserMessage{Content: "do the thing"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(dir, id)
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.PendingTurn)
	require.Len(t, reopened.Turns, 1)
}

func TestReadBeforeEditOwnershipTracking(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.HasBeenRead("main.go"))
	_, err = s.Append(eventlog.FileRead{FilePath: "main.go", LineCount: 10, Success: true})
	require.NoError(t, err)
	assert.True(t, s.HasBeenRead("main.go"))

	s.ClaimOwnership("main.go", "agent-1", s.Log.NextSeq())
	owner, ok := s.OwnerOf("main.go")
	require.True(t, ok)
	assert.Equal(t, "agent-1", owner)
}

func TestForkCopiesPrefixWithoutMutatingParent(t *testing.T) {
	parentDir := t.TempDir()
	parent, err := New(parentDir)
	require.NoError(t, err)
	defer parent.Close()

	_, err = parent.Append(eventlog.UserMessage{Content: "first"})
	require.NoError(t, err)
	forkSeq, err := parent.Append(eventlog.ModelMessage{Content: "reply"})
	require.NoError(t, err)
	_, err = parent.Append(eventlog.UserMessage{Content: "second, after fork point"})
	require.NoError(t, err)

	parentEventsBefore, _, err := parent.Log.ReadAll()
	require.NoError(t, err)

	childDir := t.TempDir()
	child, err := parent.Fork(childDir, forkSeq)
	require.NoError(t, err)
	defer child.Close()

	require.Len(t, child.Turns, 2)
	assert.Equal(t, "first", child.Turns[0].Content)
	assert.Equal(t, "reply", child.Turns[1].Content)

	parentName, atSeq, ok := child.ForkedFrom()
	require.True(t, ok)
	assert.Equal(t, parent.ID, parentName)
	assert.Equal(t, forkSeq, atSeq)

	parentEventsAfter, _, err := parent.Log.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, parentEventsBefore, parentEventsAfter)
}
