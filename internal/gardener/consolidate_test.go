package gardener

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormlightlabs/grid/internal/memory"
)

func TestConsolidateSessionsFansOutAcrossTranscripts(t *testing.T) {
	g, err := Open(t.TempDir())
	require.NoError(t, err)

	sessions := []SessionTranscript{
		{
			SessionID: "s1",
			Transcript: []memory.Message{
				{Role: "assistant", Content: "I decided to use postgres for this."},
			},
		},
		{
			SessionID: "s2",
			Transcript: []memory.Message{
				{Role: "assistant", Content: "panic: nil pointer dereference in the parser."},
			},
		},
		{
			SessionID: "s3",
			Transcript: []memory.Message{
				{Role: "user", Content: "nothing notable happened here"},
			},
		},
	}

	batches, err := g.ConsolidateSessions(context.Background(), sessions)
	require.NoError(t, err)
	require.Len(t, batches, 3)

	require.Len(t, batches[0], 1)
	assert.Equal(t, "adr-1", batches[0][0].Document.ID)

	require.Len(t, batches[1], 1)
	assert.Equal(t, PatchCreate, batches[1][0].Op)

	assert.Empty(t, batches[2])
}

func TestConsolidateSessionsHonorsCanceledContext(t *testing.T) {
	g, err := Open(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = g.ConsolidateSessions(ctx, []SessionTranscript{
		{SessionID: "s1", Transcript: []memory.Message{{Role: "assistant", Content: "decided to ship"}}},
	})
	assert.Error(t, err)
}
