package gardener

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/stormlightlabs/grid/internal/memory"
)

// SessionTranscript pairs a session ID with the transcript to consolidate,
// the unit of work ConsolidateSessions fans out across.
type SessionTranscript struct {
	SessionID  string
	Transcript []memory.Message
}

// consolidateConcurrency bounds how many transcripts Extract runs against
// at once, so a large nightly batch doesn't spin up one goroutine per
// session unbounded.
const consolidateConcurrency = 4

// ConsolidateSessions runs Extract and ProposeFromExtraction across many
// session transcripts concurrently, matching original_source's batched
// overnight consolidation sweep rather than the teacher's single-session
// ConsolidateSession. Extraction is pure CPU work with no shared state, so
// an errgroup with a concurrency limit fans it out safely; the per-session
// patch batches are collected in input order once every goroutine
// finishes, since Gardener.adrSeq must be advanced under g's own method
// calls rather than from multiple goroutines at once.
func (g *Gardener) ConsolidateSessions(ctx context.Context, sessions []SessionTranscript) ([][]MemoryPatch, error) {
	extractions := make([]Extraction, len(sessions))

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(consolidateConcurrency)

	for i, s := range sessions {
		i, s := i, s
		grp.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			extractions[i] = Extract(s.Transcript)
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}

	batches := make([][]MemoryPatch, len(sessions))
	for i, s := range sessions {
		if extractions[i].Empty() {
			continue
		}
		batches[i] = g.ProposeFromExtraction(s.SessionID, extractions[i])
	}
	return batches, nil
}
