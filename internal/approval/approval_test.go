package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormlightlabs/grid/internal/classifier"
)

func TestGateReadOnlyModeDeniesRiskyWithoutAsking(t *testing.T) {
	g := Gate{Mode: ModeReadOnly}
	c := classifier.Classify("write", map[string]interface{}{"path": "x"})
	proceed, needsHuman := g.Decide(c)
	assert.False(t, proceed)
	assert.False(t, needsHuman)
}

func TestGateAutoModeAsksForRisky(t *testing.T) {
	g := Gate{Mode: ModeAuto}
	c := classifier.Classify("write", map[string]interface{}{"path": "x"})
	_, needsHuman := g.Decide(c)
	assert.True(t, needsHuman)
}

func TestGateBlockedNeverProceedsEvenFullAccess(t *testing.T) {
	g := Gate{Mode: ModeFullAccess}
	c := classifier.Classify("bash", map[string]interface{}{"command": "sudo rm -rf /"})
	proceed, _ := g.Decide(c)
	assert.False(t, proceed)
}

func TestQueueProtocolSubmitBlocksUntilRespond(t *testing.T) {
	p := NewQueueProtocol(4)
	c := classifier.Classify("write", map[string]interface{}{"path": "x"})
	req := NewRequest("write", map[string]interface{}{"path": "x"}, c)

	done := make(chan Decision, 1)
	go func() {
		d, err := p.Submit(context.Background(), req)
		require.NoError(t, err)
		done <- d
	}()

	var pending []*Request
	require.Eventually(t, func() bool {
		pending = p.Pending()
		return len(pending) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, p.Respond(pending[0].ID, Approved))

	select {
	case d := <-done:
		assert.Equal(t, Approved, d)
	case <-time.After(time.Second):
		t.Fatal("submit never returned")
	}
}

func TestQueueProtocolSubmitRespectsContextCancellation(t *testing.T) {
	p := NewQueueProtocol(4)
	c := classifier.Classify("write", map[string]interface{}{"path": "x"})
	req := NewRequest("write", map[string]interface{}{"path": "x"}, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Submit(ctx, req)
	assert.Error(t, err)
}

func TestRequestCarriesTeachingHintFromSuggestion(t *testing.T) {
	c := classifier.Classify("bash", map[string]interface{}{"command": "sed -i 's/a/b/' f.go"})
	req := NewRequest("bash", map[string]interface{}{"command": "sed -i 's/a/b/' f.go"}, c)
	require.NotNil(t, req.Hint)
	assert.NotEmpty(t, req.Hint.Explanation)
}
