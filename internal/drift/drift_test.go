package drift

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCompareFindsNoDriftOnIdenticalSnapshots(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")

	s1, err := Take(root)
	require.NoError(t, err)
	s2, err := Take(root)
	require.NoError(t, err)

	event := Compare(s1, s2)
	assert.True(t, event.Empty())
}

func TestCompareDetectsChangedAddedRemoved(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.go", "package keep")
	writeFile(t, root, "remove.go", "package remove")
	baseline, err := Take(root)
	require.NoError(t, err)

	writeFile(t, root, "keep.go", "package keep\n// changed")
	require.NoError(t, os.Remove(filepath.Join(root, "remove.go")))
	writeFile(t, root, "added.go", "package added")

	current, err := Take(root)
	require.NoError(t, err)

	event := Compare(baseline, current)
	require.False(t, event.Empty())
	assert.Contains(t, event.ChangedFiles, "keep.go")
	assert.Contains(t, event.RemovedFiles, "remove.go")
	assert.Contains(t, event.AddedFiles, "added.go")
	assert.Contains(t, event.Triggers, TriggerFileChanged)
	assert.Contains(t, event.Triggers, TriggerFileAdded)
	assert.Contains(t, event.Triggers, TriggerFileRemoved)
}

func TestTakeSkipsDotDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main")
	writeFile(t, root, "visible.go", "package visible")

	snap, err := Take(root)
	require.NoError(t, err)
	_, gitTracked := snap.Hashes[".git/HEAD"]
	assert.False(t, gitTracked)
	_, visibleTracked := snap.Hashes["visible.go"]
	assert.True(t, visibleTracked)
}

func TestStoreRecordPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	require.NoError(t, err)

	event := DriftEvent{Triggers: []Trigger{TriggerFileChanged}, ChangedFiles: []string{"x.go"}}
	require.NoError(t, store.Record("step-1", event, Continue))

	reopened, err := OpenStore(dir)
	require.NoError(t, err)
	rec, ok := reopened.Get("step-1")
	require.True(t, ok)
	assert.Equal(t, Continue, rec.Choice)
	assert.Equal(t, []string{"x.go"}, rec.Event.ChangedFiles)
}

func TestReconcilerContinueAdvancesBaseline(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	storeDir := t.TempDir()

	r, err := NewReconciler(root, storeDir)
	require.NoError(t, err)

	writeFile(t, root, "a.go", "package a\n// edited")
	err = r.CheckAndReconcile(context.Background(), "step-1", func(ctx context.Context, e DriftEvent) (ReconcileChoice, error) {
		return Continue, nil
	})
	require.NoError(t, err)

	err = r.CheckAndReconcile(context.Background(), "step-2", func(ctx context.Context, e DriftEvent) (ReconcileChoice, error) {
		t.Fatal("decide should not be called when there is no further drift")
		return Stop, nil
	})
	require.NoError(t, err)
}

func TestReconcilerStopReturnsDriftError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	storeDir := t.TempDir()

	r, err := NewReconciler(root, storeDir)
	require.NoError(t, err)

	writeFile(t, root, "a.go", "package a\n// edited")
	err = r.CheckAndReconcile(context.Background(), "step-1", func(ctx context.Context, e DriftEvent) (ReconcileChoice, error) {
		return Stop, nil
	})
	require.Error(t, err)
}

func TestReconcilerDiscardLeavesBaselineUnchanged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	storeDir := t.TempDir()

	r, err := NewReconciler(root, storeDir)
	require.NoError(t, err)

	writeFile(t, root, "a.go", "package a\n// edited")
	var calls int
	decide := func(ctx context.Context, e DriftEvent) (ReconcileChoice, error) {
		calls++
		return Discard, nil
	}
	require.NoError(t, r.CheckAndReconcile(context.Background(), "step-1", decide))
	require.NoError(t, r.CheckAndReconcile(context.Background(), "step-2", decide))
	assert.Equal(t, 2, calls, "discard should not advance the baseline, so drift is reported again")
}
