// Package drift watches the workspace for changes the agent didn't make
// itself (a human editing a file mid-turn, a background build writing
// generated code) and runs the three-option reconcile ritual
// (Continue/Discard/Stop) when it finds any. Grounded on the teacher's
// internal/supervision.Supervisor.Reconcile (static pattern checks
// producing Triggers) - repurposed here from LLM-judged goal drift to
// mechanical workspace-snapshot drift per spec.md's redesign, which
// replaces the LLM Supervise() call with a fixed three-option decision -
// and internal/checkpoint.Store's atomic per-step JSON persistence.
package drift

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stormlightlabs/grid/internal/agenterr"
)

// Snapshot is a digest of every tracked file's content hash, keyed by
// path relative to the workspace root.
type Snapshot struct {
	TakenAt time.Time         `json:"taken_at"`
	Hashes  map[string]string `json:"hashes"`
}

// Take walks root and hashes every regular file, skipping any directory
// named ".git" or starting with ".", matching the teacher's workspace
// conventions for what counts as tracked content.
func Take(root string) (Snapshot, error) {
	s := Snapshot{TakenAt: time.Now().UTC(), Hashes: make(map[string]string)}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || (d.Name() != "." && len(d.Name()) > 0 && d.Name()[0] == '.') {
				return filepath.SkipDir
			}
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		sum := sha256.Sum256(b)
		s.Hashes[rel] = hex.EncodeToString(sum[:])
		return nil
	})
	if err != nil {
		return Snapshot{}, agenterr.Wrap(agenterr.KindIO, "take workspace snapshot", err)
	}
	return s, nil
}

// Trigger is a reason a snapshot comparison flagged drift, mirroring the
// teacher's Trigger constants but renamed to the workspace domain:
// unexpected file changes rather than goal/commitment mismatches.
type Trigger string

const (
	TriggerFileChanged Trigger = "file_changed"
	TriggerFileAdded   Trigger = "file_added"
	TriggerFileRemoved Trigger = "file_removed"
)

// DriftEvent is what Compare reports when a snapshot no longer matches
// the baseline the agent last acted on.
type DriftEvent struct {
	Triggers     []Trigger
	ChangedFiles []string
	AddedFiles   []string
	RemovedFiles []string
	DetectedAt   time.Time
}

// Empty reports whether the comparison found nothing.
func (e DriftEvent) Empty() bool {
	return len(e.Triggers) == 0
}

// Compare finds files that changed, were added, or were removed between
// two snapshots, the mechanical equivalent of the teacher's
// Reconcile static pattern checks (there: commitment/scope/confidence
// checks; here: content-hash equality checks).
func Compare(baseline, current Snapshot) DriftEvent {
	e := DriftEvent{DetectedAt: time.Now().UTC()}

	for path, hash := range baseline.Hashes {
		cur, ok := current.Hashes[path]
		if !ok {
			e.RemovedFiles = append(e.RemovedFiles, path)
			continue
		}
		if cur != hash {
			e.ChangedFiles = append(e.ChangedFiles, path)
		}
	}
	for path := range current.Hashes {
		if _, ok := baseline.Hashes[path]; !ok {
			e.AddedFiles = append(e.AddedFiles, path)
		}
	}

	if len(e.ChangedFiles) > 0 {
		e.Triggers = append(e.Triggers, TriggerFileChanged)
	}
	if len(e.AddedFiles) > 0 {
		e.Triggers = append(e.Triggers, TriggerFileAdded)
	}
	if len(e.RemovedFiles) > 0 {
		e.Triggers = append(e.Triggers, TriggerFileRemoved)
	}

	return e
}

// ReconcileChoice is the human's answer to a drift prompt.
type ReconcileChoice string

const (
	Continue ReconcileChoice = "continue" // keep going, baseline becomes the new snapshot
	Discard  ReconcileChoice = "discard"  // treat the drifted files as noise, baseline unchanged
	Stop     ReconcileChoice = "stop"     // halt the turn entirely
)

// ReconcileRecord is the persisted outcome of one reconcile decision,
// keyed by the turn/step it applied to - checkpoint.Store's per-step JSON
// file pattern, reused here for drift records instead of phase
// checkpoints.
type ReconcileRecord struct {
	StepID   string          `json:"step_id"`
	Event    DriftEvent      `json:"event"`
	Choice   ReconcileChoice `json:"choice"`
	DecidedAt time.Time      `json:"decided_at"`
}

// Store persists reconcile records, one file per step, with the same
// load-everything-on-open / flush-on-write shape as
// internal/checkpoint.Store.
type Store struct {
	mu      sync.RWMutex
	dir     string
	records map[string]*ReconcileRecord
}

// OpenStore loads (or creates) the reconcile record store at dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, agenterr.Wrap(agenterr.KindIO, "create drift store directory", err)
	}
	s := &Store{dir: dir, records: make(map[string]*ReconcileRecord)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindIO, "read drift store directory", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var rec ReconcileRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			continue
		}
		s.records[rec.StepID] = &rec
	}
	return s, nil
}

// Record saves a reconcile decision for stepID.
func (s *Store) Record(stepID string, event DriftEvent, choice ReconcileChoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &ReconcileRecord{StepID: stepID, Event: event, Choice: choice, DecidedAt: time.Now().UTC()}
	s.records[stepID] = rec

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return agenterr.Wrap(agenterr.KindParse, "marshal reconcile record", err)
	}
	final := filepath.Join(s.dir, stepID+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return agenterr.Wrap(agenterr.KindIO, "write reconcile record temp file", err)
	}
	return os.Rename(tmp, final)
}

// Get returns the reconcile record for stepID, if any.
func (s *Store) Get(stepID string) (*ReconcileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[stepID]
	return r, ok
}

// Reconciler orchestrates the snapshot/compare/decide ritual across a
// turn: it watches the workspace, and when drift is found, parks the
// caller (via its PauseFn callback) until a Continue/Discard/Stop choice
// comes back.
type Reconciler struct {
	Root     string
	store    *Store
	baseline Snapshot
}

// NewReconciler takes an initial baseline snapshot and prepares the
// persisted record store.
func NewReconciler(root, storeDir string) (*Reconciler, error) {
	baseline, err := Take(root)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(storeDir)
	if err != nil {
		return nil, err
	}
	return &Reconciler{Root: root, store: store, baseline: baseline}, nil
}

// PauseFn surfaces a DriftEvent to whatever can make the reconcile
// decision (a human via the approval surface, or an autonomous policy)
// and returns their choice.
type PauseFn func(ctx context.Context, event DriftEvent) (ReconcileChoice, error)

// CheckAndReconcile takes a fresh snapshot, compares it to the current
// baseline, and if anything drifted, calls decide and applies the
// resulting choice: Continue advances the baseline, Discard leaves it
// unchanged, Stop returns an error so the orchestrator halts the turn.
func (r *Reconciler) CheckAndReconcile(ctx context.Context, stepID string, decide PauseFn) error {
	current, err := Take(r.Root)
	if err != nil {
		return err
	}
	event := Compare(r.baseline, current)
	if event.Empty() {
		return nil
	}

	choice, err := decide(ctx, event)
	if err != nil {
		return err
	}
	if err := r.store.Record(stepID, event, choice); err != nil {
		return err
	}

	switch choice {
	case Continue:
		r.baseline = current
		return nil
	case Discard:
		return nil
	case Stop:
		return agenterr.New(agenterr.KindDrift, fmt.Sprintf("turn halted by drift reconcile at step %s", stepID))
	default:
		return agenterr.New(agenterr.KindDrift, fmt.Sprintf("unknown reconcile choice %q", choice))
	}
}

// Watch starts an fsnotify watcher over root and calls onEvent whenever a
// write/create/remove is observed, for a caller that wants push-based
// notification instead of polling CheckAndReconcile on a timer. The
// returned function stops the watcher.
func Watch(root string, onEvent func(fsnotify.Event)) (stop func() error, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindIO, "create filesystem watcher", err)
	}
	if err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return w.Add(path)
	}); err != nil {
		w.Close()
		return nil, agenterr.Wrap(agenterr.KindIO, "watch workspace tree", err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				onEvent(ev)
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w.Close, nil
}
