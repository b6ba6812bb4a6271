// Package session maintains the in-memory projection of a session's
// current state: the conversation so far, which agent owns which file,
// and whether a turn is still pending. The projection is rebuilt by
// replaying the session's eventlog.Log, never stored independently, so it
// can never drift from the log that is the actual source of truth.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/stormlightlabs/grid/internal/agenterr"
	"github.com/stormlightlabs/grid/internal/eventlog"
	"github.com/stormlightlabs/grid/internal/ids"
)

// Turn is one exchange in the conversation view, derived from UserMessage/
// ModelMessage/ToolCall/ToolResult events.
type Turn struct {
	Role    string // "user" | "model" | "tool"
	Content string
	Seq     uint64
}

// Ownership records which agent currently holds exclusive write access to
// a file, set by claim_ownership and consulted by the dispatcher's
// read-before-edit check.
type Ownership struct {
	Path      string
	Owner     string
	ClaimedAt uint64 // seq of the claiming event
}

// State is the live projection for a single session.
type State struct {
	mu sync.RWMutex

	ID        string
	Log       *eventlog.Log
	Turns     []Turn
	Owners    map[string]Ownership
	ReadFiles map[string]bool // files read at least once this session, for read-before-edit

	PendingTurn  bool // true once a user message is appended with no model reply yet
	ApprovalMode string

	forkParent string
	forkAtSeq  uint64
}

// New starts a brand-new session with a freshly generated ID, using the
// eventlog's default fsync coalesce window.
func New(dir string) (*State, error) {
	return NewWithCoalesce(dir, 0)
}

// NewWithCoalesce is New with an explicit fsync coalesce window in
// milliseconds, so a caller can honor config.SessionConfig.FsyncCoalesceMS.
// A non-positive value falls back to the eventlog default.
func NewWithCoalesce(dir string, fsyncCoalesceMS int) (*State, error) {
	id := ids.New()
	log, err := eventlog.OpenWithWindow(dir, id, coalesceWindow(fsyncCoalesceMS))
	if err != nil {
		return nil, err
	}
	return &State{
		ID:           id,
		Log:          log,
		Owners:       make(map[string]Ownership),
		ReadFiles:    make(map[string]bool),
		ApprovalMode: "read-only",
	}, nil
}

func coalesceWindow(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Open resumes an existing session by replaying its event log. If the log
// ends mid-turn (a PendingTurn with no following ModelMessage), that is
// surfaced on the returned State rather than treated as an error, so a
// caller can decide whether to resume or discard the pending turn.
func Open(dir, id string) (*State, error) {
	return OpenWithCoalesce(dir, id, 0)
}

// OpenWithCoalesce is Open with an explicit fsync coalesce window in
// milliseconds; see NewWithCoalesce.
func OpenWithCoalesce(dir, id string, fsyncCoalesceMS int) (*State, error) {
	log, err := eventlog.OpenWithWindow(dir, id, coalesceWindow(fsyncCoalesceMS))
	if err != nil {
		return nil, err
	}
	events, bad, err := log.ReadAll()
	if err != nil {
		return nil, err
	}
	if bad != nil {
		return nil, agenterr.Wrap(agenterr.KindSession, fmt.Sprintf("session %s has corrupted events", id), bad)
	}

	s := &State{
		ID:           id,
		Log:          log,
		Owners:       make(map[string]Ownership),
		ReadFiles:    make(map[string]bool),
		ApprovalMode: "read-only",
	}
	s.replay(events)
	return s, nil
}

// replay rebuilds Turns/Owners/ReadFiles/PendingTurn/ApprovalMode from a
// flat event slice. It is the only place projection state is derived from
// the log, so recovery and normal startup share one code path.
func (s *State) replay(events []eventlog.LoggedEvent) {
	for _, evt := range events {
		switch p := evt.Event.(type) {
		case eventlog.UserMessage:
			s.Turns = append(s.Turns, Turn{Role: "user", Content: p.Content, Seq: evt.Seq})
			s.PendingTurn = true
		case eventlog.ModelMessage:
			s.Turns = append(s.Turns, Turn{Role: "model", Content: p.Content, Seq: evt.Seq})
			s.PendingTurn = false
		case eventlog.ToolResult:
			s.Turns = append(s.Turns, Turn{Role: "tool", Content: p.Result, Seq: evt.Seq})
		case eventlog.FileRead:
			if p.Success {
				s.ReadFiles[p.FilePath] = true
			}
		case eventlog.ApprovalModeChange:
			s.ApprovalMode = p.To
		case eventlog.Patch:
			if p.Status == eventlog.PatchApplied {
				for _, f := range p.Files {
					s.ReadFiles[f] = true
				}
			}
		}
	}
}

// Append appends payload to the underlying log and updates the projection
// in lockstep, so State never needs a separate reload after a write it
// made itself.
func (s *State) Append(payload eventlog.Payload) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.Log.Append(payload)
	if err != nil {
		return 0, err
	}
	s.replay([]eventlog.LoggedEvent{{Seq: seq, SessionID: s.ID, Event: payload}})
	return seq, nil
}

// ClaimOwnership records that owner now holds exclusive write access to
// path. Per spec.md's ownership model, a claim always succeeds for a new
// owner; the dispatcher is responsible for deciding whether to contest an
// existing claim before calling this.
func (s *State) ClaimOwnership(path, owner string, atSeq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Owners[path] = Ownership{Path: path, Owner: owner, ClaimedAt: atSeq}
}

// OwnerOf reports the current owner of path, if any.
func (s *State) OwnerOf(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.Owners[path]
	if !ok {
		return "", false
	}
	return o.Owner, true
}

// HasBeenRead reports whether path has a recorded successful FileRead (or
// an applied Patch touching it) anywhere in this session, the gate the
// dispatcher's read-before-edit rule consults.
func (s *State) HasBeenRead(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ReadFiles[path]
}

// Fork creates a new session whose conversation is a copy of this one's
// prefix up to and including atSeq. The new session's own log starts
// empty except for the copied prefix; the parent session's log is never
// mutated, satisfying the "fork never touches the parent's log" invariant
// in spec.md §8.
func (s *State) Fork(dir string, atSeq uint64) (*State, error) {
	s.mu.RLock()
	events, bad, err := s.Log.ReadAll()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if bad != nil {
		return nil, agenterr.Wrap(agenterr.KindSession, "cannot fork a session with corrupted events", bad)
	}

	child, err := New(dir)
	if err != nil {
		return nil, err
	}
	child.forkParent = s.ID
	child.forkAtSeq = atSeq

	var prefix []eventlog.LoggedEvent
	for _, e := range events {
		if e.Seq > atSeq {
			break
		}
		if _, err := child.Log.Append(e.Event); err != nil {
			return nil, err
		}
		prefix = append(prefix, e)
	}
	child.replay(prefix)
	return child, nil
}

// ForkedFrom reports the parent session ID and seq this session was
// forked from, if it was.
func (s *State) ForkedFrom() (parent string, atSeq uint64, ok bool) {
	return s.forkParent, s.forkAtSeq, s.forkParent != ""
}

// Close flushes and closes the underlying log.
func (s *State) Close() error {
	return s.Log.Close()
}
