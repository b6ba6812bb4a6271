// Package eventlog implements the durable, append-only, crash-safe record
// of everything that happens in a session: user messages, model tokens,
// tool calls/results, approvals, patches, and view edits. It is the single
// source of truth every other subsystem (session projection, gardener,
// replay) rebuilds its state from.
package eventlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the kebab-case tag written on the wire for each event variant,
// per spec.md §6 ("the variant tag field set to the kebab-case event
// name").
type Kind string

const (
	KindUserMessage       Kind = "user-message"
	KindModelMessage      Kind = "model-message"
	KindToolCall          Kind = "tool-call"
	KindToolResult        Kind = "tool-result"
	KindApproval          Kind = "approval"
	KindPatch             Kind = "patch"
	KindShellCommand      Kind = "shell-command"
	KindGitSnapshot       Kind = "git-snapshot"
	KindFileRead          Kind = "file-read"
	KindApprovalModeChg   Kind = "approval-mode-change"
	KindViewEdit          Kind = "view-edit"
	KindContextLoad       Kind = "context-load"
	KindCheckpoint        Kind = "checkpoint"
	KindPlanUpdate        Kind = "plan-update"
	KindMemoryUpdate      Kind = "memory-update"
)

// PatchStatus is the Patch event's status field, spec.md §3.
type PatchStatus string

const (
	PatchProposed PatchStatus = "proposed"
	PatchApproved PatchStatus = "approved"
	PatchApplied  PatchStatus = "applied"
	PatchRejected PatchStatus = "rejected"
	PatchFailed   PatchStatus = "failed"
)

// Payload is implemented by every event variant. Kind returns the wire tag
// so the closed switch in Unmarshal can dispatch to the right concrete
// type; the variant set is closed at design time per spec.md §9.
type Payload interface {
	Kind() Kind
}

type UserMessage struct {
	Content string `json:"content"`
}

func (UserMessage) Kind() Kind { return KindUserMessage }

type ModelMessage struct {
	Content    string `json:"content"`
	TokensUsed *int   `json:"tokens_used,omitempty"`
}

func (ModelMessage) Kind() Kind { return KindModelMessage }

type ToolCall struct {
	Tool         string                 `json:"tool"`
	Arguments    map[string]interface{} `json:"arguments"`
	Risk         string                 `json:"risk,omitempty"`
	TaintLineage []TaintNode            `json:"taint_lineage,omitempty"`
}

func (ToolCall) Kind() Kind { return KindToolCall }

// TaintNode records why a call was escalated beyond its own
// classification: which prior event (a tool output or a user message)
// contributed to the risk, and transitively what tainted that event.
// Grounded on the teacher's session.TaintNode/TaintLineage field, which
// the teacher already defines but never populates - wired here to record
// the lineage behind a Risky or Blocked classification.
type TaintNode struct {
	EventRef  string      `json:"event_ref"` // "seq:<n>" of the contributing event
	Reason    string      `json:"reason"`
	TaintedBy []TaintNode `json:"tainted_by,omitempty"`
}

type ToolResult struct {
	Tool    string `json:"tool"`
	Result  string `json:"result"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (ToolResult) Kind() Kind { return KindToolResult }

type Approval struct {
	Action   string `json:"action"`
	Approved bool   `json:"approved"`
}

func (Approval) Kind() Kind { return KindApproval }

type Patch struct {
	Name   string      `json:"name"`
	Status PatchStatus `json:"status"`
	Files  []string    `json:"files"`
	Diff   string      `json:"diff"`
}

func (Patch) Kind() Kind { return KindPatch }

type ShellCommand struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	Cwd      string   `json:"cwd"`
	ExitCode *int     `json:"exit_code,omitempty"`
	OutputRef string  `json:"output_ref,omitempty"`
}

func (ShellCommand) Kind() Kind { return KindShellCommand }

type GitSnapshot struct {
	Commit       string   `json:"commit"`
	Branch       string   `json:"branch"`
	ChangedFiles []string `json:"changed_files"`
}

func (GitSnapshot) Kind() Kind { return KindGitSnapshot }

type FileRead struct {
	FilePath  string `json:"file_path"`
	LineCount int    `json:"line_count"`
	Offset    int    `json:"offset"`
	Success   bool   `json:"success"`
}

func (FileRead) Kind() Kind { return KindFileRead }

type ApprovalModeChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (ApprovalModeChange) Kind() Kind { return KindApprovalModeChg }

type ViewEdit struct {
	View       string   `json:"view"`
	ChangeType string   `json:"change_type"`
	Content    string   `json:"content"`
	SeqRefs    []uint64 `json:"seq_refs,omitempty"`
}

func (ViewEdit) Kind() Kind { return KindViewEdit }

type ContextLoad struct {
	Source      string `json:"source"`
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
}

func (ContextLoad) Kind() Kind { return KindContextLoad }

type Checkpoint struct {
	Label       string  `json:"label"`
	Description string  `json:"description"`
	SnapshotID  *string `json:"snapshot_id,omitempty"`
}

func (Checkpoint) Kind() Kind { return KindCheckpoint }

type PlanUpdate struct {
	Action string `json:"action"`
	Item   string `json:"item"`
	Reason string `json:"reason,omitempty"`
}

func (PlanUpdate) Kind() Kind { return KindPlanUpdate }

type MemoryUpdate struct {
	MemKind     string `json:"kind"`
	Path        string `json:"path"`
	Operation   string `json:"operation"`
	ContentHash string `json:"content_hash"`
}

func (MemoryUpdate) Kind() Kind { return KindMemoryUpdate }

// LoggedEvent is the envelope every append() call writes: {seq, session_id,
// timestamp, event}, per spec.md §3.
type LoggedEvent struct {
	Seq       uint64    `json:"seq"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Event     Payload   `json:"-"`
}

// wireEvent is the on-disk shape: the envelope fields plus a tagged,
// flattened payload.
type wireEvent struct {
	Seq       uint64          `json:"seq"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      Kind            `json:"type"`
	Data      json.RawMessage `json:"data"`
}

// MarshalJSON flattens LoggedEvent into {seq, session_id, timestamp, type, data}.
func (e LoggedEvent) MarshalJSON() ([]byte, error) {
	if e.Event == nil {
		return nil, fmt.Errorf("logged event has no payload")
	}
	data, err := json.Marshal(e.Event)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return json.Marshal(wireEvent{
		Seq:       e.Seq,
		SessionID: e.SessionID,
		Timestamp: e.Timestamp,
		Type:      e.Event.Kind(),
		Data:      data,
	})
}

// UnmarshalJSON dispatches on the kebab-case type tag to reconstruct the
// concrete payload type, implementing the "pattern-match on the tag" design
// called out in spec.md §9.
func (e *LoggedEvent) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	payload, err := decodePayload(w.Type, w.Data)
	if err != nil {
		return err
	}

	e.Seq = w.Seq
	e.SessionID = w.SessionID
	e.Timestamp = w.Timestamp
	e.Event = payload
	return nil
}

func decodePayload(kind Kind, data json.RawMessage) (Payload, error) {
	var p Payload
	switch kind {
	case KindUserMessage:
		p = &UserMessage{}
	case KindModelMessage:
		p = &ModelMessage{}
	case KindToolCall:
		p = &ToolCall{}
	case KindToolResult:
		p = &ToolResult{}
	case KindApproval:
		p = &Approval{}
	case KindPatch:
		p = &Patch{}
	case KindShellCommand:
		p = &ShellCommand{}
	case KindGitSnapshot:
		p = &GitSnapshot{}
	case KindFileRead:
		p = &FileRead{}
	case KindApprovalModeChg:
		p = &ApprovalModeChange{}
	case KindViewEdit:
		p = &ViewEdit{}
	case KindContextLoad:
		p = &ContextLoad{}
	case KindCheckpoint:
		p = &Checkpoint{}
	case KindPlanUpdate:
		p = &PlanUpdate{}
	case KindMemoryUpdate:
		p = &MemoryUpdate{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", kind, err)
	}
	// Deref pointer receivers back to value types so Event.Kind() call
	// sites don't have to care whether they hold a pointer or a value.
	switch v := p.(type) {
	case *UserMessage:
		return *v, nil
	case *ModelMessage:
		return *v, nil
	case *ToolCall:
		return *v, nil
	case *ToolResult:
		return *v, nil
	case *Approval:
		return *v, nil
	case *Patch:
		return *v, nil
	case *ShellCommand:
		return *v, nil
	case *GitSnapshot:
		return *v, nil
	case *FileRead:
		return *v, nil
	case *ApprovalModeChange:
		return *v, nil
	case *ViewEdit:
		return *v, nil
	case *ContextLoad:
		return *v, nil
	case *Checkpoint:
		return *v, nil
	case *PlanUpdate:
		return *v, nil
	case *MemoryUpdate:
		return *v, nil
	}
	return p, nil
}
