// Package approval implements the cross-thread approval protocol: the
// synchronous agent thread raises a Request and blocks on its Reply
// channel while the asynchronous UI thread pulls the request off the
// queue, shows it to a human, and writes back a Decision. Grounded on
// original_source's TuiApprovalProtocol/TuiApprovalHandle split
// (tui_approval.rs, approvals.rs): the protocol owns the queue, the handle
// is the one-shot reply side each request carries with it.
package approval

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/stormlightlabs/grid/internal/classifier"
)

// Decision is the human's (or autonomous fallback's) verdict on a Request.
type Decision string

const (
	Approved        Decision = "approved"
	Rejected        Decision = "rejected"
	ApprovedAlways  Decision = "approved_always" // accepted like Approved for this call; the dispatcher keeps no record of it for later calls
)

// Mode is the session-wide approval policy, spec.md §4.5.
type Mode string

const (
	ModeReadOnly   Mode = "read-only"   // Safe only; Risky and Blocked always denied without asking
	ModeAuto       Mode = "auto"        // Safe and Risky proceed; Blocked always denied
	ModeFullAccess Mode = "full-access" // Safe and Risky proceed; Blocked always denied; pre-edit backups required
)

// Hint is a teaching note attached to a request so the approval surface
// can explain *why* a call needs a decision, not just that it does -
// spec.md §5's supplemented teaching-hint feature.
type Hint struct {
	Concept     string
	Explanation string
}

// Request is what the agent thread submits and blocks on.
type Request struct {
	ID             string
	Tool           string
	Arguments      map[string]interface{}
	Classification classifier.Classification
	Hint           *Hint

	reply chan Decision
}

// NewRequest builds a Request with its one-shot reply channel already
// wired, ready to hand to a Protocol's Submit.
func NewRequest(tool string, args map[string]interface{}, c classifier.Classification) *Request {
	r := &Request{
		ID:             uuid.NewString(),
		Tool:           tool,
		Arguments:      args,
		Classification: c,
		reply:          make(chan Decision, 1),
	}
	if c.Suggestion != "" {
		r.Hint = &Hint{Concept: tool, Explanation: c.Suggestion}
	}
	return r
}

// Protocol is implemented by whatever surface presents approval requests
// to a human (TUI, web gateway, test double). Submit blocks the calling
// goroutine until Respond is called with the same request's ID, or ctx is
// canceled.
type Protocol interface {
	// Submit enqueues req for the UI side to pick up and blocks for its
	// decision.
	Submit(ctx context.Context, req *Request) (Decision, error)
	// Pending returns requests submitted since the previous call that are
	// waiting for a decision, oldest first; each request is returned once.
	Pending() []*Request
	// Respond delivers a decision for a previously submitted request.
	Respond(id string, d Decision) error
}

// QueueProtocol is the default Protocol: an in-memory FIFO queue plus a
// map of in-flight requests keyed by ID, matching
// TuiApprovalProtocol/TuiApprovalHandle's queue-plus-reply-channel shape.
type QueueProtocol struct {
	submit chan *Request
	mu     inflightMu
}

type inflightMu struct {
	ch      chan struct{} // acts as a mutex via buffered-channel token
	pending map[string]*Request
}

// NewQueueProtocol constructs an empty protocol with room for backlog
// pending requests before Submit calls start blocking on a full channel.
func NewQueueProtocol(backlog int) *QueueProtocol {
	if backlog <= 0 {
		backlog = 16
	}
	return &QueueProtocol{
		submit: make(chan *Request, backlog),
		mu: inflightMu{
			ch:      make(chan struct{}, 1),
			pending: make(map[string]*Request),
		},
	}
}

func (p *QueueProtocol) lock()   { p.mu.ch <- struct{}{} }
func (p *QueueProtocol) unlock() { <-p.mu.ch }

func (p *QueueProtocol) Submit(ctx context.Context, req *Request) (Decision, error) {
	p.lock()
	p.mu.pending[req.ID] = req
	p.unlock()

	select {
	case p.submit <- req:
	case <-ctx.Done():
		p.lock()
		delete(p.mu.pending, req.ID)
		p.unlock()
		return Rejected, ctx.Err()
	}

	select {
	case d := <-req.reply:
		return d, nil
	case <-ctx.Done():
		return Rejected, ctx.Err()
	}
}

// Pending drains whatever is currently queued without blocking, for a UI
// poll loop.
func (p *QueueProtocol) Pending() []*Request {
	var out []*Request
	for {
		select {
		case r := <-p.submit:
			out = append(out, r)
		default:
			return out
		}
	}
}

func (p *QueueProtocol) Respond(id string, d Decision) error {
	p.lock()
	req, ok := p.mu.pending[id]
	if ok {
		delete(p.mu.pending, id)
	}
	p.unlock()
	if !ok {
		return fmt.Errorf("approval: no pending request with id %s", id)
	}
	req.reply <- d
	return nil
}

// Gate evaluates a Classification against the session's Mode without
// involving a human, for the Safe-always-proceeds and Blocked-always-denied
// cases that never need to reach a Protocol at all.
type Gate struct {
	Mode         Mode
	AllowNetwork bool
}

// Decide returns (proceed, needsHuman). When needsHuman is true the
// dispatcher must submit a Request through a Protocol before acting;
// otherwise proceed alone determines the outcome.
func (g Gate) Decide(c classifier.Classification) (proceed bool, needsHuman bool) {
	switch {
	case c.Risk.IsBlocked():
		return false, false
	case c.Risk.IsRisky():
		switch g.Mode {
		case ModeReadOnly:
			return false, false
		case ModeAuto, ModeFullAccess:
			return false, true
		}
		return false, false
	default: // Safe
		return true, false
	}
}

// RequiresBackup reports whether proceeding with this call under
// full-access mode first requires a timestamped backup of any files it
// touches, per spec.md §4.5's full-access in-place-edit safeguard.
func (g Gate) RequiresBackup(tool string, args map[string]interface{}) bool {
	if g.Mode != ModeFullAccess {
		return false
	}
	if tool != "bash" && tool != "shell" {
		return false
	}
	cmd, _ := args["command"].(string)
	return containsInPlaceEdit(cmd)
}

func containsInPlaceEdit(cmd string) bool {
	for _, marker := range []string{"sed -i", "perl -i", "> "} {
		if strings.Contains(cmd, marker) {
			return true
		}
	}
	return false
}
