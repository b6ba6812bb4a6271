// Package orchestrator runs the turn loop: stream the provider's reply,
// classify and act on any tool calls it makes, record everything to the
// session log, and repeat until the provider stops calling tools.
// Grounded on the teacher's internal/executor/executor.go (the
// stream -> classify -> dispatch -> record main loop) and
// internal/executor/converge.go (iterate until no further tool calls),
// with two independent cancellation signals layered on top per spec.md
// §4.8: a hard CancelToken and a soft PauseToken for drift holds.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/stormlightlabs/grid/internal/dispatch"
	"github.com/stormlightlabs/grid/internal/eventlog"
	"github.com/stormlightlabs/grid/internal/session"
)

// Provider is the minimal contract the orchestrator needs from an LLM
// backend. The actual provider wire protocol is out of scope per spec.md
// §1/§6 (an external collaborator); this interface is the seam the
// orchestrator is tested against.
type Provider interface {
	// Stream sends the conversation so far and returns the model's reply
	// plus any tool calls it wants executed before replying further.
	Stream(ctx context.Context, turns []session.Turn) (reply string, calls []dispatch.ToolCall, err error)
}

// CancelToken is a hard abort: once triggered, the current turn stops at
// the next safe point and does not resume.
type CancelToken struct {
	done chan struct{}
	once sync.Once
}

func NewCancelToken() *CancelToken { return &CancelToken{done: make(chan struct{})} }

func (c *CancelToken) Cancel()          { c.once.Do(func() { close(c.done) }) }
func (c *CancelToken) Done() <-chan struct{} { return c.done }
func (c *CancelToken) Canceled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// PauseToken is a soft hold: the orchestrator parks at the next safe point
// until Resume is called, used when the drift monitor wants a reconcile
// decision before the turn continues. Unlike CancelToken it can be reused
// across multiple pause/resume cycles in the same turn.
type PauseToken struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func NewPauseToken() *PauseToken {
	return &PauseToken{resume: make(chan struct{})}
}

func (p *PauseToken) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.resume = make(chan struct{})
	}
}

func (p *PauseToken) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		close(p.resume)
	}
}

// Wait blocks until the token is not paused, or ctx is canceled.
func (p *PauseToken) Wait(ctx context.Context) error {
	p.mu.Lock()
	ch := p.resume
	paused := p.paused
	p.mu.Unlock()
	if !paused {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// maxIterations bounds a single turn's tool-call/reply cycles, the same
// kind of convergence guard the teacher's converge.go applies so a model
// that never stops calling tools can't loop a turn forever.
const maxIterations = 50

// AgentEvent is emitted to any observer (UI, telemetry) watching a turn
// progress live, independent of the durable eventlog.
type AgentEvent struct {
	Kind    string // "reply" | "tool-call" | "tool-result" | "paused" | "done" | "error"
	Tool    string
	Content string
	Err     error
}

// Orchestrator runs turns against a single session.
type Orchestrator struct {
	Provider   Provider
	Dispatcher *dispatch.Dispatcher
	Session    *session.State

	iterations uint64
}

// New constructs an Orchestrator.
func New(provider Provider, d *dispatch.Dispatcher, s *session.State) *Orchestrator {
	return &Orchestrator{Provider: provider, Dispatcher: d, Session: s}
}

// ProcessMessage runs one full turn: append the user's message, then loop
// stream/classify/dispatch/record until the provider replies with no
// further tool calls, respecting cancel and pause tokens at each
// iteration boundary. events, if non-nil, receives a live AgentEvent per
// step; it is never blocked on (sends are best-effort via a buffered
// channel the caller owns).
func (o *Orchestrator) ProcessMessage(ctx context.Context, userMessage string, cancel *CancelToken, pause *PauseToken, events chan<- AgentEvent) error {
	ctx, turnSpan := startTurnSpan(ctx, userMessage)
	iterationCount := 0
	var turnErr error
	defer func() { endTurnSpan(turnSpan, iterationCount, turnErr) }()

	if _, err := o.Session.Append(eventlog.UserMessage{Content: userMessage}); err != nil {
		turnErr = err
		return err
	}

	for i := 0; i < maxIterations; i++ {
		iterationCount = i + 1
		atomic.AddUint64(&o.iterations, 1)
		iterCtx, iterSpan := startIterationSpan(ctx, i)

		if cancel != nil && cancel.Canceled() {
			emit(events, AgentEvent{Kind: "done", Content: "canceled"})
			iterSpan.End()
			turnErr = context.Canceled
			return turnErr
		}
		if pause != nil {
			emit(events, AgentEvent{Kind: "paused"})
			if err := pause.Wait(ctx); err != nil {
				iterSpan.End()
				turnErr = err
				return err
			}
		}

		reply, calls, err := o.Provider.Stream(iterCtx, o.Session.Turns)
		if err != nil {
			emit(events, AgentEvent{Kind: "error", Err: err})
			iterSpan.RecordError(err)
			iterSpan.End()
			turnErr = fmt.Errorf("provider stream: %w", err)
			return turnErr
		}

		if reply != "" {
			if _, err := o.Session.Append(eventlog.ModelMessage{Content: reply}); err != nil {
				iterSpan.End()
				turnErr = err
				return err
			}
			emit(events, AgentEvent{Kind: "reply", Content: reply})
		}

		if len(calls) == 0 {
			emit(events, AgentEvent{Kind: "done"})
			iterSpan.End()
			return nil
		}

		results := o.Dispatcher.ExecuteParallel(iterCtx, calls)
		for i, res := range results {
			emit(events, AgentEvent{Kind: "tool-call", Tool: calls[i].Tool})
			if res.Err != nil {
				emit(events, AgentEvent{Kind: "error", Tool: calls[i].Tool, Err: res.Err})
				continue
			}
			emit(events, AgentEvent{Kind: "tool-result", Tool: calls[i].Tool, Content: res.Output})
		}
		iterSpan.End()
	}

	turnErr = fmt.Errorf("turn exceeded %d iterations without converging", maxIterations)
	return turnErr
}

func emit(events chan<- AgentEvent, e AgentEvent) {
	if events == nil {
		return
	}
	select {
	case events <- e:
	default:
	}
}
