// Package dispatch executes tool calls through the full safety pipeline:
// classify, gate, check file ownership and the read-before-edit rule,
// invoke the tool body, log what happened, and enqueue any resulting
// file change as a proposed patch. Grounded on the teacher's
// internal/executor/tools.go (executeTool's classify -> log -> dispatch
// -> log pattern, concurrency-limited parallel execution), generalized to
// the spec's ownership/read-gating/patch-queue rules the teacher has no
// equivalent of.
package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/stormlightlabs/grid/internal/agenterr"
	"github.com/stormlightlabs/grid/internal/approval"
	"github.com/stormlightlabs/grid/internal/classifier"
	"github.com/stormlightlabs/grid/internal/eventlog"
	"github.com/stormlightlabs/grid/internal/patchqueue"
	"github.com/stormlightlabs/grid/internal/session"
)

// Tool is a single tool implementation. Body performs the actual work;
// Edit marks a tool that mutates the file named by the call's path argument
// so the dispatcher can apply ownership and read-before-edit rules without
// every tool re-implementing them.
type Tool struct {
	Name   string
	Edit   bool // mutates a file on disk
	Body   func(ctx context.Context, args map[string]interface{}) (result string, success bool, err error)
}

// Registry looks up a Tool by name, mirroring the teacher's
// registry.Get/Execute split in internal/executor/tools.go.
type Registry interface {
	Get(name string) (Tool, bool)
}

// MapRegistry is the simplest Registry: a name -> Tool map.
type MapRegistry map[string]Tool

func (m MapRegistry) Get(name string) (Tool, bool) {
	t, ok := m[name]
	return t, ok
}

// Dispatcher wires a Registry, approval Gate/Protocol, session State, and
// patch queue together into the single Execute entry point every tool
// call in a turn goes through.
type Dispatcher struct {
	Registry Registry
	Gate     approval.Gate
	Protocol approval.Protocol
	Session  *session.State
	Patches  *patchqueue.Queue

	sem chan struct{} // bounds parallel tool execution, teacher's concurrencyLimit pattern
}

// New builds a Dispatcher with a concurrency limit derived the way the
// teacher's internal/executor/tools.go derives it: CPU count * 4, clamped
// to [4, 32].
func New(reg Registry, gate approval.Gate, proto approval.Protocol, s *session.State, patches *patchqueue.Queue) *Dispatcher {
	limit := runtime.NumCPU() * 4
	if limit < 4 {
		limit = 4
	}
	if limit > 32 {
		limit = 32
	}
	return &Dispatcher{
		Registry: reg,
		Gate:     gate,
		Protocol: proto,
		Session:  s,
		Patches:  patches,
		sem:      make(chan struct{}, limit),
	}
}

// ToolCall is one invocation request from the orchestrator.
type ToolCall struct {
	Tool      string
	Arguments map[string]interface{}
	Caller    string // agent/sub-agent name, for ownership claims
}

// ToolResult is Execute's outcome.
type ToolResult struct {
	Success bool
	Output  string
	Err     error
}

// Execute runs one tool call through the full seven-step pipeline:
// classify, short-circuit Blocked, consult the approval gate, check
// ownership, enforce read-before-edit, invoke the tool body, then log and
// enqueue a patch for any edit.
func (d *Dispatcher) Execute(ctx context.Context, call ToolCall) ToolResult {
	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	c := classifier.Classify(call.Tool, call.Arguments)

	if c.Risk.IsBlocked() {
		proceed, needsHuman := d.Gate.Decide(c)
		if !needsHuman && !proceed {
			d.logBlocked(call, c)
			return ToolResult{Success: false, Err: &agenterr.Blocked{Tool: call.Tool, Reasoning: c.Reasoning}}
		}
		if needsHuman {
			decision, err := d.askHuman(ctx, call, c)
			if err != nil || decision != approval.Approved {
				d.logBlocked(call, c)
				return ToolResult{Success: false, Err: &agenterr.Blocked{Tool: call.Tool, Reasoning: c.Reasoning}}
			}
		}
	} else {
		proceed, needsHuman := d.Gate.Decide(c)
		if needsHuman {
			decision, err := d.askHuman(ctx, call, c)
			if err != nil || (decision != approval.Approved && decision != approval.ApprovedAlways) {
				return ToolResult{Success: false, Err: fmt.Errorf("tool call %s not approved", call.Tool)}
			}
			proceed = true
		}
		if !proceed {
			return ToolResult{Success: false, Err: fmt.Errorf("tool call %s denied by approval mode", call.Tool)}
		}
	}

	tool, ok := d.Registry.Get(call.Tool)
	if !ok {
		return ToolResult{Success: false, Err: agenterr.Wrap(agenterr.KindTool, fmt.Sprintf("unknown tool %q", call.Tool), nil)}
	}

	path, hasPath := pathArg(call.Arguments)
	if tool.Edit && hasPath {
		if owner, ok := d.Session.OwnerOf(path); ok && owner != call.Caller {
			return ToolResult{Success: false, Err: agenterr.New(agenterr.KindValidation, fmt.Sprintf("%s is owned by %s, not %s", path, owner, call.Caller))}
		}
		if !d.Session.HasBeenRead(path) {
			return ToolResult{Success: false, Err: agenterr.New(agenterr.KindValidation, fmt.Sprintf("%s must be read before it can be edited", path))}
		}
	}

	toolCallEvent := eventlog.ToolCall{Tool: call.Tool, Arguments: call.Arguments}
	if !c.Risk.IsSafe() {
		toolCallEvent.Risk = string(c.Risk)
		toolCallEvent.TaintLineage = d.taintLineage(c)
	}
	if _, err := d.Session.Append(toolCallEvent); err != nil {
		return ToolResult{Success: false, Err: err}
	}

	output, success, err := tool.Body(ctx, call.Arguments)

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	if _, logErr := d.Session.Append(eventlog.ToolResult{Tool: call.Tool, Result: output, Success: success, Error: errMsg}); logErr != nil {
		return ToolResult{Success: false, Err: logErr}
	}

	if tool.Name == "read" && hasPath && success {
		if _, logErr := d.Session.Append(eventlog.FileRead{FilePath: path, Success: true}); logErr != nil {
			return ToolResult{Success: false, Err: logErr}
		}
	}

	if tool.Edit && hasPath && success && d.Patches != nil {
		if _, addErr := d.Patches.Add(fmt.Sprintf("%s on %s", call.Tool, path), "", []patchqueue.FilePatch{
			{Path: path, Hunks: []patchqueue.Hunk{{Diff: output}}},
		}); addErr != nil {
			return ToolResult{Success: success, Output: output, Err: addErr}
		}
	}

	return ToolResult{Success: success, Output: output, Err: err}
}

func (d *Dispatcher) askHuman(ctx context.Context, call ToolCall, c classifier.Classification) (approval.Decision, error) {
	if d.Protocol == nil {
		return approval.Rejected, fmt.Errorf("no approval protocol configured")
	}
	req := approval.NewRequest(call.Tool, call.Arguments, c)
	return d.Protocol.Submit(ctx, req)
}

func (d *Dispatcher) logBlocked(call ToolCall, c classifier.Classification) {
	_, _ = d.Session.Append(eventlog.ToolResult{
		Tool:    call.Tool,
		Success: false,
		Error:   c.Reasoning,
	})
}

// taintLineage walks the session's recent event history and records which
// prior tool outputs or user messages plausibly contributed to this
// call's Risky/Blocked classification, so a reviewer replaying the
// session can see why the call was escalated rather than just that it
// was. Looks back at most taintLookback events.
func (d *Dispatcher) taintLineage(c classifier.Classification) []eventlog.TaintNode {
	const taintLookback = 5
	events, _, err := d.Session.Log.ReadAll()
	if err != nil {
		return nil
	}
	start := len(events) - taintLookback
	if start < 0 {
		start = 0
	}

	var nodes []eventlog.TaintNode
	for _, e := range events[start:] {
		switch p := e.Event.(type) {
		case eventlog.UserMessage:
			nodes = append(nodes, eventlog.TaintNode{
				EventRef: fmt.Sprintf("seq:%d", e.Seq),
				Reason:   "user message preceding " + c.Reasoning,
			})
		case eventlog.ToolResult:
			if !p.Success || p.Error != "" {
				nodes = append(nodes, eventlog.TaintNode{
					EventRef: fmt.Sprintf("seq:%d", e.Seq),
					Reason:   "prior tool failure preceding " + c.Reasoning,
				})
			}
		}
	}
	return nodes
}

func pathArg(args map[string]interface{}) (string, bool) {
	for _, key := range []string{"path", "file_path", "file"} {
		if v, ok := args[key].(string); ok {
			return v, true
		}
	}
	return "", false
}

// ExecuteParallel runs independent calls concurrently, bounded by the
// dispatcher's semaphore, matching the teacher's
// executeToolsParallel/WaitGroup-plus-results-channel shape.
func (d *Dispatcher) ExecuteParallel(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			results[i] = d.Execute(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}
