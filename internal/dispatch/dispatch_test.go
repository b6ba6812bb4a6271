package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormlightlabs/grid/internal/approval"
	"github.com/stormlightlabs/grid/internal/eventlog"
	"github.com/stormlightlabs/grid/internal/patchqueue"
	"github.com/stormlightlabs/grid/internal/session"
)

const (
	timeoutDur = time.Second
	pollDur    = time.Millisecond
)

func newTestDispatcher(t *testing.T, mode approval.Mode, reg MapRegistry) (*Dispatcher, *session.State) {
	t.Helper()
	s, err := session.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	pq, err := patchqueue.Open(t.TempDir())
	require.NoError(t, err)

	proto := approval.NewQueueProtocol(4)
	d := New(reg, approval.Gate{Mode: mode}, proto, s, pq)
	return d, s
}

func TestExecuteRiskyCallRecordsTaintLineage(t *testing.T) {
	reg := MapRegistry{"bash": {Name: "bash", Body: func(ctx context.Context, args map[string]interface{}) (string, bool, error) {
		return "installed", true, nil
	}}}
	d, s := newTestDispatcher(t, approval.ModeFullAccess, reg)

	_, err := s.Append(eventlog.UserMessage{Content: "please install the dependency"})
	require.NoError(t, err)

	ctx := context.Background()
	proto := d.Protocol.(*approval.QueueProtocol)
	done := make(chan ToolResult, 1)
	go func() {
		done <- d.Execute(ctx, ToolCall{Tool: "bash", Arguments: map[string]interface{}{"command": "npm install left-pad"}})
	}()

	var pending []*approval.Request
	require.Eventually(t, func() bool {
		pending = proto.Pending()
		return len(pending) > 0
	}, timeoutDur, pollDur)
	require.NoError(t, proto.Respond(pending[0].ID, approval.Approved))

	res := <-done
	require.NoError(t, res.Err)
	assert.True(t, res.Success)

	events, _, err := s.Log.ReadAll()
	require.NoError(t, err)

	var found bool
	for _, e := range events {
		if tc, ok := e.Event.(eventlog.ToolCall); ok && tc.Tool == "bash" {
			assert.Equal(t, "risky", tc.Risk)
			assert.NotEmpty(t, tc.TaintLineage)
			found = true
		}
	}
	assert.True(t, found, "expected a logged ToolCall event for bash")
}

func TestExecuteBlockedCommandShortCircuits(t *testing.T) {
	reg := MapRegistry{"bash": {Name: "bash", Body: func(ctx context.Context, args map[string]interface{}) (string, bool, error) {
		return "should not run", true, nil
	}}}
	d, _ := newTestDispatcher(t, approval.ModeAuto, reg)

	res := d.Execute(context.Background(), ToolCall{Tool: "bash", Arguments: map[string]interface{}{"command": "sudo rm -rf /"}})
	assert.False(t, res.Success)
	require.Error(t, res.Err)
}

func TestExecuteReadThenEditSucceeds(t *testing.T) {
	reg := MapRegistry{
		"read": {Name: "read", Body: func(ctx context.Context, args map[string]interface{}) (string, bool, error) {
			return "file contents", true, nil
		}},
		"write": {Name: "write", Edit: true, Body: func(ctx context.Context, args map[string]interface{}) (string, bool, error) {
			return "diff", true, nil
		}},
	}
	d, _ := newTestDispatcher(t, approval.ModeAuto, reg)
	ctx := context.Background()

	readRes := d.Execute(ctx, ToolCall{Tool: "read", Arguments: map[string]interface{}{"path": "main.go"}})
	require.True(t, readRes.Success)

	proto := d.Protocol.(*approval.QueueProtocol)
	done := make(chan ToolResult, 1)
	go func() {
		done <- d.Execute(ctx, ToolCall{Tool: "write", Arguments: map[string]interface{}{"path": "main.go"}, Caller: "agent-1"})
	}()

	var pending []*approval.Request
	require.Eventually(t, func() bool {
		pending = proto.Pending()
		return len(pending) > 0
	}, timeoutDur, pollDur)
	require.NoError(t, proto.Respond(pending[0].ID, approval.Approved))

	res := <-done
	assert.True(t, res.Success)
}

func TestExecuteEditWithoutReadIsDenied(t *testing.T) {
	reg := MapRegistry{
		"write": {Name: "write", Edit: true, Body: func(ctx context.Context, args map[string]interface{}) (string, bool, error) {
			return "diff", true, nil
		}},
	}
	d, _ := newTestDispatcher(t, approval.ModeFullAccess, reg)
	res := d.Execute(context.Background(), ToolCall{Tool: "write", Arguments: map[string]interface{}{"path": "main.go"}, Caller: "agent-1"})
	assert.False(t, res.Success)
	require.Error(t, res.Err)
}

func TestExecuteReadOnlyModeDeniesRiskyWrite(t *testing.T) {
	reg := MapRegistry{
		"read": {Name: "read", Body: func(ctx context.Context, args map[string]interface{}) (string, bool, error) {
			return "contents", true, nil
		}},
		"write": {Name: "write", Edit: true, Body: func(ctx context.Context, args map[string]interface{}) (string, bool, error) {
			return "diff", true, nil
		}},
	}
	d, _ := newTestDispatcher(t, approval.ModeReadOnly, reg)
	ctx := context.Background()
	d.Execute(ctx, ToolCall{Tool: "read", Arguments: map[string]interface{}{"path": "main.go"}})

	res := d.Execute(ctx, ToolCall{Tool: "write", Arguments: map[string]interface{}{"path": "main.go"}, Caller: "agent-1"})
	assert.False(t, res.Success)
}

func TestExecuteLogsToolCallAndResult(t *testing.T) {
	reg := MapRegistry{"read": {Name: "read", Body: func(ctx context.Context, args map[string]interface{}) (string, bool, error) {
		return "ok", true, nil
	}}}
	d, s := newTestDispatcher(t, approval.ModeAuto, reg)
	d.Execute(context.Background(), ToolCall{Tool: "read", Arguments: map[string]interface{}{"path": "x.go"}})

	events, _, err := s.Log.ReadAll()
	require.NoError(t, err)
	var sawCall, sawResult bool
	for _, e := range events {
		switch e.Event.(type) {
		case eventlog.ToolCall:
			sawCall = true
		case eventlog.ToolResult:
			sawResult = true
		}
	}
	assert.True(t, sawCall)
	assert.True(t, sawResult)
}
