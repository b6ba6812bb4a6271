package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Bus republishes an AgentEvent stream onto a NATS subject so anything
// running out-of-process — a terminal UI, a forensic recorder, a second
// orchestrator watching a shared session — can subscribe without being
// wired in-process to the Orchestrator's events channel.
type Bus struct {
	nc      *nats.Conn
	subject string
}

// NewBus connects to a NATS server and returns a Bus publishing to
// subject. The caller owns the returned Bus's lifetime and should call
// Close when the session ends.
func NewBus(url, subject string) (*Bus, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Bus{nc: nc, subject: subject}, nil
}

// Publish marshals one AgentEvent as JSON and publishes it to the bus's
// subject. Errors are returned rather than swallowed since a forensic
// subscriber silently missing events would defeat the bus's purpose.
func (b *Bus) Publish(e AgentEvent) error {
	payload, err := json.Marshal(wireEvent{
		Kind:    e.Kind,
		Tool:    e.Tool,
		Content: e.Content,
		Err:     errString(e.Err),
	})
	if err != nil {
		return fmt.Errorf("marshal agent event: %w", err)
	}
	return b.nc.Publish(b.subject, payload)
}

// Relay drains events off ch and publishes each to the bus until ch is
// closed, logging nothing itself — callers that need to know about a
// publish failure should prefer calling Publish directly per event.
func (b *Bus) Relay(ch <-chan AgentEvent) <-chan error {
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		for e := range ch {
			if err := b.Publish(e); err != nil {
				select {
				case errs <- err:
				default:
				}
			}
		}
	}()
	return errs
}

// Close drains any buffered publishes and closes the NATS connection.
func (b *Bus) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}

// wireEvent is AgentEvent's JSON wire shape; Err is flattened to a string
// since error isn't itself serializable.
type wireEvent struct {
	Kind    string `json:"kind"`
	Tool    string `json:"tool,omitempty"`
	Content string `json:"content,omitempty"`
	Err     string `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
