// Package ids generates and validates the identifiers used across the
// session log, patch queue, and memory garden: session IDs and the
// monotonic event sequence counter.
package ids

import (
	"fmt"
	"regexp"
	"sync/atomic"
	"time"
)

// sessionIDLayout is a filename-safe ISO-8601 variant: colons and the
// fractional separator are replaced so the ID doubles as a directory name
// on every target filesystem.
const sessionIDLayout = "2006-01-02T15-04-05Z"

var sessionIDPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}Z(-\d+)?$`)

// lastStamp and counter guarantee monotonic, collision-free SessionIDs even
// when New is called faster than once per second.
var (
	lastStamp int64
	counter   uint64
)

// New generates a monotonic SessionId from the current time. Calls within
// the same wall-clock second get a numeric suffix so two sessions never
// collide.
func New() string {
	return NewAt(time.Now().UTC())
}

// NewAt generates a SessionId for a specific instant. Exposed so callers
// that need deterministic IDs (tests, replay tooling) can avoid wall-clock
// flakiness.
func NewAt(t time.Time) string {
	t = t.UTC()
	stamp := t.Unix()

	n := atomic.AddUint64(&counter, 1)
	prev := atomic.SwapInt64(&lastStamp, stamp)
	if prev != stamp {
		// First ID in a new second: reset so suffixes stay small and
		// predictable rather than growing unbounded across a long process
		// lifetime.
		atomic.StoreUint64(&counter, 1)
		n = 1
	}

	base := t.Format(sessionIDLayout)
	if n == 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}

// Valid reports whether s has the shape of a SessionId produced by New.
func Valid(s string) bool {
	return sessionIDPattern.MatchString(s)
}

// Seq is the monotonic, dense sequence number the event log assigns to
// every appended event, starting at 0 for the first event in a session.
type Seq = uint64
