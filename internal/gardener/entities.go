// Package gardener turns raw session history into durable memory
// documents: extracting typed entities from a transcript, checking the
// garden for staleness and duplicates, and writing per-session recaps.
// Grounded on original_source's crates/core/src/memory/gardener/{entities,
// mod,drift,recap}.rs and the teacher's internal/memory ConsolidateSession
// heuristics, generalized from the teacher's plain keyword-triggered
// insight strings into the typed entity set the original defines.
package gardener

import (
	"strconv"
	"strings"

	"github.com/stormlightlabs/grid/internal/memory"
)

// CommandOutcome is a shell command entity's result.
type CommandOutcome string

const (
	CommandSuccess CommandOutcome = "success"
	CommandFailure CommandOutcome = "failure"
	CommandPartial CommandOutcome = "partial"
)

// CommandEntity is a shell command with its context and outcome,
// original_source's CommandEntity.
type CommandEntity struct {
	Command  string
	Cwd      string
	Args     []string
	Outcome  CommandOutcome
	EventIDs []string
}

// GotchaCategory classifies a GotchaEntity.
type GotchaCategory string

const (
	GotchaBuild   GotchaCategory = "build"
	GotchaTest    GotchaCategory = "test"
	GotchaRuntime GotchaCategory = "runtime"
	GotchaConfig  GotchaCategory = "config"
	GotchaOther   GotchaCategory = "other"
)

// GotchaEntity is an error/resolution pair worth remembering,
// original_source's GotchaEntity.
type GotchaEntity struct {
	Issue      string
	Resolution string
	Category   GotchaCategory
	EventIDs   []string
}

// DecisionEntity is a decision made during the session, with its
// alternatives and rationale, original_source's DecisionEntity.
type DecisionEntity struct {
	Decision  string
	Context   string
	Rationale string
	EventIDs  []string
}

// WorkflowStep is one step of a WorkflowEntity.
type WorkflowStep struct {
	Description string
	Action      string
	Outcome     string
}

// WorkflowEntity is a reusable multi-step pattern worth remembering,
// original_source's WorkflowEntity.
type WorkflowEntity struct {
	Title       string
	Description string
	Steps       []WorkflowStep
	EventIDs    []string
}

// Extraction is everything Extract pulled out of one transcript.
type Extraction struct {
	Commands  []CommandEntity
	Gotchas   []GotchaEntity
	Decisions []DecisionEntity
	Workflows []WorkflowEntity
}

// Empty reports whether nothing was extracted.
func (e Extraction) Empty() bool {
	return len(e.Commands) == 0 && len(e.Gotchas) == 0 && len(e.Decisions) == 0 && len(e.Workflows) == 0
}

// decisionMarkers is the same keyword set the teacher's
// internal/memory.ConsolidateSession uses to spot a decision worth
// remembering in an assistant turn, reused here verbatim since it is
// already tuned against real transcripts.
var decisionMarkers = []string{
	"decided", "conclusion", "important", "remember", "note that",
	"key insight", "learned that", "will use", "should use", "agreed",
}

var gotchaMarkers = map[string]GotchaCategory{
	"build failed":     GotchaBuild,
	"compilation error": GotchaBuild,
	"test failed":       GotchaTest,
	"flaky test":        GotchaTest,
	"panic":             GotchaRuntime,
	"nil pointer":       GotchaRuntime,
	"misconfigured":     GotchaConfig,
	"wrong config":      GotchaConfig,
}

// Extract pulls typed entities out of a session transcript. It is a
// heuristic keyword pass, the same approach the teacher's
// ConsolidateSession uses, generalized here to populate four distinct
// entity kinds instead of one flat insight string.
func Extract(transcript []memory.Message) Extraction {
	var ex Extraction

	for i, msg := range transcript {
		if msg.Role != "assistant" && msg.Role != "model" {
			continue
		}
		lower := strings.ToLower(msg.Content)

		for _, marker := range decisionMarkers {
			if strings.Contains(lower, marker) {
				ex.Decisions = append(ex.Decisions, DecisionEntity{
					Decision:  firstSentence(msg.Content),
					Context:   marker,
					Rationale: msg.Content,
					EventIDs:  []string{eventRef(i)},
				})
				break
			}
		}

		for marker, category := range gotchaMarkers {
			if strings.Contains(lower, marker) {
				ex.Gotchas = append(ex.Gotchas, GotchaEntity{
					Issue:      marker,
					Resolution: msg.Content,
					Category:   category,
					EventIDs:   []string{eventRef(i)},
				})
				break
			}
		}
	}

	return ex
}

func firstSentence(s string) string {
	if idx := strings.IndexAny(s, ".\n"); idx > 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}

func eventRef(i int) string {
	return "transcript#" + strconv.Itoa(i)
}
