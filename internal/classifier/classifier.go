// Package classifier implements the pure, deterministic risk assessment
// every tool call passes through before the dispatcher will act on it.
// Classify never touches disk, the network, or an LLM: it is a function of
// (tool, arguments) alone, so the same call always classifies the same way
// and the dispatcher can call it on the hot path without worrying about
// side effects or latency.
package classifier

import (
	"fmt"
	"regexp"
	"strings"
)

// Risk is the three-tier outcome from spec.md §4.4 / original_source's
// ToolRisk enum (classification.rs). The zero value is the empty string,
// which matches none of the three constants below.
type Risk string

const (
	Safe    Risk = "safe"
	Risky   Risk = "risky"
	Blocked Risk = "blocked"
)

func (r Risk) IsSafe() bool    { return r == Safe }
func (r Risk) IsRisky() bool   { return r == Risky }
func (r Risk) IsBlocked() bool { return r == Blocked }

// Classification is the result of classifying one tool call.
type Classification struct {
	Risk       Risk
	Reasoning  string
	Suggestion string // optional teaching hint, spec.md §5
}

func new_(risk Risk, reasoning string) Classification {
	return Classification{Risk: risk, Reasoning: reasoning}
}

func (c Classification) WithSuggestion(s string) Classification {
	c.Suggestion = s
	return c
}

// writeTools are tools whose entire purpose is mutating the workspace;
// they are Risky by default regardless of arguments unless a Blocked rule
// fires first.
var writeTools = map[string]bool{
	"write":        true,
	"edit":         true,
	"patch":        true,
	"bash":         true,
	"shell":        true,
	"run_command":  true,
	"spawn_agents": true,
}

var readOnlyTools = map[string]bool{
	"read":       true,
	"grep":       true,
	"glob":       true,
	"ls":         true,
	"web_fetch":  true,
	"web_search": true,
	"recall":     true,
	"get":        true,
}

// blockedCommandPatterns match shell command strings that are always
// denied outright, never merely flagged Risky: destructive disk/filesystem
// operations and privilege escalation. Grounded on original_source's
// classification.rs Blocked variant and src/internal/security/verifier.go's
// high-risk tool list.
var blockedCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`\bfdisk\b`),
	regexp.MustCompile(`\bformat\b`),
	regexp.MustCompile(`\brm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+/(\s|$)`),
	regexp.MustCompile(`\brm\s+-rf\s+~(\s|/|$)`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};:`), // fork bomb
}

// riskyCommandPatterns match shell command strings that are allowed but
// require approval: in-place file mutation outside the tracked write
// tools, package installation, network access, and non-idempotent VCS
// writes.
var riskyCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsed\s+-i\b`),
	regexp.MustCompile(`\bawk\b.*>\s*\S`),
	regexp.MustCompile(`\bperl\s+-i\b`),
	regexp.MustCompile(`\b(npm|pip|pip3|go|cargo|gem|apt|apt-get|brew|yarn|pnpm)\s+(install|add|get)\b`),
	regexp.MustCompile(`\bcurl\b`),
	regexp.MustCompile(`\bwget\b`),
	regexp.MustCompile(`\bnc\s`),
	regexp.MustCompile(`\bgit\s+(push|reset\s+--hard|rebase|cherry-pick)\b`),
}

// Classify assesses a single tool call. Blocked rules are checked before
// Risky rules before the Safe default, matching the tie-break order in
// spec.md §4.4: the most restrictive applicable rule always wins.
func Classify(tool string, args map[string]interface{}) Classification {
	cmd := commandString(tool, args)

	if cmd != "" {
		for _, p := range blockedCommandPatterns {
			if p.MatchString(cmd) {
				return new_(Blocked, fmt.Sprintf("command matches a blocked pattern: %q", p.String()))
			}
		}
	}

	if cmd != "" {
		for _, p := range riskyCommandPatterns {
			if p.MatchString(cmd) {
				return new_(Risky, fmt.Sprintf("command matches a risky pattern requiring approval: %q", p.String())).
					WithSuggestion(suggestionFor(cmd))
			}
		}
	}

	if readOnlyTools[tool] {
		return new_(Safe, fmt.Sprintf("%s is a read-only tool", tool))
	}

	if writeTools[tool] {
		return new_(Risky, fmt.Sprintf("%s mutates the workspace", tool))
	}

	return new_(Safe, fmt.Sprintf("%s has no known write or destructive surface", tool))
}

// commandString extracts the literal shell command text from tool
// arguments that carry one, for tools like "bash"/"shell"/"run_command".
// Returns "" for tools that have no command surface to pattern-match.
func commandString(tool string, args map[string]interface{}) string {
	if tool != "bash" && tool != "shell" && tool != "run_command" {
		return ""
	}
	if v, ok := args["command"].(string); ok {
		return v
	}
	var parts []string
	if cmd, ok := args["cmd"].(string); ok {
		parts = append(parts, cmd)
	}
	if raw, ok := args["args"].([]interface{}); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}

func suggestionFor(cmd string) string {
	switch {
	case strings.Contains(cmd, "sed -i"):
		return "prefer the edit tool, which records a reviewable diff instead of mutating the file in place"
	case strings.Contains(cmd, "git push"):
		return "confirm the target branch and remote before pushing"
	case strings.Contains(cmd, "curl") || strings.Contains(cmd, "wget"):
		return "network access from a shell command bypasses the web_fetch tool's content provenance tracking"
	default:
		return ""
	}
}
