package gardener

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/stormlightlabs/grid/internal/eventlog"
	"github.com/stormlightlabs/grid/internal/memdoc"
)

// RecapStats summarizes a session's activity, original_source's
// RecapStats.
type RecapStats struct {
	EventCount         int
	FilesModified      int
	CommandsRun        int
	EntitiesExtracted  int
}

// RecapResult is what GenerateRecap produced, original_source's
// RecapResult.
type RecapResult struct {
	Path   string
	DocID  string
	Stats  RecapStats
}

// GenerateRecap renders a human-readable per-session summary document and
// writes it under <root>/recaps/<yyyy-mm>/<sessionID>.md, grounded on
// original_source's RecapGenerator.generate (month-bucketed directory
// layout, doc id "recap.<session>"). <yyyy-mm> is the month of the date a
// session ID starts with, or the current UTC month if it starts with none.
func (g *Gardener) GenerateRecap(sessionID string, events []eventlog.LoggedEvent, ex Extraction, appliedPatches []string) (RecapResult, error) {
	now := time.Now().UTC()
	monthDir := now.Format("2006-01")
	if len(sessionID) >= 10 {
		if started, err := time.Parse("2006-01-02", sessionID[:10]); err == nil {
			monthDir = started.Format("2006-01")
		}
	}

	stats := calculateStats(events, ex)
	body := renderRecap(sessionID, events, ex, appliedPatches, stats)

	docID := "recap." + sessionID
	filename := strings.ReplaceAll(sessionID, ":", "-") + ".md"
	path := filepath.Join(g.Root, "recaps", monthDir, filename)

	doc := memdoc.Document{
		Frontmatter: memdoc.Frontmatter{
			ID:   docID,
			Kind: memdoc.KindRecap,
			Tags: []string{"recap"},
			Provenance: memdoc.Provenance{
				Source:    "gardener",
				SessionID: sessionID,
				CreatedAt: now,
			},
		},
		Body: body,
	}

	if err := memdoc.Write(path, doc); err != nil {
		return RecapResult{}, err
	}
	if err := g.Manifest.Add(docID, relPath(g.Root, path)); err != nil {
		return RecapResult{}, err
	}

	return RecapResult{Path: path, DocID: docID, Stats: stats}, nil
}

func calculateStats(events []eventlog.LoggedEvent, ex Extraction) RecapStats {
	stats := RecapStats{
		EventCount:        len(events),
		EntitiesExtracted: len(ex.Commands) + len(ex.Gotchas) + len(ex.Decisions) + len(ex.Workflows),
	}
	modified := make(map[string]bool)
	for _, e := range events {
		switch p := e.Event.(type) {
		case eventlog.ShellCommand:
			stats.CommandsRun++
		case eventlog.Patch:
			for _, f := range p.Files {
				modified[f] = true
			}
		}
	}
	stats.FilesModified = len(modified)
	return stats
}

func renderRecap(sessionID string, events []eventlog.LoggedEvent, ex Extraction, appliedPatches []string, stats RecapStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session Recap: %s\n\n", sessionID)
	fmt.Fprintf(&sb, "- Events: %d\n", stats.EventCount)
	fmt.Fprintf(&sb, "- Commands run: %d\n", stats.CommandsRun)
	fmt.Fprintf(&sb, "- Files modified: %d\n", stats.FilesModified)
	fmt.Fprintf(&sb, "- Entities extracted: %d\n\n", stats.EntitiesExtracted)

	if len(ex.Decisions) > 0 {
		sb.WriteString("## Decisions\n")
		for _, d := range ex.Decisions {
			fmt.Fprintf(&sb, "- %s\n", d.Decision)
		}
		sb.WriteString("\n")
	}

	if len(ex.Gotchas) > 0 {
		sb.WriteString("## Gotchas\n")
		for _, g := range ex.Gotchas {
			fmt.Fprintf(&sb, "- [%s] %s -> %s\n", g.Category, g.Issue, g.Resolution)
		}
		sb.WriteString("\n")
	}

	if len(appliedPatches) > 0 {
		sb.WriteString("## Applied patches\n")
		for _, p := range appliedPatches {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}

	return sb.String()
}
