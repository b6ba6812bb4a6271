package gardener

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/stormlightlabs/grid/internal/memdoc"
)

// PatchOp is what a MemoryPatch wants to do to the garden.
type PatchOp string

const (
	PatchCreate PatchOp = "create"
	PatchUpdate PatchOp = "update"
)

// MemoryPatch is a proposed change to the memory garden generated from
// extraction or hygiene, queued for approval rather than written
// directly - the gardener never writes a document without the session's
// approval gate seeing it first, matching the same proposed-then-approved
// shape as internal/patchqueue.
type MemoryPatch struct {
	Op       PatchOp
	Document memdoc.Document
	Reason   string
}

// Gardener ties extraction, hygiene, drift, and recap together against one
// memory garden root.
type Gardener struct {
	Root     string
	Manifest *memdoc.Manifest
	adrSeq   int
}

// Open loads the garden rooted at root, indexing existing documents.
func Open(root string) (*Gardener, error) {
	m, err := memdoc.LoadManifest(root)
	if err != nil {
		return nil, err
	}
	g := &Gardener{Root: root, Manifest: m}
	g.adrSeq = g.maxADRNumber()
	return g, nil
}

func (g *Gardener) maxADRNumber() int {
	max := 0
	for _, id := range g.Manifest.IDs() {
		var n int
		if _, err := fmt.Sscanf(id, "adr-%d", &n); err == nil && n > max {
			max = n
		}
	}
	return max
}

// ProposeFromExtraction turns an Extraction into a batch of MemoryPatch
// proposals: one Fact document per gotcha, one Adr per decision (with a
// monotonically increasing ADR number), one Playbook per workflow.
// Commands are not promoted: they produce no patch here, matching
// original_source's separation of raw command capture from curated entity
// promotion.
func (g *Gardener) ProposeFromExtraction(sessionID string, ex Extraction) []MemoryPatch {
	var patches []MemoryPatch

	for i, gotcha := range ex.Gotchas {
		id := fmt.Sprintf("gotcha-%s-%d", shortID(sessionID), i)
		patches = append(patches, MemoryPatch{
			Op:     PatchCreate,
			Reason: "extracted gotcha from session transcript",
			Document: memdoc.Document{
				Frontmatter: memdoc.Frontmatter{
					ID:   id,
					Kind: memdoc.KindFact,
					Tags: []string{"gotcha", string(gotcha.Category)},
					Provenance: memdoc.Provenance{
						Source:    "gardener",
						SessionID: sessionID,
						CreatedAt: time.Now().UTC(),
					},
				},
				Body: fmt.Sprintf("**Issue:** %s\n\n**Resolution:** %s\n", gotcha.Issue, gotcha.Resolution),
			},
		})
	}

	for _, decision := range ex.Decisions {
		g.adrSeq++
		id := fmt.Sprintf("adr-%d", g.adrSeq)
		patches = append(patches, MemoryPatch{
			Op:     PatchCreate,
			Reason: "extracted decision from session transcript",
			Document: memdoc.Document{
				Frontmatter: memdoc.Frontmatter{
					ID:   id,
					Kind: memdoc.KindAdr,
					Tags: []string{"decision"},
					Provenance: memdoc.Provenance{
						Source:    "gardener",
						SessionID: sessionID,
						CreatedAt: time.Now().UTC(),
					},
				},
				Body: fmt.Sprintf("## Decision\n%s\n\n## Context\n%s\n\n## Rationale\n%s\n",
					decision.Decision, decision.Context, decision.Rationale),
			},
		})
	}

	for i, wf := range ex.Workflows {
		id := fmt.Sprintf("playbook-%s-%d", shortID(sessionID), i)
		var steps strings.Builder
		for si, step := range wf.Steps {
			fmt.Fprintf(&steps, "%d. %s", si+1, step.Description)
			if step.Action != "" {
				fmt.Fprintf(&steps, " (`%s`)", step.Action)
			}
			steps.WriteString("\n")
		}
		patches = append(patches, MemoryPatch{
			Op:     PatchCreate,
			Reason: "extracted workflow from session transcript",
			Document: memdoc.Document{
				Frontmatter: memdoc.Frontmatter{
					ID:   id,
					Kind: memdoc.KindPlaybook,
					Tags: []string{"workflow"},
					Provenance: memdoc.Provenance{
						Source:    "gardener",
						SessionID: sessionID,
						CreatedAt: time.Now().UTC(),
					},
				},
				Body: fmt.Sprintf("# %s\n\n%s\n", wf.Title, steps.String()),
			},
		})
	}

	return patches
}

// Apply writes an approved MemoryPatch to disk and indexes it in the
// manifest, the only path by which the garden's tree is ever mutated.
func (g *Gardener) Apply(p MemoryPatch) error {
	path := filepath.Join(g.Root, string(p.Document.Kind)+"s", p.Document.ID+".md")
	if err := memdoc.Write(path, p.Document); err != nil {
		return err
	}
	return g.Manifest.Add(p.Document.ID, relPath(g.Root, path))
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

func shortID(s string) string {
	s = strings.ReplaceAll(s, ":", "")
	s = strings.ReplaceAll(s, "-", "")
	if len(s) > 8 {
		return s[len(s)-8:]
	}
	return s
}
