package gardener

import (
	"strings"

	"github.com/stormlightlabs/grid/internal/memdoc"
)

// ViolationKind is the closed set of hygiene problems the gardener checks
// for, grounded on original_source's gardener/mod.rs hygiene pass.
type ViolationKind string

const (
	ViolationDuplicate     ViolationKind = "duplicate"
	ViolationEmptyBody     ViolationKind = "empty-body"
	ViolationMissingTags   ViolationKind = "missing-tags"
	ViolationOrphanedFact  ViolationKind = "orphaned-fact" // a Fact whose ID no other document's body mentions
)

// HygieneViolation flags one document needing attention.
type HygieneViolation struct {
	DocumentID string
	Kind       ViolationKind
	Detail     string
}

// Hygiene walks every document under the garden root and reports
// violations: exact-content duplicates, empty bodies, untagged documents, and
// facts no other document links to by ID.
func (g *Gardener) Hygiene() ([]HygieneViolation, error) {
	docs, err := g.allDocuments()
	if err != nil {
		return nil, err
	}

	var violations []HygieneViolation
	seenBodies := make(map[string]string) // normalized body -> first doc ID
	referenced := make(map[string]bool)

	for _, d := range docs {
		for _, other := range docs {
			if other.ID != d.ID && strings.Contains(other.Body, d.ID) {
				referenced[d.ID] = true
			}
		}
	}

	for _, d := range docs {
		body := strings.TrimSpace(d.Body)
		if body == "" {
			violations = append(violations, HygieneViolation{DocumentID: d.ID, Kind: ViolationEmptyBody})
			continue
		}

		if first, ok := seenBodies[body]; ok {
			violations = append(violations, HygieneViolation{
				DocumentID: d.ID,
				Kind:       ViolationDuplicate,
				Detail:     "duplicate of " + first,
			})
		} else {
			seenBodies[body] = d.ID
		}

		if len(d.Tags) == 0 {
			violations = append(violations, HygieneViolation{DocumentID: d.ID, Kind: ViolationMissingTags})
		}

		if d.Kind == memdoc.KindFact && !referenced[d.ID] {
			violations = append(violations, HygieneViolation{
				DocumentID: d.ID,
				Kind:       ViolationOrphanedFact,
				Detail:     "no other document cites this fact",
			})
		}
	}

	return violations, nil
}

func (g *Gardener) allDocuments() ([]memdoc.Document, error) {
	var docs []memdoc.Document
	for _, id := range g.Manifest.IDs() {
		path, ok := g.Manifest.Path(id)
		if !ok {
			continue
		}
		d, err := memdoc.Load(path)
		if err != nil {
			continue
		}
		docs = append(docs, d)
	}
	return docs, nil
}
