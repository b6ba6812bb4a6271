package memdoc

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stormlightlabs/grid/internal/agenterr"
)

// Manifest indexes every document under a root directory by ID, enforcing
// the per-manifest ID uniqueness invariant from spec.md §4.9 and giving
// the gardener and memory store a cheap id -> path lookup instead of
// walking the tree on every query.
type Manifest struct {
	mu    sync.RWMutex
	root  string
	byID  map[string]string // id -> relative path
}

// LoadManifest walks root and indexes every .md file it can parse as a
// Document. A file that fails to parse is skipped, not fatal, mirroring
// the event log's "don't let one bad record take down everything else"
// recovery stance.
func LoadManifest(root string) (*Manifest, error) {
	m := &Manifest{root: root, byID: make(map[string]string)}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return m, nil
	}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		d, perr := Load(path)
		if perr != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		m.byID[d.ID] = rel
		return nil
	})
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindIO, "walk memory garden root", err)
	}
	return m, nil
}

// Add registers a new document at relPath under its frontmatter ID,
// rejecting a collision with an existing ID per the uniqueness invariant.
func (m *Manifest) Add(id, relPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byID[id]; ok && existing != relPath {
		return agenterr.New(agenterr.KindValidation, fmt.Sprintf("document id %q already used by %s", id, existing))
	}
	m.byID[id] = relPath
	return nil
}

// Path resolves a document ID to its absolute path.
func (m *Manifest) Path(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel, ok := m.byID[id]
	if !ok {
		return "", false
	}
	return filepath.Join(m.root, rel), true
}

// Remove drops id from the index (the file itself is left to the caller).
func (m *Manifest) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

// IDs returns every indexed document ID.
func (m *Manifest) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byID))
	for id := range m.byID {
		out = append(out, id)
	}
	return out
}
