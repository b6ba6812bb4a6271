// Package memdoc implements the memory garden's document model: markdown
// files with YAML frontmatter, each carrying an id, kind, tags, and
// provenance/verification metadata. Grounded on the teacher's
// internal/checkpoint.Store write-temp-rename-per-key persistence pattern
// and internal/memory's KV-with-metadata shape, generalized to the spec's
// Core/Fact/Adr/Playbook/Recap document kinds and their frontmatter
// contract (spec.md §4.9).
package memdoc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stormlightlabs/grid/internal/agenterr"
)

// Kind is the closed set of document kinds.
type Kind string

const (
	KindCore     Kind = "core"
	KindFact     Kind = "fact"
	KindAdr      Kind = "adr"
	KindPlaybook Kind = "playbook"
	KindRecap    Kind = "recap"
)

// Provenance records where a document's content came from.
type Provenance struct {
	Source    string    `yaml:"source"`               // "session" | "human" | "gardener"
	SessionID string    `yaml:"session_id,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
}

// VerificationStatus is whether a document's claims have been checked
// against the current state of the workspace since they were written.
type VerificationStatus string

const (
	Unverified VerificationStatus = "unverified"
	Verified   VerificationStatus = "verified"
	Stale      VerificationStatus = "stale"
)

// Verification tracks a document's staleness, consulted by the gardener's
// Drift sub-operation.
type Verification struct {
	Status       VerificationStatus `yaml:"status"`
	LastVerified time.Time          `yaml:"last_verified,omitempty"`
}

// Frontmatter is the YAML header every document carries. Id and Kind are
// required; Tags, Provenance.Source, and Verification.Status default when
// absent, per spec.md §4.9.
type Frontmatter struct {
	ID           string       `yaml:"id"`
	Kind         Kind         `yaml:"kind"`
	Tags         []string     `yaml:"tags,omitempty"`
	Provenance   Provenance   `yaml:"provenance"`
	Verification Verification `yaml:"verification"`
}

// Document is a parsed memory document: its frontmatter plus markdown body.
type Document struct {
	Frontmatter
	Body string
	Path string
}

const frontmatterDelim = "---"

// Parse splits raw content into frontmatter and body and validates the
// required fields, applying defaults for the optional ones.
func Parse(raw string) (Document, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[0]) != frontmatterDelim {
		return Document{}, agenterr.New(agenterr.KindValidation, "document missing frontmatter delimiter")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelim {
			end = i
			break
		}
	}
	if end == -1 {
		return Document{}, agenterr.New(agenterr.KindValidation, "document frontmatter never closed")
	}

	yamlBlock := strings.Join(lines[1:end], "\n")
	body := strings.Join(lines[end+1:], "\n")

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		return Document{}, agenterr.Wrap(agenterr.KindParse, "parse document frontmatter", err)
	}

	if err := validate(&fm); err != nil {
		return Document{}, err
	}

	return Document{Frontmatter: fm, Body: strings.TrimLeft(body, "\n")}, nil
}

func validate(fm *Frontmatter) error {
	if fm.ID == "" {
		return agenterr.New(agenterr.KindValidation, "document missing required field: id")
	}
	switch fm.Kind {
	case KindCore, KindFact, KindAdr, KindPlaybook, KindRecap:
	case "":
		return agenterr.New(agenterr.KindValidation, "document missing required field: kind")
	default:
		return agenterr.New(agenterr.KindValidation, fmt.Sprintf("document has unknown kind %q", fm.Kind))
	}
	if fm.Tags == nil {
		fm.Tags = []string{}
	}
	if fm.Provenance.Source == "" {
		fm.Provenance.Source = "session"
	}
	if fm.Provenance.CreatedAt.IsZero() {
		fm.Provenance.CreatedAt = time.Now().UTC()
	}
	if fm.Verification.Status == "" {
		fm.Verification.Status = Unverified
	}
	return nil
}

// Render serializes a Document back to its on-disk markdown+frontmatter
// form.
func Render(d Document) (string, error) {
	yamlBlock, err := yaml.Marshal(d.Frontmatter)
	if err != nil {
		return "", agenterr.Wrap(agenterr.KindParse, "marshal document frontmatter", err)
	}
	var sb strings.Builder
	sb.WriteString(frontmatterDelim)
	sb.WriteString("\n")
	sb.Write(yamlBlock)
	sb.WriteString(frontmatterDelim)
	sb.WriteString("\n")
	sb.WriteString(d.Body)
	return sb.String(), nil
}

// Write renders and atomically persists d to path, via write-temp-rename
// so a crash mid-write never corrupts an existing document - the same
// pattern the teacher's checkpoint.Store.flush uses.
func Write(path string, d Document) error {
	content, err := Render(d)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return agenterr.Wrap(agenterr.KindIO, "create document directory", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return agenterr.Wrap(agenterr.KindIO, "write document temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return agenterr.Wrap(agenterr.KindIO, "rename document into place", err)
	}
	return nil
}

// Load reads and parses a document from disk.
func Load(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Document{}, agenterr.Wrap(agenterr.KindIO, "read document", err)
	}
	d, err := Parse(string(b))
	if err != nil {
		return Document{}, err
	}
	d.Path = path
	return d, nil
}
