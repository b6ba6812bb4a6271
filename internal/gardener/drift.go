package gardener

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/stormlightlabs/grid/internal/agenterr"
	"github.com/stormlightlabs/grid/internal/memdoc"
)

// StalenessSeverity is how badly a document has drifted from the code it
// describes, original_source's StalenessSeverity.
type StalenessSeverity string

const (
	SeverityMinor    StalenessSeverity = "minor"
	SeverityMajor    StalenessSeverity = "major"
	SeverityCritical StalenessSeverity = "critical" // a referenced file no longer exists
)

// StalenessInfo flags one document whose referenced files changed since
// it was last verified, original_source's StalenessInfo.
type StalenessInfo struct {
	DocumentID    string
	Path          string
	LastVerified  string
	ChangedFiles  []string
	Severity      StalenessSeverity
}

// DriftResult is the outcome of a full garden drift check,
// original_source's DriftResult.
type DriftResult struct {
	StaleDocs     []StalenessInfo
	CurrentCommit string
}

// CheckDrift walks every Verified document with a recorded LastVerified
// time and flags it stale if any file it references (by path substring
// appearing in its body) changed in a commit since that time. Grounded on
// original_source's gardener/drift.rs DriftDetector, adapted from git2's
// revwalk+tree-diff to invoking the git CLI directly via os/exec: no pack
// repo vendors a Go git-plumbing library, and shelling out to git mirrors
// the teacher's own pattern of invoking external binaries from
// internal/executor rather than linking a VCS library.
func (g *Gardener) CheckDrift(ctx context.Context, repoPath string) (DriftResult, error) {
	head, err := g.gitHead(ctx, repoPath)
	if err != nil {
		return DriftResult{}, err
	}

	docs, err := g.allDocuments()
	if err != nil {
		return DriftResult{}, err
	}

	result := DriftResult{CurrentCommit: head}
	for _, d := range docs {
		if d.Verification.Status != memdoc.Verified {
			continue
		}
		referenced := extractReferencedPaths(d.Body)
		if len(referenced) == 0 {
			continue
		}

		changed, err := g.gitChangedFilesSince(ctx, repoPath, d.Verification.LastVerified)
		if err != nil {
			continue
		}

		var docChanged []string
		severity := SeverityMinor
		for _, cf := range changed {
			if !pathReferenced(referenced, cf) {
				continue
			}
			docChanged = append(docChanged, cf)
			if !fileExists(repoPath, cf) {
				severity = SeverityCritical
			} else if severity != SeverityCritical {
				severity = SeverityMajor
			}
		}

		if len(docChanged) > 0 {
			result.StaleDocs = append(result.StaleDocs, StalenessInfo{
				DocumentID:   d.ID,
				Path:         d.Path,
				ChangedFiles: docChanged,
				Severity:     severity,
			})
		}
	}

	return result, nil
}

func (g *Gardener) gitHead(ctx context.Context, repoPath string) (string, error) {
	out, err := exec.CommandContext(ctx, "git", "-C", repoPath, "rev-parse", "HEAD").Output()
	if err != nil {
		return "", agenterr.Wrap(agenterr.KindIO, "resolve git HEAD", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *Gardener) gitChangedFilesSince(ctx context.Context, repoPath string, since time.Time) ([]string, error) {
	if since.IsZero() {
		return nil, nil
	}
	out, err := exec.CommandContext(ctx, "git", "-C", repoPath, "log", "--since", since.UTC().Format(time.RFC3339), "--name-only", "--pretty=format:").Output()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindIO, "list changed files", err)
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// extractReferencedPaths pulls filesystem-looking paths out of a
// document's body (backtick-quoted or bare tokens containing a path
// separator and a dot), original_source's extract_referenced_paths.
func extractReferencedPaths(body string) []string {
	var paths []string
	for _, tok := range strings.Fields(body) {
		tok = strings.Trim(tok, "`*_,.()")
		if strings.Contains(tok, "/") && strings.Contains(filepath.Base(tok), ".") {
			paths = append(paths, tok)
		}
	}
	return paths
}

func pathReferenced(referenced []string, changed string) bool {
	for _, r := range referenced {
		if r == changed || strings.HasSuffix(changed, r) {
			return true
		}
	}
	return false
}

func fileExists(repoPath, relPath string) bool {
	_, err := os.Stat(filepath.Join(repoPath, relPath))
	return err == nil
}
