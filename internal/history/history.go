/*
Copyright © 2025 The laszoo Authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package history drives the shared store's history repository: a plain
// git working tree at <root>/history (spec.md §4.7), staged and committed
// after every reconciliation pass. Commit messages come from an optional
// local LLM endpoint, falling back to a deterministic diff-stat summary
// when the endpoint is unreachable or misconfigured.
package history

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/laszoo/laszoo/internal/lzerr"
)

// attribution is appended to every generated commit message, mirroring the
// original project's signature line.
const attributionAI = "\n\n🦎 laszoo: AI-generated commit message"
const attributionFallback = "\n\n🦎 laszoo: auto-generated commit message"

// Manager drives a git working tree via the system git binary, the same
// approach templates/common/git takes for remote checkouts: no cgo, no
// bundled libgit2, just exec.CommandContext against whatever git is on
// PATH.
type Manager struct {
	RepoPath string
}

// New returns a Manager rooted at repoPath.
func New(repoPath string) *Manager {
	return &Manager{RepoPath: repoPath}
}

func (m *Manager) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.RepoPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", lzerr.History(fmt.Sprintf("git %s failed: %s", strings.Join(args, " "), stderr.String()), err)
	}
	return stdout.String(), nil
}

// Init creates a git repository at RepoPath if one does not already exist.
func (m *Manager) Init(ctx context.Context) error {
	if _, err := m.run(ctx, "rev-parse", "--git-dir"); err == nil {
		return nil
	}
	_, err := m.run(ctx, "init")
	return err
}

// StageAll stages every change in the working tree, matching
// GitManager::stage_all.
func (m *Manager) StageAll(ctx context.Context) error {
	_, err := m.run(ctx, "add", "-A")
	return err
}

// Status returns the porcelain status lines of the working tree.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	out, err := m.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

// HasChanges reports whether the working tree has any uncommitted changes,
// staged or not.
func (m *Manager) HasChanges(ctx context.Context) (bool, error) {
	lines, err := m.Status(ctx)
	if err != nil {
		return false, err
	}
	return len(lines) > 0, nil
}

// StagedDiff returns the unified diff of everything currently staged.
func (m *Manager) StagedDiff(ctx context.Context) (string, error) {
	return m.run(ctx, "diff", "--cached")
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// CommitMessageSource decides how a commit message was produced, for
// callers that want to surface it (e.g. the CLI printing "used AI" vs
// "used fallback").
type CommitMessageSource int

const (
	SourceAI CommitMessageSource = iota
	SourceFallback
	SourceUserSupplied
)

// CommitWithAI stages nothing itself (callers call StageAll first),
// generates a commit message via the configured LLM endpoint with a
// deterministic fallback, and commits. It mirrors
// GitManager::commit_with_ai: a no-op diff is an error, not a silent
// success, since an empty commit almost always means the caller forgot to
// stage changes.
func (m *Manager) CommitWithAI(ctx context.Context, gen Generator, userContext string) (string, CommitMessageSource, error) {
	diff, err := m.StagedDiff(ctx)
	if err != nil {
		return "", 0, err
	}
	if strings.TrimSpace(diff) == "" {
		return "", 0, lzerr.History("no staged changes to commit", nil)
	}

	message, source, err := gen.Generate(ctx, diff, userContext)
	if err != nil {
		message = GenericCommitMessage(diff, userContext)
		source = SourceFallback
	}

	if _, err := m.run(ctx, "commit", "--allow-empty-message", "-m", message); err != nil {
		return "", 0, err
	}
	hash, err := m.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(hash), source, nil
}
