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

package history_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laszoo/laszoo/internal/history"
)

// stubGenerator lets tests control whether the "AI" path succeeds.
type stubGenerator struct {
	message string
	err     error
}

func (s stubGenerator) Generate(_ context.Context, _, _ string) (string, history.CommitMessageSource, error) {
	if s.err != nil {
		return "", 0, s.err
	}
	return s.message, history.SourceAI, nil
}

func requireGitBinary(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func newTestRepo(t *testing.T) string {
	t.Helper()
	requireGitBinary(t)
	dir := t.TempDir()
	ctx := context.Background()
	require.NoError(t, history.New(dir).Init(ctx))
	cmd := exec.CommandContext(ctx, "git", "config", "user.email", "test@example.com")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())
	cmd = exec.CommandContext(ctx, "git", "config", "user.name", "Test")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())
	return dir
}

func TestManager_InitIsIdempotent(t *testing.T) {
	dir := newTestRepo(t)
	require.NoError(t, history.New(dir).Init(context.Background()))
}

func TestManager_StageAllAndCommitWithAI(t *testing.T) {
	dir := newTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644))

	m := history.New(dir)
	ctx := context.Background()
	require.NoError(t, m.StageAll(ctx))

	hash, source, err := m.CommitWithAI(ctx, stubGenerator{message: "feat: add a.txt"}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.Equal(t, history.SourceAI, source)
}

func TestManager_CommitWithAIFallsBackOnGeneratorError(t *testing.T) {
	dir := newTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644))

	m := history.New(dir)
	ctx := context.Background()
	require.NoError(t, m.StageAll(ctx))

	hash, source, err := m.CommitWithAI(ctx, stubGenerator{err: assertAnError{}}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.Equal(t, history.SourceFallback, source)
}

func TestManager_CommitWithAIRejectsEmptyDiff(t *testing.T) {
	dir := newTestRepo(t)
	m := history.New(dir)
	ctx := context.Background()

	_, _, err := m.CommitWithAI(ctx, stubGenerator{message: "unused"}, "")
	require.Error(t, err)
}

func TestGenericCommitMessage_SummarizesAddedFile(t *testing.T) {
	diff := "diff --git a/new.txt b/new.txt\nnew file mode 100644\nindex 0000000..e69de29\n--- /dev/null\n+++ b/new.txt\n"
	msg := history.GenericCommitMessage(diff, "")
	assert.Contains(t, msg, "Add new file")
}

func TestGenericCommitMessage_PrefersUserContext(t *testing.T) {
	msg := history.GenericCommitMessage("diff --git a/x b/x\n", "sync: converge web group")
	assert.Contains(t, msg, "sync: converge web group")
}

type assertAnError struct{}

func (assertAnError) Error() string { return "generator unavailable" }
