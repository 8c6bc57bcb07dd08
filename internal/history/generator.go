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

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/laszoo/laszoo/internal/lzerr"
)

const maxDiffLength = 4000

// Generator produces a commit message from a staged diff. OllamaGenerator
// is the production implementation; tests can supply a stub.
type Generator interface {
	Generate(ctx context.Context, diff, userContext string) (string, CommitMessageSource, error)
}

// OllamaGenerator asks a local Ollama instance for a commit message,
// matching GitManager::generate_commit_message's prompt and endpoint.
type OllamaGenerator struct {
	Endpoint string
	Model    string
	Client   *http.Client
}

// NewOllamaGenerator returns a generator against endpoint/model, using a
// bounded-timeout client so a hung local model doesn't stall reconciliation.
func NewOllamaGenerator(endpoint, model string) *OllamaGenerator {
	return &OllamaGenerator{
		Endpoint: endpoint,
		Model:    model,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// Generate posts a prompt built from diff and userContext to the Ollama
// /api/generate endpoint and cleans up the response: trimming whitespace,
// stripping any <think>...</think> reasoning block, and appending the
// project's attribution line.
func (g *OllamaGenerator) Generate(ctx context.Context, diff, userContext string) (string, CommitMessageSource, error) {
	truncated := diff
	if len(truncated) > maxDiffLength {
		truncated = truncated[:maxDiffLength] + "... (truncated)"
	}

	prompt := fmt.Sprintf(
		"Generate a concise git commit message for the following changes. "+
			"Follow conventional commit format (type: description). "+
			"Include a brief summary line (50 chars or less) and optional body. "+
			"Context: %s\n\nChanges:\n%s\n\nCommit message:",
		userContext, truncated,
	)

	body, err := json.Marshal(ollamaRequest{Model: g.Model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", 0, lzerr.Serialization("ollama request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(g.Endpoint, "/")+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", 0, lzerr.HTTP("building ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", 0, lzerr.HTTP("calling ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, lzerr.HTTP(fmt.Sprintf("ollama returned status %d", resp.StatusCode), nil)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, lzerr.Serialization("ollama response", err)
	}

	message := stripThinkTags(strings.TrimSpace(out.Response))
	return message + attributionAI, SourceAI, nil
}

// stripThinkTags removes a single <think>...</think> block some local
// reasoning models prepend to their answer, per the original response
// cleanup.
func stripThinkTags(s string) string {
	start := strings.Index(s, "<think>")
	if start < 0 {
		return s
	}
	end := strings.Index(s, "</think>")
	if end < 0 {
		return s
	}
	return strings.TrimSpace(s[:start] + s[end+len("</think>"):])
}

// GenericCommitMessage builds a deterministic commit message from a
// unified diff's file/line statistics, used whenever the LLM endpoint is
// unavailable (GitManager::generate_generic_commit_message).
func GenericCommitMessage(diff, userContext string) string {
	var addedFiles, modifiedFiles, deletedFiles int

	pending, classified := false, false
	flush := func() {
		if pending && !classified {
			modifiedFiles++
		}
	}

	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git"):
			flush()
			pending, classified = true, false
		case strings.HasPrefix(line, "--- /dev/null"):
			addedFiles++
			classified = true
		case strings.HasPrefix(line, "+++ /dev/null"):
			deletedFiles++
			classified = true
		}
	}
	flush()

	addedLines, deletedLines := countLineChanges(diff)

	var message string
	switch {
	case userContext != "":
		message = userContext
	case addedFiles > 0 && modifiedFiles == 0 && deletedFiles == 0:
		message = pluralMessage(addedFiles, "feat: Add new file", "feat: Add new files")
	case deletedFiles > 0 && addedFiles == 0 && modifiedFiles == 0:
		message = pluralMessage(deletedFiles, "chore: Remove file", "chore: Remove files")
	case modifiedFiles > 0 && addedFiles == 0 && deletedFiles == 0:
		message = pluralMessage(modifiedFiles, "feat: Update configuration", "feat: Update configurations")
	default:
		var parts []string
		if addedFiles > 0 {
			parts = append(parts, fmt.Sprintf("%d added", addedFiles))
		}
		if modifiedFiles > 0 {
			parts = append(parts, fmt.Sprintf("%d modified", modifiedFiles))
		}
		if deletedFiles > 0 {
			parts = append(parts, fmt.Sprintf("%d deleted", deletedFiles))
		}
		if len(parts) == 0 {
			message = "feat: Update files"
		} else {
			message = fmt.Sprintf("feat: Update files (%s)", strings.Join(parts, ", "))
		}
	}

	if addedLines+deletedLines > 5 {
		var stats []string
		if addedLines > 0 {
			stats = append(stats, fmt.Sprintf("+%d", addedLines))
		}
		if deletedLines > 0 {
			stats = append(stats, fmt.Sprintf("-%d", deletedLines))
		}
		message = fmt.Sprintf("%s\n\n(%s lines changed)", message, strings.Join(stats, "/"))
	}

	return message + attributionFallback
}

func pluralMessage(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// countLineChanges reconstructs each hunk's old and new text from a
// unified diff and runs it through diffmatchpatch, rather than counting
// raw +/- prefixed lines, so a line that merely moved within a hunk isn't
// double-counted as both an addition and a deletion.
func countLineChanges(diff string) (added, deleted int) {
	var oldText, newText strings.Builder
	dmp := diffmatchpatch.New()

	flush := func() {
		if oldText.Len() == 0 && newText.Len() == 0 {
			return
		}
		chars1, chars2, lineArray := dmp.DiffLinesToChars(oldText.String(), newText.String())
		diffs := dmp.DiffMain(chars1, chars2, false)
		diffs = dmp.DiffCharsToLines(diffs, lineArray)
		for _, d := range diffs {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				added += countLines(d.Text)
			case diffmatchpatch.DiffDelete:
				deleted += countLines(d.Text)
			}
		}
		oldText.Reset()
		newText.Reset()
	}

	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git"):
			flush()
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			// file headers, not content
		case strings.HasPrefix(line, "+"):
			newText.WriteString(line[1:])
			newText.WriteByte('\n')
		case strings.HasPrefix(line, "-"):
			oldText.WriteString(line[1:])
			oldText.WriteByte('\n')
		}
	}
	flush()
	return added, deleted
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n")
}
