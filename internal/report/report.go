// Package report renders research reports as Markdown and writes them to
// disk.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deep-researcher/pkg/interfaces"
)

// Render returns the Markdown document for r: the synthesized content, a
// coverage table listing every subtask and a metadata footer
func Render(r *interfaces.Report) string {
	var sb strings.Builder

	sb.WriteString(strings.TrimSpace(r.Content))
	sb.WriteString("\n\n")
	sb.WriteString(Coverage(r))
	sb.WriteString("\n")
	sb.WriteString(footer(r))
	sb.WriteString("\n")
	return sb.String()
}

// Coverage renders the Research Coverage section. It does not depend on the
// synthesized text, so gaps are flagged even if the model omitted them.
func Coverage(r *interfaces.Report) string {
	var sb strings.Builder
	sb.WriteString("## Research Coverage\n\n")

	if r.Incomplete {
		sb.WriteString(fmt.Sprintf("> Coverage is incomplete: %d of %d subtasks could not be researched.\n\n",
			len(r.FailedSubtasks), len(r.Findings)))
	}
	if !r.Synthesized {
		sb.WriteString("> The synthesis step failed; the sub-agent reports are compiled without integration.\n\n")
	}

	sb.WriteString("| ID | Subtask | Status | Notes |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, f := range r.Findings {
		if f == nil {
			continue
		}
		notes := f.Error
		if f.Completed() {
			notes = fmt.Sprintf("%d sources", len(f.Sources))
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", cell(f.SubtaskID), cell(f.Title), f.Status, cell(notes)))
	}
	return sb.String()
}

func footer(r *interfaces.Report) string {
	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	return fmt.Sprintf("---\n_Run %s, generated %s in %s, %d LLM calls, %d tokens._",
		r.RunID,
		generated.UTC().Format(time.RFC3339),
		r.Duration.Round(time.Second),
		r.Usage.Calls,
		r.Usage.TotalTokens,
	)
}

// cell makes s safe for a Markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.Join(strings.Fields(s), " ")
	return s
}

// Compile builds report content directly from the findings. It is used when
// the synthesis call fails.
func Compile(plan *interfaces.Plan, findings []*interfaces.Finding) string {
	var sb strings.Builder

	query := ""
	if plan != nil {
		query = plan.Query
	}
	sb.WriteString(fmt.Sprintf("# Research Report: %s\n\n", query))

	if plan != nil {
		sb.WriteString("## Research Plan\n\n")
		if plan.Objective != "" {
			sb.WriteString(plan.Objective)
			sb.WriteString("\n\n")
		}
		for i, topic := range plan.Topics {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, topic))
		}
		sb.WriteString("\n")
	}

	seen := make(map[string]bool)
	var sources []interfaces.Source

	for _, f := range findings {
		if f == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("## %s\n\n", f.Title))
		if !f.Completed() {
			sb.WriteString(fmt.Sprintf("_Unavailable: %s_\n\n", f.Error))
			continue
		}
		sb.WriteString(strings.TrimSpace(f.Content))
		sb.WriteString("\n\n")

		for _, src := range f.Sources {
			if src.URL == "" || seen[src.URL] {
				continue
			}
			seen[src.URL] = true
			sources = append(sources, src)
		}
	}

	if len(sources) > 0 {
		sb.WriteString("## Bibliography / Sources\n\n")
		for _, src := range sources {
			title := src.Title
			if title == "" {
				title = src.URL
			}
			sb.WriteString(fmt.Sprintf("- [%s](%s)\n", title, src.URL))
		}
	}

	return strings.TrimSpace(sb.String())
}

// WriteFile renders r and atomically replaces path with it
func WriteFile(path string, r *interfaces.Report) error {
	if path == "" {
		return fmt.Errorf("output path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".research-*.md")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(Render(r)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set report permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}
