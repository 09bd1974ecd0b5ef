// Package synthesis merges sub-agent findings into the final report text.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"deep-researcher/internal/config"
	"deep-researcher/internal/llm"
	"deep-researcher/internal/prompts"
	"deep-researcher/pkg/interfaces"
)

// Agent writes the final report from all findings with one LLM call
type Agent struct {
	provider llm.Provider
	prompts  *prompts.Registry
	cfg      config.LLMConfig
	logger   zerolog.Logger
}

type subtaskSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// New creates a synthesis agent
func New(provider llm.Provider, cfg config.LLMConfig, logger zerolog.Logger) *Agent {
	return &Agent{
		provider: provider,
		prompts:  prompts.Default(),
		cfg:      cfg,
		logger:   logger.With().Str("component", "synthesis").Logger(),
	}
}

// Synthesize returns the report content. Unavailable findings are passed to
// the model as explicit markers so it can state the gaps.
func (a *Agent) Synthesize(ctx context.Context, plan *interfaces.Plan, findings []*interfaces.Finding) (string, interfaces.Usage, error) {
	if plan == nil {
		return "", interfaces.Usage{}, &interfaces.GenerationError{Stage: llm.StageSynthesis, Message: "no plan"}
	}

	subtasks, err := buildSubtasksJSON(findings)
	if err != nil {
		return "", interfaces.Usage{}, &interfaces.GenerationError{Stage: llm.StageSynthesis, Message: "failed to encode subtasks", Err: err}
	}

	system, err := a.prompts.Render(prompts.SynthesisSystem, nil)
	if err != nil {
		return "", interfaces.Usage{}, err
	}
	user, err := a.prompts.Render(prompts.SynthesisUser, prompts.Fields{
		"Query":      plan.Query,
		"Objective":  plan.Objective,
		"Topics":     plan.Topics,
		"Subtasks":   subtasks,
		"Findings":   BuildFindings(findings),
		"Incomplete": hasUnavailable(findings),
	})
	if err != nil {
		return "", interfaces.Usage{}, err
	}

	resp, err := a.provider.Complete(ctx, &llm.CompletionRequest{
		Stage: llm.StageSynthesis,
		Model: a.cfg.SynthesisModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		return "", interfaces.Usage{}, &interfaces.GenerationError{Stage: llm.StageSynthesis, Message: "llm call failed", Err: err}
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", resp.Usage.ToUsage(), &interfaces.GenerationError{Stage: llm.StageSynthesis, Message: "empty report"}
	}

	a.logger.Info().Int("findings", len(findings)).Int("total_tokens", resp.Usage.TotalTokens).Msg("report synthesized")
	return content, resp.Usage.ToUsage(), nil
}

// BuildFindings renders every finding as a report section. Unavailable
// findings become an UNAVAILABLE marker carrying the failure reason.
func BuildFindings(findings []*interfaces.Finding) string {
	var sb strings.Builder
	for _, f := range findings {
		if f == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("===== BEGIN SUBTASK %s: %s =====\n", f.SubtaskID, f.Title))
		if f.Completed() {
			sb.WriteString(strings.TrimSpace(f.Content))
			sb.WriteString("\n")
			if len(f.Sources) > 0 {
				sb.WriteString("\nSources consulted:\n")
				for _, src := range f.Sources {
					title := src.Title
					if title == "" {
						title = src.URL
					}
					sb.WriteString(fmt.Sprintf("- [%s](%s)\n", title, src.URL))
				}
			}
		} else {
			sb.WriteString(fmt.Sprintf("UNAVAILABLE: research for this subtask failed (%s). No findings exist for it.\n", reason(f)))
		}
		sb.WriteString(fmt.Sprintf("===== END SUBTASK %s =====\n\n", f.SubtaskID))
	}
	return strings.TrimSpace(sb.String())
}

func buildSubtasksJSON(findings []*interfaces.Finding) (string, error) {
	summaries := make([]subtaskSummary, 0, len(findings))
	for _, f := range findings {
		if f == nil {
			continue
		}
		summaries = append(summaries, subtaskSummary{ID: f.SubtaskID, Title: f.Title, Status: string(f.Status)})
	}
	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func hasUnavailable(findings []*interfaces.Finding) bool {
	for _, f := range findings {
		if f != nil && !f.Completed() {
			return true
		}
	}
	return false
}

func reason(f *interfaces.Finding) string {
	if f.Error == "" {
		return "unknown error"
	}
	return f.Error
}
