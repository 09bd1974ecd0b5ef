// Package researcher implements the sub-agents that research a single
// subtask and report a Finding.
package researcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"deep-researcher/internal/config"
	"deep-researcher/internal/llm"
	"deep-researcher/internal/prompts"
	"deep-researcher/internal/tools"
	"deep-researcher/pkg/interfaces"
)

// Sub-agent modes
const (
	ModeToolCalling     = "tool_calling"
	ModeSearchSummarize = "search_summarize"
)

// Researcher researches one subtask and returns its Finding
type Researcher interface {
	Research(ctx context.Context, subtask interfaces.Subtask, registry *tools.Registry) (*interfaces.Finding, error)
}

// New creates the sub-agent selected by cfg.Coordinator.SubagentMode
func New(cfg *config.ResearcherConfig, provider llm.Provider, logger zerolog.Logger) (Researcher, error) {
	switch cfg.Coordinator.SubagentMode {
	case ModeToolCalling, "":
		return NewToolCallingAgent(provider, cfg.LLM, cfg.Coordinator.MaxToolIterations, logger), nil
	case ModeSearchSummarize:
		return NewSearchSummarizeAgent(provider, cfg.LLM, cfg.Coordinator.ScrapeTopN, logger), nil
	default:
		return nil, &interfaces.ConfigurationError{
			Field:   "coordinator.subagent_mode",
			Message: fmt.Sprintf("unsupported sub-agent mode: %s", cfg.Coordinator.SubagentMode),
		}
	}
}

// base holds what both sub-agent variants share
type base struct {
	provider llm.Provider
	prompts  *prompts.Registry
	cfg      config.LLMConfig
	logger   zerolog.Logger
}

func (b *base) complete(ctx context.Context, subtask interfaces.Subtask, messages []llm.Message, defs []llm.ToolDef) (*llm.CompletionResponse, error) {
	resp, err := b.provider.Complete(ctx, &llm.CompletionRequest{
		Stage:       llm.StageSubagent,
		Subject:     subtask.ID,
		Model:       b.cfg.SubagentModel,
		Messages:    messages,
		Tools:       defs,
		Temperature: b.cfg.Temperature,
		MaxTokens:   b.cfg.MaxTokens,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &interfaces.GenerationError{
			Stage:   llm.StageSubagent,
			Message: fmt.Sprintf("llm call failed for %s", subtask.ID),
			Err:     err,
		}
	}
	return resp, nil
}

// completedFinding builds the finding for a report, failing on empty content
func completedFinding(subtask interfaces.Subtask, content string, sources *sourceSet, usage interfaces.Usage) (*interfaces.Finding, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &interfaces.GenerationError{
			Stage:   llm.StageSubagent,
			Message: fmt.Sprintf("empty report for %s", subtask.ID),
		}
	}
	return &interfaces.Finding{
		SubtaskID: subtask.ID,
		Title:     subtask.Title,
		Status:    interfaces.FindingCompleted,
		Content:   content,
		Sources:   sources.list(),
		Usage:     usage,
	}, nil
}

// sourceSet collects sources in first-seen order without duplicates
type sourceSet struct {
	seen    map[string]int
	sources []interfaces.Source
}

func newSourceSet() *sourceSet {
	return &sourceSet{seen: make(map[string]int)}
}

func (s *sourceSet) add(sources ...interfaces.Source) {
	for _, src := range sources {
		key := strings.TrimRight(strings.TrimSpace(src.URL), "/")
		if key == "" {
			continue
		}
		if i, ok := s.seen[key]; ok {
			if s.sources[i].Title == "" {
				s.sources[i].Title = src.Title
			}
			continue
		}
		s.seen[key] = len(s.sources)
		s.sources = append(s.sources, src)
	}
}

func (s *sourceSet) list() []interfaces.Source {
	return append([]interfaces.Source(nil), s.sources...)
}
