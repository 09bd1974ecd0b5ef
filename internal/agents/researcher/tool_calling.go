package researcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"deep-researcher/internal/config"
	"deep-researcher/internal/llm"
	"deep-researcher/internal/prompts"
	"deep-researcher/internal/tools"
	"deep-researcher/pkg/interfaces"
)

const finalReportInstruction = "You have reached the limit of research steps. Write the final Markdown report now, using only the information gathered so far."

// ToolCallingAgent researches a subtask in a chat loop where the model
// calls the registered tools until it answers without tool calls
type ToolCallingAgent struct {
	base
	maxIterations int
}

// NewToolCallingAgent creates a tool calling sub-agent
func NewToolCallingAgent(provider llm.Provider, cfg config.LLMConfig, maxIterations int, logger zerolog.Logger) *ToolCallingAgent {
	if maxIterations <= 0 {
		maxIterations = 8
	}
	return &ToolCallingAgent{
		base: base{
			provider: provider,
			prompts:  prompts.Default(),
			cfg:      cfg,
			logger:   logger.With().Str("component", "subagent").Logger(),
		},
		maxIterations: maxIterations,
	}
}

// Research runs the tool loop for subtask. After maxIterations rounds of
// tool calls one more call without tools forces the report.
func (a *ToolCallingAgent) Research(ctx context.Context, subtask interfaces.Subtask, registry *tools.Registry) (*interfaces.Finding, error) {
	start := time.Now()
	logger := a.logger.With().Str("subtask_id", subtask.ID).Logger()

	system, err := a.prompts.Render(prompts.SubagentSystem, nil)
	if err != nil {
		return nil, err
	}
	task, err := a.prompts.Render(prompts.SubagentTask, prompts.Fields{
		"Query":              subtask.Query,
		"Objective":          subtask.Objective,
		"Topic":              subtask.Topic,
		"SubtaskID":          subtask.ID,
		"SubtaskTitle":       subtask.Title,
		"SubtaskDescription": subtask.Description,
	})
	if err != nil {
		return nil, err
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: task},
	}
	defs := registry.Definitions()

	var (
		usage    interfaces.Usage
		sources  = newSourceSet()
		calls    int
		failures int
		lastErr  string
	)

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		resp, err := a.complete(ctx, subtask, messages, defs)
		if err != nil {
			return nil, err
		}
		usage.Add(resp.Usage.ToUsage())

		if len(resp.ToolCalls) == 0 {
			return a.finish(subtask, resp.Content, sources, usage, calls, failures, lastErr, start)
		}

		for i := range resp.ToolCalls {
			if resp.ToolCalls[i].ID == "" {
				resp.ToolCalls[i].ID = "call_" + uuid.NewString()
			}
		}
		messages = append(messages, resp.AssistantMessage())

		for _, call := range resp.ToolCalls {
			result, err := registry.Execute(ctx, call)
			if err != nil {
				return nil, err
			}
			calls++
			if result.Success {
				sources.add(result.Sources...)
			} else {
				failures++
				lastErr = result.Error
			}
			logger.Debug().
				Str("tool", call.Name).
				Bool("success", result.Success).
				Dur("duration", result.Stats.ExecutionTime).
				Msg("tool executed")

			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    result.Content(),
			})
		}
	}

	logger.Info().Int("iterations", a.maxIterations).Msg("tool iteration limit reached, forcing report")
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: finalReportInstruction})
	resp, err := a.complete(ctx, subtask, messages, nil)
	if err != nil {
		return nil, err
	}
	usage.Add(resp.Usage.ToUsage())
	return a.finish(subtask, resp.Content, sources, usage, calls, failures, lastErr, start)
}

func (a *ToolCallingAgent) finish(subtask interfaces.Subtask, content string, sources *sourceSet, usage interfaces.Usage, calls, failures int, lastErr string, start time.Time) (*interfaces.Finding, error) {
	if calls > 0 && failures == calls {
		return nil, &interfaces.ResearchError{
			SubtaskID: subtask.ID,
			Message:   fmt.Sprintf("all %d tool calls failed, last error: %s", calls, lastErr),
		}
	}

	finding, err := completedFinding(subtask, content, sources, usage)
	if err != nil {
		return nil, err
	}
	finding.Duration = time.Since(start)
	return finding, nil
}
