package agents

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"deep-researcher/internal/config"
	"deep-researcher/internal/llm"
	"deep-researcher/internal/prompts"
	"deep-researcher/pkg/interfaces"
)

// Planner turns a research query into a Plan with one LLM call
type Planner struct {
	provider llm.Provider
	prompts  *prompts.Registry
	cfg      config.LLMConfig
	logger   zerolog.Logger
}

type planResponse struct {
	Objective string   `json:"objective"`
	Topics    []string `json:"topics"`
}

// NewPlanner creates a new planner
func NewPlanner(provider llm.Provider, cfg config.LLMConfig, logger zerolog.Logger) *Planner {
	return &Planner{
		provider: provider,
		prompts:  prompts.Default(),
		cfg:      cfg,
		logger:   logger.With().Str("component", "planner").Logger(),
	}
}

// Plan produces the research plan for query. The call is not retried.
func (p *Planner) Plan(ctx context.Context, query string) (*interfaces.Plan, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, interfaces.ErrEmptyQuery
	}

	system, err := p.prompts.Render(prompts.PlannerSystem, nil)
	if err != nil {
		return nil, err
	}
	user, err := p.prompts.Render(prompts.PlannerUser, prompts.Fields{"Query": query})
	if err != nil {
		return nil, err
	}

	resp, err := p.provider.Complete(ctx, &llm.CompletionRequest{
		Stage: llm.StagePlanner,
		Model: p.cfg.PlannerModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		ResponseFormat: &llm.ResponseFormat{Type: llm.ResponseFormatJSONObject},
		Temperature:    p.cfg.Temperature,
		MaxTokens:      p.cfg.MaxTokens,
	})
	if err != nil {
		return nil, &interfaces.GenerationError{Stage: llm.StagePlanner, Message: "llm call failed", Err: err}
	}

	plan, err := parsePlan(query, resp.Content)
	if err != nil {
		return nil, err
	}

	p.logger.Info().Int("topics", len(plan.Topics)).Msg("research plan created")
	return plan, nil
}

func parsePlan(query, content string) (*interfaces.Plan, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &interfaces.GenerationError{Stage: llm.StagePlanner, Message: "empty response"}
	}

	raw, ok := extractJSONObject(content)
	if !ok {
		return nil, &interfaces.GenerationError{Stage: llm.StagePlanner, Message: "no JSON object in response"}
	}

	var parsed planResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, &interfaces.GenerationError{Stage: llm.StagePlanner, Message: "malformed plan", Err: err}
	}

	topics := make([]string, 0, len(parsed.Topics))
	for _, topic := range parsed.Topics {
		if topic = strings.TrimSpace(topic); topic != "" {
			topics = append(topics, topic)
		}
	}
	if len(topics) == 0 {
		return nil, &interfaces.GenerationError{Stage: llm.StagePlanner, Message: "plan has no topics"}
	}

	return &interfaces.Plan{
		Query:     query,
		Objective: strings.TrimSpace(parsed.Objective),
		Topics:    topics,
		Raw:       content,
	}, nil
}
