// Package coordinator drives a research run: plan, split, fan out one
// sub-agent per subtask, join and synthesize the report.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"deep-researcher/internal/agents"
	"deep-researcher/internal/agents/researcher"
	"deep-researcher/internal/agents/synthesis"
	"deep-researcher/internal/config"
	"deep-researcher/internal/llm"
	"deep-researcher/internal/metrics"
	"deep-researcher/internal/report"
	"deep-researcher/internal/scraper"
	"deep-researcher/internal/tools"
	"deep-researcher/pkg/interfaces"
)

// Dependencies are the pipeline stages a Coordinator drives
type Dependencies struct {
	Planner     interfaces.Planner
	Splitter    interfaces.Splitter
	Researcher  researcher.Researcher
	Tools       *tools.Registry
	Synthesizer interfaces.Synthesizer
	// Archive is optional
	Archive interfaces.Archive
}

// Coordinator runs research queries end to end
type Coordinator struct {
	planner     interfaces.Planner
	splitter    interfaces.Splitter
	synthesizer interfaces.Synthesizer
	archive     interfaces.Archive
	engine      *ExecutionEngine
	logger      zerolog.Logger
}

// New creates a coordinator from explicit dependencies
func New(cfg config.CoordinatorConfig, deps Dependencies, logger zerolog.Logger) (*Coordinator, error) {
	switch {
	case deps.Planner == nil:
		return nil, fmt.Errorf("coordinator requires a planner")
	case deps.Splitter == nil:
		return nil, fmt.Errorf("coordinator requires a splitter")
	case deps.Researcher == nil:
		return nil, fmt.Errorf("coordinator requires a researcher")
	case deps.Synthesizer == nil:
		return nil, fmt.Errorf("coordinator requires a synthesizer")
	}
	if deps.Tools == nil {
		deps.Tools = tools.NewRegistry()
	}

	logger = logger.With().Str("component", "coordinator").Logger()
	return &Coordinator{
		planner:     deps.Planner,
		splitter:    deps.Splitter,
		synthesizer: deps.Synthesizer,
		archive:     deps.Archive,
		engine:      NewExecutionEngine(deps.Researcher, deps.Tools, cfg.MaxConcurrency, cfg.SubtaskTimeout, logger),
		logger:      logger,
	}, nil
}

// Build wires the default pipeline: LLM planner and splitter, the
// configured sub-agent with the web tools and the synthesis agent. provider
// is wrapped for metrics and usage accounting. archive may be nil.
func Build(cfg *config.ResearcherConfig, provider llm.Provider, backend scraper.Backend, archive interfaces.Archive, logger zerolog.Logger) (*Coordinator, error) {
	provider = llm.NewInstrumented(provider, logger)

	sub, err := researcher.New(cfg, provider, logger)
	if err != nil {
		return nil, err
	}

	return New(cfg.Coordinator, Dependencies{
		Planner:     agents.NewPlanner(provider, cfg.LLM, logger),
		Splitter:    agents.NewSplitter(provider, cfg.LLM, logger),
		Researcher:  sub,
		Tools:       tools.NewResearchRegistry(backend, archive, cfg.Scraper.SearchLimit, cfg.Archive.TopK),
		Synthesizer: synthesis.New(provider, cfg.LLM, logger),
		Archive:     archive,
	}, logger)
}

// PlanOnly runs the planner and splitter without dispatching sub-agents
func (c *Coordinator) PlanOnly(ctx context.Context, query string) (*interfaces.Plan, []interfaces.Subtask, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil, interfaces.ErrEmptyQuery
	}

	plan, err := c.planner.Plan(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("planning failed: %w", err)
	}
	subtasks, err := c.splitter.Split(ctx, plan)
	if err != nil {
		return nil, nil, fmt.Errorf("splitting failed: %w", err)
	}
	return plan, subtasks, nil
}

// LastFanOut returns the statistics of the most recently finished fan-out
func (c *Coordinator) LastFanOut() EngineStats {
	return c.engine.Stats()
}

// Run researches query and returns the report. Planner and splitter
// failures abort the run; sub-agent failures are recorded as unavailable
// findings. A failed synthesis call degrades to a compiled report. If ctx
// is cancelled Run returns the context error after all workers stopped.
func (c *Coordinator) Run(ctx context.Context, query string) (*interfaces.Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := c.logger.With().Str("run_id", runID).Logger()

	ctx, usage := llm.WithUsageCounter(ctx)

	plan, subtasks, err := c.PlanOnly(ctx, query)
	if err != nil {
		c.observeRun(ctx, start, err, false)
		return nil, err
	}
	logger.Info().Int("topics", len(plan.Topics)).Int("subtasks", len(subtasks)).Msg("dispatching sub-agents")

	findings, stats := c.engine.Execute(ctx, subtasks)
	if err := ctx.Err(); err != nil {
		logger.Warn().Err(err).Msg("run canceled")
		c.observeRun(ctx, start, err, false)
		return nil, err
	}
	logger.Info().
		Int("completed", stats.Completed).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("sub-agents finished")

	r := &interfaces.Report{
		RunID:    runID,
		Query:    plan.Query,
		Plan:     plan,
		Subtasks: subtasks,
		Findings: findings,
	}
	for _, f := range findings {
		if !f.Completed() {
			r.FailedSubtasks = append(r.FailedSubtasks, f.SubtaskID)
		}
	}
	r.Incomplete = len(r.FailedSubtasks) > 0

	content, _, err := c.synthesizer.Synthesize(ctx, plan, findings)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.observeRun(ctx, start, ctxErr, false)
			return nil, ctxErr
		}
		logger.Error().Err(err).Msg("synthesis failed, compiling findings instead")
		content = report.Compile(plan, findings)
	} else {
		r.Synthesized = true
	}
	r.Content = content

	c.store(ctx, logger, runID, findings)

	r.Usage = usage.Total()
	r.GeneratedAt = time.Now().UTC()
	r.Duration = time.Since(start)

	c.observeRun(ctx, start, nil, r.Incomplete || !r.Synthesized)
	logger.Info().
		Bool("synthesized", r.Synthesized).
		Bool("incomplete", r.Incomplete).
		Int("llm_calls", r.Usage.Calls).
		Int("total_tokens", r.Usage.TotalTokens).
		Dur("duration", r.Duration).
		Msg("research run finished")
	return r, nil
}

// store archives completed findings. Failures are logged and ignored.
func (c *Coordinator) store(ctx context.Context, logger zerolog.Logger, runID string, findings []*interfaces.Finding) {
	if c.archive == nil {
		return
	}

	completed := make([]*interfaces.Finding, 0, len(findings))
	for _, f := range findings {
		if f.Completed() {
			completed = append(completed, f)
		}
	}
	if len(completed) == 0 {
		return
	}

	if err := c.archive.Store(ctx, runID, completed); err != nil {
		logger.Warn().Err(err).Msg("failed to archive findings")
		return
	}
	logger.Debug().Int("findings", len(completed)).Msg("findings archived")
}

func (c *Coordinator) observeRun(ctx context.Context, start time.Time, err error, degraded bool) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil && ctx.Err() != nil:
		outcome = metrics.OutcomeCanceled
	case err != nil:
		outcome = metrics.OutcomeFailure
	case degraded:
		outcome = metrics.OutcomeDegraded
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	metrics.RunDuration.Observe(time.Since(start).Seconds())
}
