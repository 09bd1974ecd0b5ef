package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"deep-researcher/internal/agents/researcher"
	"deep-researcher/internal/metrics"
	"deep-researcher/internal/tools"
	"deep-researcher/pkg/interfaces"
)

// EngineStats summarizes one fan-out
type EngineStats struct {
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// ExecutionEngine runs one sub-agent per subtask on a bounded worker pool
type ExecutionEngine struct {
	researcher     researcher.Researcher
	registry       *tools.Registry
	maxConcurrency int
	subtaskTimeout time.Duration
	logger         zerolog.Logger

	last       EngineStats
	statsMutex sync.RWMutex
}

// NewExecutionEngine creates a new execution engine
func NewExecutionEngine(r researcher.Researcher, registry *tools.Registry, maxConcurrency int, subtaskTimeout time.Duration, logger zerolog.Logger) *ExecutionEngine {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &ExecutionEngine{
		researcher:     r,
		registry:       registry,
		maxConcurrency: maxConcurrency,
		subtaskTimeout: subtaskTimeout,
		logger:         logger,
	}
}

type job struct {
	index   int
	subtask interfaces.Subtask
}

type jobResult struct {
	index   int
	finding *interfaces.Finding
}

// Execute researches every subtask and returns exactly one Finding per
// subtask, in subtask order. Failures, timeouts and panics become
// unavailable findings. When ctx is cancelled pending subtasks are not
// started and are reported as unavailable.
func (e *ExecutionEngine) Execute(ctx context.Context, subtasks []interfaces.Subtask) ([]*interfaces.Finding, EngineStats) {
	startTime := time.Now()
	findings := make([]*interfaces.Finding, len(subtasks))

	stats := EngineStats{Total: len(subtasks)}

	jobChan := make(chan job, len(subtasks))
	resultChan := make(chan jobResult, len(subtasks))

	workers := e.maxConcurrency
	if workers > len(subtasks) {
		workers = len(subtasks)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go e.worker(ctx, jobChan, resultChan, &wg)
	}

	go func() {
		defer close(jobChan)
		for i, subtask := range subtasks {
			select {
			case jobChan <- job{index: i, subtask: subtask}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		findings[result.index] = result.finding
	}

	for i, finding := range findings {
		if finding == nil {
			findings[i] = interfaces.UnavailableFinding(subtasks[i], "not started: run canceled")
		}
		if findings[i].Completed() {
			stats.Completed++
		} else {
			stats.Failed++
		}
	}
	stats.Duration = time.Since(startTime)

	e.statsMutex.Lock()
	e.last = stats
	e.statsMutex.Unlock()

	return findings, stats
}

// Stats returns the statistics of the most recently finished fan-out
func (e *ExecutionEngine) Stats() EngineStats {
	e.statsMutex.RLock()
	defer e.statsMutex.RUnlock()
	return e.last
}

// worker researches subtasks from the channel
func (e *ExecutionEngine) worker(ctx context.Context, jobChan <-chan job, resultChan chan<- jobResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case j, ok := <-jobChan:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}

			resultChan <- jobResult{index: j.index, finding: e.runSubtask(ctx, j.subtask)}

		case <-ctx.Done():
			return
		}
	}
}

type outcome struct {
	finding *interfaces.Finding
	err     error
}

// runSubtask runs one sub-agent under the subtask timeout. A sub-agent that
// does not return once its context is done is abandoned.
func (e *ExecutionEngine) runSubtask(ctx context.Context, subtask interfaces.Subtask) *interfaces.Finding {
	start := time.Now()
	logger := e.logger.With().Str("subtask_id", subtask.ID).Logger()

	var (
		subCtx context.Context
		cancel context.CancelFunc
	)
	if e.subtaskTimeout > 0 {
		subCtx, cancel = context.WithTimeout(ctx, e.subtaskTimeout)
	} else {
		subCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	metrics.ActiveSubagents.Inc()
	defer metrics.ActiveSubagents.Dec()

	logger.Info().Str("title", subtask.Title).Msg("sub-agent started")

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("sub-agent panicked: %v", r)}
			}
		}()
		finding, err := e.researcher.Research(subCtx, subtask, e.registry)
		done <- outcome{finding: finding, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-subCtx.Done():
		res = outcome{err: subCtx.Err()}
	}

	if res.err == nil && res.finding == nil {
		res.err = errors.New("sub-agent returned no finding")
	}
	if res.err == nil && !res.finding.Completed() {
		reason := res.finding.Error
		if reason == "" {
			reason = fmt.Sprintf("sub-agent returned status %q", res.finding.Status)
		}
		res.err = errors.New(reason)
	}

	if res.err != nil {
		reason := failureReason(res.err)
		logger.Warn().Err(res.err).Dur("duration", time.Since(start)).Msg("sub-agent failed")
		metrics.SubtasksTotal.WithLabelValues(metrics.OutcomeFailure).Inc()

		finding := interfaces.UnavailableFinding(subtask, reason)
		finding.Duration = time.Since(start)
		return finding
	}

	finding := res.finding
	finding.SubtaskID = subtask.ID
	if finding.Title == "" {
		finding.Title = subtask.Title
	}
	if finding.Duration == 0 {
		finding.Duration = time.Since(start)
	}

	logger.Info().
		Int("sources", len(finding.Sources)).
		Int("total_tokens", finding.Usage.TotalTokens).
		Dur("duration", finding.Duration).
		Msg("sub-agent completed")
	metrics.SubtasksTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return finding
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return err.Error()
	}
}
