package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"deep-researcher/internal/metrics"
)

// Instrumented wraps a provider with metrics, usage accounting and debug
// logging
type Instrumented struct {
	next   Provider
	logger zerolog.Logger
}

// NewInstrumented wraps next
func NewInstrumented(next Provider, logger zerolog.Logger) *Instrumented {
	return &Instrumented{next: next, logger: logger.With().Str("provider", next.Name()).Logger()}
}

// Name returns the wrapped provider name
func (p *Instrumented) Name() string { return p.next.Name() }

// Complete forwards the call and records its outcome
func (p *Instrumented) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	resp, err := p.next.Complete(ctx, req)

	var usage TokenUsage
	if resp != nil {
		usage = resp.Usage
	}
	RecordUsage(ctx, usage)
	metrics.ObserveLLMCall(req.Stage, start, usage.PromptTokens, usage.CompletionTokens, err)

	event := p.logger.Debug()
	if err != nil {
		event = p.logger.Warn().Err(err)
	}
	event.
		Str("stage", req.Stage).
		Str("subject", req.Subject).
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int("total_tokens", usage.TotalTokens).
		Dur("duration", time.Since(start)).
		Msg("llm call")

	return resp, err
}
