package llm

import (
	"context"
	"sync"

	"deep-researcher/pkg/interfaces"
)

type usageKey struct{}

// UsageCounter accumulates token usage of every call made with a context
// carrying it. It is safe for concurrent use.
type UsageCounter struct {
	mu    sync.Mutex
	usage interfaces.Usage
}

// WithUsageCounter returns a context whose LLM calls are counted by the
// returned counter
func WithUsageCounter(ctx context.Context) (context.Context, *UsageCounter) {
	counter := &UsageCounter{}
	return context.WithValue(ctx, usageKey{}, counter), counter
}

// RecordUsage adds one call to the counter carried by ctx, if any
func RecordUsage(ctx context.Context, usage TokenUsage) {
	counter, ok := ctx.Value(usageKey{}).(*UsageCounter)
	if !ok {
		return
	}
	counter.mu.Lock()
	defer counter.mu.Unlock()
	counter.usage.Add(usage.ToUsage())
}

// Total returns the usage counted so far
func (c *UsageCounter) Total() interfaces.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}
