// Package llmtest provides a scripted provider for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"deep-researcher/internal/llm"
)

// Responder computes a response for a request
type Responder func(req *llm.CompletionRequest) (*llm.CompletionResponse, error)

// FakeProvider implements llm.Provider for testing purposes. Responses are
// routed by request key: "<stage>" or "<stage>:<subject>", the more
// specific key winning. Queued responses are consumed in order before the
// fixed response for the same key is used.
type FakeProvider struct {
	mu         sync.RWMutex
	responses  map[string]*llm.CompletionResponse
	queues     map[string][]*llm.CompletionResponse
	responders map[string]Responder
	delays     map[string]time.Duration
	errors     map[string]error
	panics     map[string]string
	calls      []*llm.CompletionRequest
}

// NewFakeProvider creates a new fake provider for testing
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		responses:  make(map[string]*llm.CompletionResponse),
		queues:     make(map[string][]*llm.CompletionResponse),
		responders: make(map[string]Responder),
		delays:     make(map[string]time.Duration),
		errors:     make(map[string]error),
		panics:     make(map[string]string),
	}
}

// Key builds the routing key for a stage and optional subject
func Key(stage, subject string) string {
	if subject == "" {
		return stage
	}
	return stage + ":" + subject
}

// AddResponse sets a fixed response for key
func (fp *FakeProvider) AddResponse(key string, response *llm.CompletionResponse) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.responses[key] = response
}

// AddContent sets a fixed text response for key
func (fp *FakeProvider) AddContent(key, content string) {
	fp.AddResponse(key, Text(content))
}

// QueueResponse appends a one-shot response for key
func (fp *FakeProvider) QueueResponse(key string, response *llm.CompletionResponse) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.queues[key] = append(fp.queues[key], response)
}

// AddResponder computes responses for key dynamically
func (fp *FakeProvider) AddResponder(key string, responder Responder) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.responders[key] = responder
}

// AddDelay adds a delay for key
func (fp *FakeProvider) AddDelay(key string, delay time.Duration) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.delays[key] = delay
}

// AddError adds an error for key
func (fp *FakeProvider) AddError(key string, err error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.errors[key] = err
}

// AddPanic makes calls for key panic with msg
func (fp *FakeProvider) AddPanic(key, msg string) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.panics[key] = msg
}

// GetCallCount returns the number of calls made to the provider
func (fp *FakeProvider) GetCallCount() int {
	fp.mu.RLock()
	defer fp.mu.RUnlock()
	return len(fp.calls)
}

// CallsForStage returns the number of calls made for a stage
func (fp *FakeProvider) CallsForStage(stage string) int {
	fp.mu.RLock()
	defer fp.mu.RUnlock()
	n := 0
	for _, c := range fp.calls {
		if c.Stage == stage {
			n++
		}
	}
	return n
}

// Requests returns a copy of every request received
func (fp *FakeProvider) Requests() []*llm.CompletionRequest {
	fp.mu.RLock()
	defer fp.mu.RUnlock()
	return append([]*llm.CompletionRequest(nil), fp.calls...)
}

// GetLastRequest returns the last request made to the provider
func (fp *FakeProvider) GetLastRequest() *llm.CompletionRequest {
	fp.mu.RLock()
	defer fp.mu.RUnlock()
	if len(fp.calls) == 0 {
		return nil
	}
	return fp.calls[len(fp.calls)-1]
}

// Name returns the provider name
func (fp *FakeProvider) Name() string { return "fake" }

// Complete performs a mock completion request
func (fp *FakeProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	fp.mu.Lock()
	fp.calls = append(fp.calls, req)
	keys := []string{Key(req.Stage, req.Subject), req.Stage}

	var (
		delay     time.Duration
		err       error
		panicMsg  string
		queued    *llm.CompletionResponse
		fixed     *llm.CompletionResponse
		responder Responder
	)
	for _, key := range keys {
		if d, ok := fp.delays[key]; ok && delay == 0 {
			delay = d
		}
		if e, ok := fp.errors[key]; ok && err == nil {
			err = e
		}
		if p, ok := fp.panics[key]; ok && panicMsg == "" {
			panicMsg = p
		}
		if q := fp.queues[key]; len(q) > 0 && queued == nil && fixed == nil && responder == nil {
			queued = q[0]
			fp.queues[key] = q[1:]
		}
		if r, ok := fp.responders[key]; ok && queued == nil && fixed == nil && responder == nil {
			responder = r
		}
		if r, ok := fp.responses[key]; ok && queued == nil && fixed == nil && responder == nil {
			fixed = r
		}
	}
	fp.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if panicMsg != "" {
		panic(panicMsg)
	}
	if err != nil {
		return nil, err
	}

	switch {
	case queued != nil:
		return queued, nil
	case responder != nil:
		return responder(req)
	case fixed != nil:
		return fixed, nil
	}

	return Text(fmt.Sprintf("Mock response for: %s", Key(req.Stage, req.Subject))), nil
}

// Text builds a plain text response
func Text(content string) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		Content:    content,
		StopReason: "stop",
		Usage: llm.TokenUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
	}
}

// ToolCalls builds a response requesting the given tool calls
func ToolCalls(calls ...llm.ToolCall) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		ToolCalls:  calls,
		StopReason: "tool_calls",
		Usage: llm.TokenUsage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
	}
}
