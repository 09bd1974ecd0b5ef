// Package tools holds the function tools exposed to research sub-agents.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"deep-researcher/internal/llm"
	"deep-researcher/internal/metrics"
	"deep-researcher/internal/scraper"
	"deep-researcher/pkg/interfaces"
)

// Registry manages tool registration and execution. It is safe for use by
// concurrent sub-agents once registration is done.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// NewResearchRegistry registers the web tools and, when archive is not nil,
// the archive search tool
func NewResearchRegistry(backend scraper.Backend, archive interfaces.Archive, searchLimit, archiveTopK int) *Registry {
	r := NewRegistry()
	r.Register(NewWebSearch(backend, searchLimit))
	r.Register(NewScrapeURL(backend))
	if archive != nil {
		r.Register(NewSearchArchive(archive, archiveTopK))
	}
	return r
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool, nil
}

// List returns all registered tools ordered by name
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		list = append(list, tool)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Definitions returns the LLM tool definitions of every registered tool
func (r *Registry) Definitions() []llm.ToolDef {
	list := r.List()
	defs := make([]llm.ToolDef, 0, len(list))
	for _, tool := range list {
		defs = append(defs, Definition(tool))
	}
	return defs
}

// Execute runs the tool requested by call. Unknown tools, malformed
// arguments and tool failures come back as an unsuccessful result so the
// LLM can react to them; an error is returned only when ctx is done.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (*ToolResult, error) {
	start := time.Now()
	result := r.execute(ctx, call)
	result.Stats.ExecutionTime = time.Since(start)
	metrics.ObserveToolCall(call.Name, start, result.Success)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (r *Registry) execute(ctx context.Context, call llm.ToolCall) *ToolResult {
	tool, err := r.Get(call.Name)
	if err != nil {
		return failure("%v", err)
	}

	data := map[string]any{}
	if args := strings.TrimSpace(call.Arguments); args != "" {
		if err := json.Unmarshal([]byte(args), &data); err != nil {
			return failure("invalid arguments for %s: %v", call.Name, err)
		}
	}

	result, err := tool.Execute(ctx, &ToolInput{Name: call.Name, Data: data, Call: call})
	if err != nil {
		return failure("%s failed: %v", call.Name, err)
	}
	if result == nil {
		return failure("%s returned no result", call.Name)
	}
	return result
}
