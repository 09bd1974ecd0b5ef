package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"deep-researcher/internal/llm"
	"deep-researcher/pkg/interfaces"
)

// Tool defines the interface that all research tools must implement
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, input *ToolInput) (*ToolResult, error)
}

// ToolInput represents input data for tool execution
type ToolInput struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
	Call llm.ToolCall   `json:"call,omitempty"`
}

// ToolResult represents the result of tool execution
type ToolResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Stats   ToolStats      `json:"stats,omitempty"`
	// Sources are the documents this result draws on
	Sources []interfaces.Source `json:"-"`
}

// ToolStats tracks tool execution statistics
type ToolStats struct {
	ExecutionTime time.Duration `json:"execution_time"`
}

// Content renders the result as the tool message sent back to the LLM
func (r *ToolResult) Content() string {
	if r == nil {
		return `{"error":"no result"}`
	}
	var payload any = r.Data
	if !r.Success {
		payload = map[string]string{"error": r.Error}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}

// failure builds an unsuccessful result
func failure(format string, args ...any) *ToolResult {
	return &ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Definition converts a tool to the provider-neutral LLM tool definition
func Definition(t Tool) llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

func stringArg(data map[string]any, key string) (string, bool) {
	v, ok := data[key].(string)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// intArg reads an optional integer argument, clamped to [min, max]
func intArg(data map[string]any, key string, def, min, max int) int {
	n := def
	switch v := data[key].(type) {
	case float64:
		n = int(v)
	case int:
		n = v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n = int(i)
		}
	}
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n
}
