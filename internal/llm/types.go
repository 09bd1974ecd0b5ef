package llm

import (
	"context"
	"encoding/json"

	"deep-researcher/pkg/interfaces"
)

// Role defines the role of a message in a conversation
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Pipeline stages used to label requests
const (
	StagePlanner   = "planner"
	StageSplitter  = "splitter"
	StageSubagent  = "subagent"
	StageSynthesis = "synthesis"
)

// Message represents a chat message for LLM providers
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	// ToolCalls are set on assistant messages that request tools
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a tool message to the call it answers
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolDef defines a tool/function that can be called by the LLM
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall represents a tool call made by the LLM
type ToolCall struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	// Arguments is the raw JSON argument object
	Arguments string `json:"arguments,omitempty"`
}

// ResponseFormatType selects how the model must shape its answer
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat requests structured output
type ResponseFormat struct {
	Type        ResponseFormatType
	Name        string
	Description string
	Schema      json.RawMessage
	Strict      bool
}

// CompletionRequest represents a request to complete
type CompletionRequest struct {
	// Stage labels the pipeline step issuing the call
	Stage string
	// Subject narrows the stage, e.g. the subtask id of a sub-agent
	Subject string

	Model          string
	Messages       []Message
	Tools          []ToolDef
	ResponseFormat *ResponseFormat
	Temperature    float32
	MaxTokens      int
}

// TokenUsage tracks token consumption for billing and monitoring
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ToUsage converts token counts for one call into an aggregate Usage
func (u TokenUsage) ToUsage() interfaces.Usage {
	return interfaces.Usage{
		Calls:            1,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// CompletionResponse represents the response from an LLM completion
type CompletionResponse struct {
	Content    string
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string // normalized stop reason, e.g. "stop", "length", "tool_calls"
	Model      string
}

// AssistantMessage returns the response as a message to append to history
func (r *CompletionResponse) AssistantMessage() Message {
	return Message{
		Role:      RoleAssistant,
		Content:   r.Content,
		ToolCalls: r.ToolCalls,
	}
}

// Provider is a chat completion backend
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}
