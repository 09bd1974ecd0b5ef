package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"deep-researcher/internal/config"
	"deep-researcher/internal/transport"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint,
// including the Hugging Face inference router
type OpenAIProvider struct {
	client  *openai.Client
	limiter *transport.Limiter
}

// ClientConfig builds the go-openai client configuration for cfg
func ClientConfig(cfg config.LLMConfig) openai.ClientConfig {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	return clientConfig
}

// NewOpenAIProvider creates a provider. Calls wait on limiter before being
// sent; a nil limiter disables rate limiting.
func NewOpenAIProvider(cfg config.LLMConfig, limiter *transport.Limiter) *OpenAIProvider {
	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(ClientConfig(cfg)),
		limiter: limiter,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string { return "openai" }

// Complete performs a completion request. Failed calls are not retried.
func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := ValidateCompletionRequest(req); err != nil {
		return nil, err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, NormalizeError(err)
	}

	resp, err := p.client.CreateChatCompletion(ctx, ToOpenAIRequest(req))
	if err != nil {
		return nil, NormalizeError(err)
	}

	return FromOpenAIResponse(resp), nil
}

// ToOpenAIRequest converts a CompletionRequest to OpenAI format
func ToOpenAIRequest(req *CompletionRequest) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if len(m.ToolCalls) > 0 {
			toolCalls := make([]openai.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				toolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			msg.ToolCalls = toolCalls
		}
		msgs = append(msgs, msg)
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	if rf := req.ResponseFormat; rf != nil {
		switch rf.Type {
		case ResponseFormatJSONObject:
			openaiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		case ResponseFormatJSONSchema:
			openaiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:        rf.Name,
					Description: rf.Description,
					Schema:      rf.Schema,
					Strict:      rf.Strict,
				},
			}
		}
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.Tool, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
		openaiReq.Tools = tools
		openaiReq.ToolChoice = "auto"
	}

	return openaiReq
}

// FromOpenAIResponse converts an OpenAI response to the provider-neutral form
func FromOpenAIResponse(resp openai.ChatCompletionResponse) *CompletionResponse {
	out := &CompletionResponse{
		Model: resp.Model,
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	if len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	out.Content = choice.Message.Content
	out.StopReason = string(choice.FinishReason)
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}
