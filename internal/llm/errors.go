package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorCode defines normalized error codes across providers
type ErrorCode string

const (
	ErrRateLimited    ErrorCode = "rate_limited"
	ErrTimeout        ErrorCode = "timeout"
	ErrAuth           ErrorCode = "auth"
	ErrInvalidRequest ErrorCode = "invalid_request"
	ErrModelNotFound  ErrorCode = "model_not_found"
	ErrContextLength  ErrorCode = "context_length_exceeded"
	ErrUnavailable    ErrorCode = "service_unavailable"
	ErrCanceled       ErrorCode = "canceled"
	ErrUnknown        ErrorCode = "unknown"
)

// ProviderError represents a normalized error from any provider
type ProviderError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidateCompletionRequest validates a completion request
func ValidateCompletionRequest(req *CompletionRequest) error {
	if req == nil {
		return &ProviderError{Code: ErrInvalidRequest, Message: "request cannot be nil"}
	}
	if req.Model == "" {
		return &ProviderError{Code: ErrInvalidRequest, Message: "model cannot be empty"}
	}
	if len(req.Messages) == 0 {
		return &ProviderError{Code: ErrInvalidRequest, Message: "messages cannot be empty"}
	}
	for i, msg := range req.Messages {
		if msg.Role == "" {
			return &ProviderError{Code: ErrInvalidRequest, Message: fmt.Sprintf("message %d: role cannot be empty", i)}
		}
		if msg.Role == RoleTool && msg.ToolCallID == "" {
			return &ProviderError{Code: ErrInvalidRequest, Message: fmt.Sprintf("message %d: tool message needs a tool call id", i)}
		}
	}
	if rf := req.ResponseFormat; rf != nil && rf.Type == ResponseFormatJSONSchema {
		if rf.Name == "" || len(rf.Schema) == 0 {
			return &ProviderError{Code: ErrInvalidRequest, Message: "json_schema response format needs a name and schema"}
		}
	}
	return nil
}

// NormalizeError converts client errors to a ProviderError
func NormalizeError(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	if errors.Is(err, context.Canceled) {
		return &ProviderError{Code: ErrCanceled, Message: "request canceled", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Code: ErrTimeout, Message: "request timed out", Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := codeForStatus(apiErr.HTTPStatusCode)
		if c, ok := apiErr.Code.(string); ok && strings.Contains(c, "context_length") {
			code = ErrContextLength
		}
		return &ProviderError{Code: code, Message: apiErr.Message, HTTPStatus: apiErr.HTTPStatusCode, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Code: codeForStatus(reqErr.HTTPStatusCode), Message: reqErr.Error(), HTTPStatus: reqErr.HTTPStatusCode, Err: err}
	}

	return &ProviderError{Code: ErrUnknown, Message: err.Error(), Err: err}
}

func codeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusNotFound:
		return ErrModelNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTimeout
	case status >= 500:
		return ErrUnavailable
	case status >= 400:
		return ErrInvalidRequest
	default:
		return ErrUnknown
	}
}
