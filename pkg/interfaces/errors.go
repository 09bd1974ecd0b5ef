package interfaces

import (
	"errors"
	"fmt"
)

// ErrEmptyQuery is returned when a research query is blank
var ErrEmptyQuery = errors.New("query cannot be empty")

// ConfigurationError reports missing credentials, invalid settings or
// template misuse. It is fatal and surfaces before any pipeline work.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// GenerationError reports an LLM call that failed or returned unusable output
type GenerationError struct {
	Stage   string
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("%s generation failed", e.Stage)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ResearchError reports a failure of the search or scrape tools
type ResearchError struct {
	SubtaskID string
	Tool      string
	Message   string
	Err       error
}

func (e *ResearchError) Error() string {
	msg := "research failed"
	if e.SubtaskID != "" {
		msg += " for " + e.SubtaskID
	}
	if e.Tool != "" {
		msg += " (" + e.Tool + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResearchError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsGenerationError reports whether err wraps a GenerationError
func IsGenerationError(err error) bool {
	var target *GenerationError
	return errors.As(err, &target)
}

// IsResearchError reports whether err wraps a ResearchError
func IsResearchError(err error) bool {
	var target *ResearchError
	return errors.As(err, &target)
}
