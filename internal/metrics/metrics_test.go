package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveLLMCall(t *testing.T) {
	before := testutil.ToFloat64(LLMCallsTotal.WithLabelValues("metrics_test", OutcomeSuccess))
	tokens := testutil.ToFloat64(LLMTokensTotal.WithLabelValues("metrics_test", "prompt"))

	ObserveLLMCall("metrics_test", time.Now(), 12, 30, nil)
	ObserveLLMCall("metrics_test", time.Now(), 5, 5, errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(LLMCallsTotal.WithLabelValues("metrics_test", OutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(LLMCallsTotal.WithLabelValues("metrics_test", OutcomeFailure)))
	assert.Equal(t, tokens+12, testutil.ToFloat64(LLMTokensTotal.WithLabelValues("metrics_test", "prompt")))
}

func TestObserveToolCall(t *testing.T) {
	ObserveToolCall("metrics_test_tool", time.Now(), false)
	assert.Equal(t, float64(1), testutil.ToFloat64(ToolCallsTotal.WithLabelValues("metrics_test_tool", OutcomeFailure)))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Outcome(nil))
	assert.Equal(t, OutcomeFailure, Outcome(errors.New("x")))
}
