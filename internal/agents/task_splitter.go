package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"deep-researcher/internal/config"
	"deep-researcher/internal/llm"
	"deep-researcher/internal/prompts"
	"deep-researcher/pkg/interfaces"
)

type subtaskOutput struct {
	ID          string `json:"id" jsonschema_description:"Short unique identifier such as task-1"`
	Title       string `json:"title" jsonschema_description:"Short descriptive title"`
	Description string `json:"description" jsonschema_description:"Everything the agent must research for this subtask"`
	TopicIndex  int    `json:"topic_index" jsonschema_description:"1-based index of the plan topic this subtask covers"`
}

type splitOutput struct {
	Subtasks []subtaskOutput `json:"subtasks"`
}

// splitSchema is the JSON schema requested from the model and used to
// validate its answer
var splitSchema = mustSplitSchema()

type responseSchema struct {
	raw       json.RawMessage
	validator *gojsonschema.Schema
}

func mustSplitSchema() responseSchema {
	reflector := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := reflector.Reflect(&splitOutput{})
	schema.Version = ""

	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal splitter schema: %v", err))
	}
	validator, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to compile splitter schema: %v", err))
	}
	return responseSchema{raw: raw, validator: validator}
}

// Splitter decomposes a Plan into subtasks with one structured LLM call
type Splitter struct {
	provider llm.Provider
	prompts  *prompts.Registry
	cfg      config.LLMConfig
	logger   zerolog.Logger
}

// NewSplitter creates a new task splitter
func NewSplitter(provider llm.Provider, cfg config.LLMConfig, logger zerolog.Logger) *Splitter {
	return &Splitter{
		provider: provider,
		prompts:  prompts.Default(),
		cfg:      cfg,
		logger:   logger.With().Str("component", "splitter").Logger(),
	}
}

// Split returns the subtasks for plan. Every plan topic is covered by at
// least one subtask; topics the model skipped get a subtask of their own.
func (s *Splitter) Split(ctx context.Context, plan *interfaces.Plan) ([]interfaces.Subtask, error) {
	if plan == nil || len(plan.Topics) == 0 {
		return nil, &interfaces.GenerationError{Stage: llm.StageSplitter, Message: "plan has no topics"}
	}

	system, err := s.prompts.Render(prompts.SplitterSystem, nil)
	if err != nil {
		return nil, err
	}
	user, err := s.prompts.Render(prompts.SplitterUser, prompts.Fields{
		"Query":     plan.Query,
		"Objective": plan.Objective,
		"Topics":    plan.Topics,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.provider.Complete(ctx, &llm.CompletionRequest{
		Stage: llm.StageSplitter,
		Model: s.cfg.SplitterModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		ResponseFormat: &llm.ResponseFormat{
			Type:        llm.ResponseFormatJSONSchema,
			Name:        "subtasks",
			Description: "Independent research subtasks covering the plan",
			Schema:      splitSchema.raw,
			Strict:      true,
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, &interfaces.GenerationError{Stage: llm.StageSplitter, Message: "llm call failed", Err: err}
	}

	output, err := parseSplit(resp.Content)
	if err != nil {
		return nil, err
	}

	subtasks, err := buildSubtasks(plan, output.Subtasks)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("subtasks", len(subtasks)).
		Int("returned", len(output.Subtasks)).
		Msg("plan split into subtasks")
	return subtasks, nil
}

func parseSplit(content string) (*splitOutput, error) {
	raw, ok := extractJSONObject(content)
	if !ok {
		return nil, &interfaces.GenerationError{Stage: llm.StageSplitter, Message: "no JSON object in response"}
	}

	result, err := splitSchema.validator.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, &interfaces.GenerationError{Stage: llm.StageSplitter, Message: "malformed subtasks", Err: err}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, &interfaces.GenerationError{
			Stage:   llm.StageSplitter,
			Message: "subtasks do not match schema: " + strings.Join(msgs, "; "),
		}
	}

	var output splitOutput
	if err := json.Unmarshal([]byte(raw), &output); err != nil {
		return nil, &interfaces.GenerationError{Stage: llm.StageSplitter, Message: "malformed subtasks", Err: err}
	}
	if len(output.Subtasks) == 0 {
		return nil, &interfaces.GenerationError{Stage: llm.StageSplitter, Message: "no subtasks returned"}
	}
	return &output, nil
}

// buildSubtasks normalizes ids, checks topic references and fills topics
// the model left uncovered
func buildSubtasks(plan *interfaces.Plan, outputs []subtaskOutput) ([]interfaces.Subtask, error) {
	used := make(map[string]bool)
	covered := make(map[int]bool)
	subtasks := make([]interfaces.Subtask, 0, len(outputs))

	for i, out := range outputs {
		if out.TopicIndex < 1 || out.TopicIndex > len(plan.Topics) {
			return nil, &interfaces.GenerationError{
				Stage:   llm.StageSplitter,
				Message: fmt.Sprintf("subtask %d references topic %d, plan has %d topics", i+1, out.TopicIndex, len(plan.Topics)),
			}
		}
		covered[out.TopicIndex] = true

		id := strings.TrimSpace(out.ID)
		if id == "" {
			id = fmt.Sprintf("task-%d", i+1)
		}
		topic := plan.Topics[out.TopicIndex-1]

		subtasks = append(subtasks, interfaces.Subtask{
			ID:          uniqueID(id, used),
			Title:       orDefault(out.Title, topic),
			Description: orDefault(out.Description, topic),
			TopicIndex:  out.TopicIndex,
			Topic:       topic,
			Query:       plan.Query,
			Objective:   plan.Objective,
		})
	}

	for i, topic := range plan.Topics {
		if covered[i+1] {
			continue
		}
		subtasks = append(subtasks, interfaces.Subtask{
			ID:          uniqueID(fmt.Sprintf("topic-%d", i+1), used),
			Title:       topic,
			Description: "Research this part of the plan in depth: " + topic,
			TopicIndex:  i + 1,
			Topic:       topic,
			Query:       plan.Query,
			Objective:   plan.Objective,
		})
	}

	return subtasks, nil
}

func uniqueID(id string, used map[string]bool) string {
	candidate := id
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d", id, n)
	}
	used[candidate] = true
	return candidate
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
