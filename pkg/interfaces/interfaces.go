package interfaces

import (
	"context"
	"time"
)

// Plan is the research strategy produced once per query
type Plan struct {
	Query     string   `json:"query"`
	Objective string   `json:"objective"`
	Topics    []string `json:"topics"`
	Raw       string   `json:"-"`
}

// Subtask is an independently researchable unit derived from a Plan topic
type Subtask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// TopicIndex is the 1-based index of the Plan topic this subtask covers
	TopicIndex int    `json:"topic_index"`
	Topic      string `json:"topic"`
	Query      string `json:"query"`
	Objective  string `json:"objective"`
}

// FindingStatus marks whether a sub-agent produced usable content
type FindingStatus string

const (
	FindingCompleted   FindingStatus = "completed"
	FindingUnavailable FindingStatus = "unavailable"
)

// Source is a document cited by a finding
type Source struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// Usage aggregates token consumption over one or more LLM calls
type Usage struct {
	Calls            int `json:"calls"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates other into u
func (u *Usage) Add(other Usage) {
	u.Calls += other.Calls
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Finding is the result of researching exactly one subtask
type Finding struct {
	SubtaskID string        `json:"subtask_id"`
	Title     string        `json:"title"`
	Status    FindingStatus `json:"status"`
	Content   string        `json:"content,omitempty"`
	Sources   []Source      `json:"sources,omitempty"`
	Error     string        `json:"error,omitempty"`
	Usage     Usage         `json:"usage"`
	Duration  time.Duration `json:"duration"`
}

// Completed reports whether the finding carries research content
func (f *Finding) Completed() bool {
	return f != nil && f.Status == FindingCompleted
}

// UnavailableFinding builds the marker recorded for a subtask that failed
func UnavailableFinding(subtask Subtask, reason string) *Finding {
	return &Finding{
		SubtaskID: subtask.ID,
		Title:     subtask.Title,
		Status:    FindingUnavailable,
		Error:     reason,
	}
}

// Report is the final research document for a query
type Report struct {
	RunID          string        `json:"run_id"`
	Query          string        `json:"query"`
	Plan           *Plan         `json:"plan"`
	Subtasks       []Subtask     `json:"subtasks"`
	Findings       []*Finding    `json:"findings"`
	Content        string        `json:"content"`
	Synthesized    bool          `json:"synthesized"`
	Incomplete     bool          `json:"incomplete"`
	FailedSubtasks []string      `json:"failed_subtasks,omitempty"`
	Usage          Usage         `json:"usage"`
	GeneratedAt    time.Time     `json:"generated_at"`
	Duration       time.Duration `json:"duration"`
}

// Planner turns a query into a research plan
type Planner interface {
	Plan(ctx context.Context, query string) (*Plan, error)
}

// Splitter decomposes a plan into subtasks
type Splitter interface {
	Split(ctx context.Context, plan *Plan) ([]Subtask, error)
}

// Synthesizer merges findings into report content
type Synthesizer interface {
	Synthesize(ctx context.Context, plan *Plan, findings []*Finding) (string, Usage, error)
}

// Archive stores completed findings for retrieval by later runs
type Archive interface {
	Store(ctx context.Context, runID string, findings []*Finding) error
	Search(ctx context.Context, query string, topK int) ([]ArchiveHit, error)
	Close() error
}

// ArchiveHit is a passage returned from the archive
type ArchiveHit struct {
	RunID     string  `json:"run_id"`
	SubtaskID string  `json:"subtask_id"`
	Text      string  `json:"text"`
	Source    string  `json:"source,omitempty"`
	Score     float32 `json:"score"`
}

// Embedder generates vector embeddings for text
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetDimension() int
}
