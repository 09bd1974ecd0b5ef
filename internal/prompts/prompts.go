// Package prompts holds the parameterized prompt templates used by every
// stage of the research pipeline.
//
// Each template declares the fields it needs. The declaration is checked
// against the template body when the template is registered, and against
// the supplied values on every Render call, so a template and its callers
// can never silently drift apart.
package prompts

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
	"text/template/parse"

	"deep-researcher/pkg/interfaces"
)

// ID identifies a prompt template
type ID string

const (
	PlannerSystem   ID = "planner_system"
	PlannerUser     ID = "planner_user"
	SplitterSystem  ID = "splitter_system"
	SplitterUser    ID = "splitter_user"
	SubagentSystem  ID = "subagent_system"
	SubagentTask    ID = "subagent_task"
	SearchSummarize ID = "search_summarize"
	SynthesisSystem ID = "synthesis_system"
	SynthesisUser   ID = "synthesis_user"
)

// Fields are the named values substituted into a template
type Fields map[string]any

// Template is a parsed prompt with its declared fields
type Template struct {
	ID     ID
	Fields []string
	tmpl   *template.Template
}

// Registry manages prompt templates by ID
type Registry struct {
	mu        sync.RWMutex
	templates map[ID]*Template
}

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{templates: make(map[ID]*Template)}
}

// Register parses text and checks that the fields it references are exactly
// the declared fields
func (r *Registry) Register(id ID, text string, fields ...string) error {
	tmpl, err := template.New(string(id)).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", id, err)
	}

	referenced := make(map[string]bool)
	if tmpl.Tree != nil && tmpl.Tree.Root != nil {
		collectFields(tmpl.Tree.Root, referenced)
	}

	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f] = true
		if !referenced[f] {
			return fmt.Errorf("template %s declares unused field %q", id, f)
		}
	}
	for f := range referenced {
		if !declared[f] {
			return fmt.Errorf("template %s references undeclared field %q", id, f)
		}
	}

	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[id] = &Template{ID: id, Fields: sorted, tmpl: tmpl}
	return nil
}

// Get retrieves a template by ID
func (r *Registry) Get(id ID) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, exists := r.templates[id]
	if !exists {
		return nil, &interfaces.ConfigurationError{Field: "template", Message: fmt.Sprintf("unknown template: %s", id)}
	}
	return t, nil
}

// Render substitutes fields into the template. Missing fields are a
// ConfigurationError; extra fields are ignored.
func (r *Registry) Render(id ID, fields Fields) (string, error) {
	t, err := r.Get(id)
	if err != nil {
		return "", err
	}

	for _, name := range t.Fields {
		if _, ok := fields[name]; !ok {
			return "", &interfaces.ConfigurationError{
				Field:   name,
				Message: fmt.Sprintf("missing field for template %s", id),
			}
		}
	}

	data := map[string]any(fields)
	if data == nil {
		data = map[string]any{}
	}

	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, data); err != nil {
		return "", &interfaces.ConfigurationError{
			Field:   string(id),
			Message: "failed to render template",
			Err:     err,
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// collectFields records top-level field references. Bodies of range and
// with blocks are skipped since dot is rebound there.
func collectFields(node parse.Node, out map[string]bool) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectFields(child, out)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, out)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			collectFields(cmd, out)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			collectFields(arg, out)
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			out[n.Ident[0]] = true
		}
	case *parse.IfNode:
		collectFields(n.Pipe, out)
		collectFields(n.List, out)
		collectFields(n.ElseList, out)
	case *parse.RangeNode:
		collectFields(n.Pipe, out)
		collectFields(n.ElseList, out)
	case *parse.WithNode:
		collectFields(n.Pipe, out)
		collectFields(n.ElseList, out)
	}
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the registry holding the built-in templates. It panics
// if a built-in template does not match its declared fields.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = MustLoad()
	})
	return defaultRegistry
}

// MustLoad builds a registry with the built-in templates
func MustLoad() *Registry {
	r := NewRegistry()
	for _, d := range builtins {
		if err := r.Register(d.id, d.text, d.fields...); err != nil {
			panic(err)
		}
	}
	return r
}
