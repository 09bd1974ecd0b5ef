// Package agents implements the planning stages of a research run: the
// Planner turning a query into a Plan and the Splitter decomposing a Plan
// into independently researchable subtasks.
package agents

import (
	"strings"
)

// extractJSONObject returns the outermost JSON object in s. Models often wrap
// JSON in Markdown fences or add a sentence around it.
func extractJSONObject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
