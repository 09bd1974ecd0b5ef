package prompts

type builtin struct {
	id     ID
	text   string
	fields []string
}

var builtins = []builtin{
	{id: PlannerSystem, text: plannerSystem},
	{id: PlannerUser, text: plannerUser, fields: []string{"Query"}},
	{id: SplitterSystem, text: splitterSystem},
	{id: SplitterUser, text: splitterUser, fields: []string{"Query", "Objective", "Topics"}},
	{id: SubagentSystem, text: subagentSystem},
	{id: SubagentTask, text: subagentTask, fields: []string{"Query", "Objective", "Topic", "SubtaskID", "SubtaskTitle", "SubtaskDescription"}},
	{id: SearchSummarize, text: searchSummarize, fields: []string{"Query", "Objective", "SubtaskID", "SubtaskTitle", "SubtaskDescription", "Material"}},
	{id: SynthesisSystem, text: synthesisSystem},
	{id: SynthesisUser, text: synthesisUser, fields: []string{"Query", "Objective", "Topics", "Subtasks", "Findings", "Incomplete"}},
}

const plannerSystem = `
You will be given a research task by a user. Produce the instructions a
researcher needs to complete the task. Do not complete the task yourself.

Guidelines:
1. Be specific and detailed. Include every known user preference and list the
   key attributes or dimensions to consider.
2. When an essential attribute is missing, state that it is open-ended.
3. Make no unwarranted assumptions. Treat unspecified dimensions as flexible.
4. Write in the first person, from the user's perspective.
5. Ask the researcher to include tables where they help.
6. State the expected output format, for example a structured report with headers.
7. Keep the language of the input unless the user asks otherwise.
8. Prefer primary, official and original sources.

Respond with a single JSON object and nothing else:
{
  "objective": "the full researcher instructions",
  "topics": ["first research topic or question", "second research topic or question"]
}
"topics" lists the distinct questions the research must answer, most important first.
`

const plannerUser = `
Research request:
{{.Query}}
`

const splitterSystem = `
You will be given a research plan. Break it into coherent, non-overlapping
subtasks that separate agents can research independently.

Requirements:
- Three to eight subtasks is usually right. Use your judgment.
- Each subtask has a short "id", a short descriptive "title", a detailed
  "description" telling the agent everything it must research, and the
  "topic_index" of the plan topic it covers (1-based).
- Together the subtasks cover the whole plan without duplication. Every plan
  topic must be covered by at least one subtask.
- Group by time period, region, actor, theme or causal mechanism as the topic
  suggests.
- Do not add a final task that puts everything together. That happens later.

Return only JSON matching the provided schema.
`

const splitterUser = `
User query:
{{.Query}}

Research plan:
{{.Objective}}

Plan topics:
{{range $i, $t := .Topics}}{{inc $i}}. {{$t}}
{{end}}`

const subagentSystem = `
You are a specialized research sub-agent. Use the available tools to search
the web and read pages. Prefer up-to-date, primary and official sources, and
be explicit about uncertainty, disagreement in the literature and gaps.
`

const subagentTask = `
Global user query:
{{.Query}}

Overall research plan:
{{.Objective}}

Plan topic covered by your subtask:
{{.Topic}}

Your subtask (ID: {{.SubtaskID}}, Title: {{.SubtaskTitle}}):

"""{{.SubtaskDescription}}"""

Focus only on this subtask and keep the global query in mind for context.
Return a Markdown report with this structure:

# {{.SubtaskID}} {{.SubtaskTitle}}

## Summary
Short overview of the main findings.

## Detailed Analysis
Well-structured explanation with subsections as needed.

## Key Points
- Bullet point

## Sources
- [Title](url) - why this source is relevant

Return only the Markdown report.
`

const searchSummarize = `
You are a specialized research sub-agent. Web research for your subtask has
already been gathered below. Use only this material and say where it is thin.

Global user query:
{{.Query}}

Overall research plan:
{{.Objective}}

Your subtask (ID: {{.SubtaskID}}, Title: {{.SubtaskTitle}}):

"""{{.SubtaskDescription}}"""

Gathered material:
{{.Material}}

Return a Markdown report with the sections "# {{.SubtaskID}} {{.SubtaskTitle}}",
"## Summary", "## Detailed Analysis", "## Key Points" and "## Sources", where
sources are listed as "- [Title](url)". Return only the Markdown report.
`

const synthesisSystem = `
You are the lead research coordinator. Sub-agents have researched parts of a
plan and you write the final report. Do not mention sub-agents, tools or any
internal mechanics. Your answer is a polished Markdown report.
`

const synthesisUser = `
The user asked:
"""{{.Query}}"""

Research plan:
"""{{.Objective}}"""
{{range $i, $t := .Topics}}{{inc $i}}. {{$t}}
{{end}}
Subtasks (JSON):
` + "```json" + `
{{.Subtasks}}
` + "```" + `

Sub-agent reports:

{{.Findings}}

Write a single coherent report that answers the query:
- Integrate all findings and avoid redundancy.
- Use clear headings and subheadings.
- Highlight key drivers and mechanisms, change over time, patterns, and open uncertainties.
- End with the sections "Open Questions and Further Research" and
  "Bibliography / Sources", merging and deduplicating the sources of all reports.
{{if .Incomplete}}- Some subtasks are marked UNAVAILABLE. Do not invent their findings. State
  plainly in the report which parts of the plan could not be researched.
{{end}}`
