package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"godra/internal/tools"

	"google.golang.org/genai"
)

// promptResultLimit caps how much of a payload is quoted back into a
// prompt. Full payloads live in the analysis; prompts get the head.
const promptResultLimit = 4000

const plannerSystemPrompt = `You are the planning agent for a binary analysis task.
Plan the minimal ordered list of tool calls needed to gather the information the user's query still lacks.

Respond with a JSON array only. Each element is an object with "tool" and "parameters" keys; a tool that takes no parameters gets an empty object {}. If no tool calls are needed, respond with [].

Rules:
- Use exact tool names from the catalogue and only their declared parameters.
- Plan the fewest calls that can answer the query. Never decompile every function unless the query explicitly asks for that.
- Do not repeat calls whose results already appear in the analysis unless a revision asks for them.
- Do not add any text before or after the JSON.`

const reviewerSystemPrompt = `You are the review agent for a binary analysis task. The plan is empty; decide what happens next.

Directives:
- "FINAL_ANSWER" when the accumulated analysis sufficiently answers the user's query.
- "REVISE_PLAN" when the analysis is incomplete and another round of tool calls could fill the gap.
- "EXIT_LOOP" when the query cannot be answered with the available tools and more rounds will not help.

Respond with a JSON object: {"directive": ..., "reason": ..., "escalate": ...}. escalate is true only for FINAL_ANSWER and EXIT_LOOP.`

const reportSystemPrompt = `You are writing the final report of a binary analysis session.
Rewrite the accumulated findings as a clear, direct answer to the user's query. Keep function names, addresses and code excerpts exactly as they appear in the findings. Do not invent details the findings do not contain.`

// reviewerSchema constrains the reviewer's structured completion to the
// three-field decision object.
var reviewerSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"directive": {"type": "string", "enum": ["FINAL_ANSWER", "REVISE_PLAN", "EXIT_LOOP"]},
		"reason": {"type": "string"},
		"escalate": {"type": "boolean"}
	},
	"required": ["directive", "reason", "escalate"]
}`)

// renderCatalogue formats the tool list for a prompt, one line per tool:
// name, parameter signature drawn from the declaration, description.
func renderCatalogue(registry *tools.Registry) string {
	var b strings.Builder
	for _, decl := range registry.Declarations() {
		b.WriteString("- `")
		b.WriteString(decl.Name)
		b.WriteByte('(')
		b.WriteString(renderParams(decl.Parameters))
		b.WriteString(")`: ")
		b.WriteString(decl.Description)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderParams lists required parameters first in declared order, then
// the optional ones alphabetically with a ? suffix.
func renderParams(schema *genai.Schema) string {
	if schema == nil || len(schema.Properties) == 0 {
		return ""
	}

	required := make(map[string]bool, len(schema.Required))
	parts := make([]string, 0, len(schema.Properties))
	for _, name := range schema.Required {
		if prop, ok := schema.Properties[name]; ok {
			required[name] = true
			parts = append(parts, renderParam(name, prop))
		}
	}

	optional := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		if !required[name] {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)
	for _, name := range optional {
		parts = append(parts, renderParam(name, schema.Properties[name])+"?")
	}

	return strings.Join(parts, ", ")
}

func renderParam(name string, prop *genai.Schema) string {
	return name + ": " + strings.ToLower(string(prop.Type))
}

func buildPlannerPrompt(state *SharedState, catalogue, contextBlock string) string {
	var b strings.Builder

	if contextBlock != "" {
		b.WriteString("Reference context:\n")
		b.WriteString(contextBlock)
		b.WriteString("\n\n")
	}

	b.WriteString("Available tools:\n")
	b.WriteString(catalogue)
	b.WriteString("\n\nUser query: ")
	b.WriteString(state.UserQuery)
	b.WriteByte('\n')

	if state.LastResult != nil {
		b.WriteString("\nLast tool result:\n")
		b.WriteString(renderResult(state.LastResult))
		b.WriteByte('\n')
	}
	if state.CurrentAnalysis != "" {
		b.WriteString("\nAnalysis so far:\n")
		b.WriteString(head(state.CurrentAnalysis, promptResultLimit))
		b.WriteByte('\n')
	}
	if pending := state.Plan.Snapshot(); len(pending) > 0 {
		b.WriteString("\nRemaining plan under revision:\n")
		for _, call := range pending {
			fmt.Fprintf(&b, "- %s(%s)\n", call.Tool, renderCallParams(call.Parameters))
		}
	}

	b.WriteString("\nRespond with the JSON array of tool calls.")
	return b.String()
}

func buildReviewerPrompt(state *SharedState) string {
	var b strings.Builder
	b.WriteString("User query: ")
	b.WriteString(state.UserQuery)
	b.WriteByte('\n')

	if state.LastResult != nil {
		b.WriteString("\nLast tool result:\n")
		b.WriteString(renderResult(state.LastResult))
		b.WriteByte('\n')
	}

	b.WriteString("\nAccumulated analysis:\n")
	if state.CurrentAnalysis == "" {
		b.WriteString("(none)")
	} else {
		b.WriteString(head(state.CurrentAnalysis, promptResultLimit))
	}
	b.WriteString("\n\nDoes the analysis answer the query? Respond with the decision object.")
	return b.String()
}

func buildReportPrompt(query, analysis string) string {
	var b strings.Builder
	b.WriteString("User query: ")
	b.WriteString(query)
	b.WriteString("\n\nFindings:\n")
	b.WriteString(analysis)
	b.WriteString("\n\nWrite the final report.")
	return b.String()
}

// renderResult flattens the latest result for prompt inclusion, capping
// the payload so one huge decompilation cannot crowd everything else
// out.
func renderResult(r *ExecutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "status: %s", r.Status)
	if r.Tool != "" {
		fmt.Fprintf(&b, "\ntool: %s", r.Tool)
	}
	if r.Message != "" {
		fmt.Fprintf(&b, "\nmessage: %s", r.Message)
	}
	if r.Payload != "" {
		fmt.Fprintf(&b, "\noutput:\n%s", head(r.Payload, promptResultLimit))
	}
	return b.String()
}

func renderCallParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ", ")
}

// head returns at most n bytes of s, cut on a rune boundary.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
