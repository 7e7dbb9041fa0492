package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"godra/internal/client"
)

func TestPlanProducesCalls(t *testing.T) {
	c := &stubClient{completions: []string{`[{"tool": "list-functions", "parameters": {}}]`}}
	p := NewPlanner(c, mockRegistry(), 0)

	calls, err := p.Plan(context.Background(), NewSharedState("List all functions"), "")

	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "list-functions", calls[0].Tool)
	assert.NotNil(t, calls[0].Parameters)
	assert.Equal(t, 1, c.completeCalls)
}

func TestPlanPromptCarriesCatalogueAndState(t *testing.T) {
	c := &stubClient{completions: []string{`[]`}}
	p := NewPlanner(c, mockRegistry(), 0)
	state := NewSharedState("what does main do?")
	state.CurrentAnalysis = "Decompiled function main:\nvoid main(void) {}"
	state.LastResult = &ExecutionResult{Status: StatusSuccess, Tool: "decompile-by-name", Payload: "void main(void) {}"}
	state.Plan.Replace([]PlannedCall{{Tool: "list-imports"}})

	_, err := p.Plan(context.Background(), state, "## FUNCTION: printf\nWrites formatted output.")

	require.NoError(t, err)
	// The stub model is unrecognized, so the small-model hint rides along.
	assert.Equal(t, plannerSystemPrompt+client.PromptHint("stub"), c.lastSystem)
	assert.Contains(t, c.lastPrompt, "Reference context:")
	assert.Contains(t, c.lastPrompt, "## FUNCTION: printf")
	assert.Contains(t, c.lastPrompt, "Available tools:")
	assert.Contains(t, c.lastPrompt, "- `decompile-by-name(name: string)`")
	assert.Contains(t, c.lastPrompt, "limit: integer?")
	assert.Contains(t, c.lastPrompt, "User query: what does main do?")
	assert.Contains(t, c.lastPrompt, "Last tool result:")
	assert.Contains(t, c.lastPrompt, "Analysis so far:")
	assert.Contains(t, c.lastPrompt, "Remaining plan under revision:")
	assert.Contains(t, c.lastPrompt, "- list-imports()")
}

func TestPlanWithoutContextOmitsReferenceSection(t *testing.T) {
	c := &stubClient{completions: []string{`[]`}}
	p := NewPlanner(c, mockRegistry(), 0)

	_, err := p.Plan(context.Background(), NewSharedState("q"), "")

	require.NoError(t, err)
	assert.NotContains(t, c.lastPrompt, "Reference context:")
}

func TestPlanCompletionErrorSurfaces(t *testing.T) {
	c := &stubClient{completeErr: fmt.Errorf("server down")}
	p := NewPlanner(c, mockRegistry(), 0)

	_, err := p.Plan(context.Background(), NewSharedState("q"), "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "server down")
}

func TestPlanWithoutClientFails(t *testing.T) {
	p := NewPlanner(nil, mockRegistry(), 0)

	_, err := p.Plan(context.Background(), NewSharedState("q"), "")

	require.Error(t, err)
}

func TestParsePlanAcceptedFormats(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		tools []string
	}{
		{
			name:  "bare array",
			text:  `[{"tool": "list-functions", "parameters": {}}]`,
			tools: []string{"list-functions"},
		},
		{
			name:  "fenced array with alias keys",
			text:  "```json\n[{\"tool_name\": \"decompile-by-name\", \"parameters\": {\"name\": \"main\"}}]\n```",
			tools: []string{"decompile-by-name"},
		},
		{
			name:  "array inside prose",
			text:  "Here is the plan:\n[{\"tool\": \"list-functions\", \"args\": {}}]\nLet me know how it goes.",
			tools: []string{"list-functions"},
		},
		{
			name:  "single object",
			text:  `{"tool": "get-current-address", "parameters": {}}`,
			tools: []string{"get-current-address"},
		},
		{
			name: "execute commands",
			text: "EXECUTE: decompile-by-name(name=\"main\")\nEXECUTE: rename-by-name(old_name=\"FUN_00401000\", new_name=\"parse_header\")",
			tools: []string{
				"decompile-by-name",
				"rename-by-name",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, err := ParsePlan(tt.text)
			require.NoError(t, err)
			require.Len(t, calls, len(tt.tools))
			for i, tool := range tt.tools {
				assert.Equal(t, tool, calls[i].Tool)
			}
		})
	}
}

func TestParsePlanPreservesOrderAndParameters(t *testing.T) {
	calls, err := ParsePlan(`[
		{"tool": "search-functions", "parameters": {"query": "init"}},
		{"tool": "decompile-by-name", "parameters": {"name": "initialize"}}
	]`)

	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "search-functions", calls[0].Tool)
	assert.Equal(t, "init", calls[0].Parameters["query"])
	assert.Equal(t, "decompile-by-name", calls[1].Tool)
	assert.Equal(t, "initialize", calls[1].Parameters["name"])
}

func TestParsePlanEmptyListIsValid(t *testing.T) {
	calls, err := ParsePlan("[]")
	require.NoError(t, err)
	assert.Empty(t, calls)

	calls, err = ParsePlan("```json\n[]\n```")
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestParsePlanMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"blank response", "   \n"},
		{"prose without calls", "I would start by listing the functions."},
		{"entry missing tool name", `[{"parameters": {"name": "main"}}]`},
		{"list of strings", `["list-functions"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan(tt.text)
			var malformed *MalformedPlanError
			require.ErrorAs(t, err, &malformed)
		})
	}
}

func TestParsePlanNamesMissingEntry(t *testing.T) {
	_, err := ParsePlan(`[{"tool": "list-functions"}, {"parameters": {}}]`)

	var malformed *MalformedPlanError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Reason, "entry 1")
}
