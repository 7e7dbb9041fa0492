package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeFunctionListingLeadIn(t *testing.T) {
	var a Analyzer
	out := a.Analyze("List all functions", &ExecutionResult{
		Status:  StatusSuccess,
		Tool:    "list-functions",
		Payload: "main\ninitialize\nprocess_data\ncleanup",
	}, "")

	assert.True(t, strings.HasPrefix(out, "The following functions were found:\n"))
	assert.Equal(t, "The following functions were found:\nmain\ninitialize\nprocess_data\ncleanup", out)
}

func TestAnalyzeDecompileQuotesCodeVerbatim(t *testing.T) {
	var a Analyzer
	code := "void main(void)\n{\n  int local_8;\n\n  local_8 = 0;\n  return;\n}"

	out := a.Analyze("decompile main", &ExecutionResult{
		Status:  StatusSuccess,
		Tool:    "decompile-by-name",
		Params:  map[string]any{"name": "main"},
		Payload: code,
	}, "")

	assert.Equal(t, "Decompiled function main:\n"+code, out)
}

func TestAnalyzeDecompileByAddressNamesTheAddress(t *testing.T) {
	var a Analyzer
	out := a.Analyze("q", &ExecutionResult{
		Status:  StatusSuccess,
		Tool:    "decompile-by-address",
		Params:  map[string]any{"address": "0x00401000"},
		Payload: "void main(void) {}",
	}, "")

	assert.True(t, strings.HasPrefix(out, "Decompiled function 0x00401000:\n"))
}

func TestAnalyzeAppendsFindings(t *testing.T) {
	var a Analyzer

	first := a.Analyze("q", &ExecutionResult{
		Status:  StatusSuccess,
		Tool:    "list-functions",
		Payload: "main",
	}, "")
	second := a.Analyze("q", &ExecutionResult{
		Status:  StatusSuccess,
		Tool:    "get-current-address",
		Payload: "0x00401000",
	}, first)

	assert.True(t, strings.HasPrefix(second, first))
	assert.Contains(t, second, "\n\nTool get-current-address succeeded: 0x00401000")
}

func TestAnalyzeErrorFinding(t *testing.T) {
	var a Analyzer
	out := a.Analyze("q", &ExecutionResult{
		Status:  StatusError,
		Tool:    "foo_bar",
		Message: "tool not found: foo_bar",
	}, "")

	assert.Equal(t, "Tool foo_bar failed: tool not found: foo_bar", out)
}

func TestAnalyzeErrorWithoutToolUsesBareMessage(t *testing.T) {
	var a Analyzer
	out := a.Analyze("q", &ExecutionResult{
		Status:  StatusError,
		Message: "planning failed: model unavailable",
	}, "")

	assert.Equal(t, "planning failed: model unavailable", out)
}

func TestAnalyzeNoPlanFinding(t *testing.T) {
	var a Analyzer
	out := a.Analyze("q", &ExecutionResult{
		Status:  StatusNoPlan,
		Message: "no tool calls in plan",
	}, "")

	assert.Equal(t, "No tool was executed: no tool calls in plan.", out)
}

func TestAnalyzeNilResultKeepsAnalysis(t *testing.T) {
	var a Analyzer
	assert.Equal(t, "prior findings", a.Analyze("q", nil, "prior findings"))
}

func TestAnalyzeEmptyListing(t *testing.T) {
	var a Analyzer
	out := a.Analyze("q", &ExecutionResult{
		Status: StatusSuccess,
		Tool:   "list-imports",
	}, "")

	assert.Equal(t, "The following imports were found: (none)", out)
}

func TestAnalyzeSearchResults(t *testing.T) {
	var a Analyzer

	hit := a.Analyze("q", &ExecutionResult{
		Status:  StatusSuccess,
		Tool:    "search-functions",
		Payload: "process_data @ 0x00401200",
	}, "")
	assert.Equal(t, "The following functions were found:\nprocess_data @ 0x00401200", hit)

	miss := a.Analyze("q", &ExecutionResult{
		Status:  StatusSuccess,
		Tool:    "search-functions",
		Payload: `No functions matching "xyz"`,
	}, "")
	assert.Equal(t, `No functions matching "xyz"`, miss)
}

func TestAnalyzeDisassemblyFinding(t *testing.T) {
	var a Analyzer
	out := a.Analyze("q", &ExecutionResult{
		Status:  StatusSuccess,
		Tool:    "disassemble-function",
		Params:  map[string]any{"address": "0x00401000"},
		Payload: "PUSH EBP\nMOV EBP,ESP",
	}, "")

	assert.Equal(t, "Disassembly of the function at 0x00401000:\nPUSH EBP\nMOV EBP,ESP", out)
}
