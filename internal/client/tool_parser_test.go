package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCallsFromCodeBlock(t *testing.T) {
	text := "I'll list the functions first.\n\n```json\n{\"tool\": \"list-functions\", \"args\": {}}\n```"

	calls := ParseToolCalls(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "list-functions", calls[0].Tool)
	assert.NotNil(t, calls[0].Params)
	assert.Empty(t, calls[0].Params)
}

func TestParseToolCallsFromBareJSON(t *testing.T) {
	text := `{"tool": "decompile-by-name", "args": {"name": "main"}}`

	calls := ParseToolCalls(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "decompile-by-name", calls[0].Tool)
	assert.Equal(t, "main", calls[0].Params["name"])
}

func TestParseToolCallsToolNameParametersAliases(t *testing.T) {
	text := `{"tool_name": "rename-by-name", "parameters": {"old_name": "FUN_00401000", "new_name": "parse_header"}}`

	calls := ParseToolCalls(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "rename-by-name", calls[0].Tool)
	assert.Equal(t, "FUN_00401000", calls[0].Params["old_name"])
}

func TestParseToolCallsArray(t *testing.T) {
	text := "```json\n[{\"tool\": \"list-functions\", \"args\": {}}, {\"tool\": \"decompile-by-name\", \"args\": {\"name\": \"main\"}}]\n```"

	calls := ParseToolCalls(text)
	require.Len(t, calls, 2)
	assert.Equal(t, "list-functions", calls[0].Tool)
	assert.Equal(t, "decompile-by-name", calls[1].Tool)
}

func TestParseToolCallsMultipleObjects(t *testing.T) {
	text := `First: {"tool": "list-functions", "args": {}}
Then: {"tool": "list-imports", "args": {"limit": 10}}`

	calls := ParseToolCalls(text)
	require.Len(t, calls, 2)
	assert.Equal(t, "list-imports", calls[1].Tool)
	assert.Equal(t, float64(10), calls[1].Params["limit"])
}

func TestParseToolCallsQuotedBracesIgnored(t *testing.T) {
	text := `{"tool": "set-decompiler-comment", "args": {"address": "0x1000", "comment": "init {state}"}}`

	calls := ParseToolCalls(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "init {state}", calls[0].Params["comment"])
}

func TestParseToolCallsIgnoresUnrelatedJSON(t *testing.T) {
	assert.Nil(t, ParseToolCalls(`{"status": "ok", "count": 3}`))
	assert.Nil(t, ParseToolCalls("no json here"))
	assert.Nil(t, ParseToolCalls(""))
}
