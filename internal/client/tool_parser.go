package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"godra/internal/logging"
)

// toolCallJSON covers the JSON shapes models emit for tool calls. "tool"
// and "tool_name" are aliases, as are "args", "params" and "parameters".
type toolCallJSON struct {
	Tool       string         `json:"tool"`
	ToolName   string         `json:"tool_name"`
	Name       string         `json:"name"`
	Args       map[string]any `json:"args"`
	Params     map[string]any `json:"params"`
	Parameters map[string]any `json:"parameters"`
}

// ParseToolCalls attempts to extract tool calls from model text output.
// Supports multiple formats:
//   - {"tool": "name", "args": {...}}
//   - {"tool_name": "name", "parameters": {...}}
//   - ```json\n{"tool": "name", "args": {...}}\n```
//   - a JSON array of any of the above
//   - multiple tool calls in sequence
func ParseToolCalls(text string) []ToolCall {
	if text == "" {
		return nil
	}

	// Try extracting from JSON code blocks first
	if calls := extractFromCodeBlocks(text); len(calls) > 0 {
		return calls
	}

	// Then bare JSON arrays and objects
	if calls := extractFromBareJSON(text); len(calls) > 0 {
		return calls
	}

	return nil
}

var codeBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?([\\[{].*?[\\]}])\\s*\\n?```")

// extractFromCodeBlocks extracts tool calls from ```json ... ``` blocks.
func extractFromCodeBlocks(text string) []ToolCall {
	matches := codeBlockPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var calls []ToolCall
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		calls = append(calls, parseToolCallValue(match[1])...)
	}
	return calls
}

// extractFromBareJSON extracts tool calls from bare JSON in text.
func extractFromBareJSON(text string) []ToolCall {
	var calls []ToolCall
	for _, obj := range findJSONValues(text) {
		calls = append(calls, parseToolCallValue(obj)...)
	}
	return calls
}

// findJSONValues extracts JSON objects and arrays from text by matching
// brackets, tracking string literals and escapes.
func findJSONValues(text string) []string {
	var values []string
	i := 0
	for i < len(text) {
		open := text[i]
		if open != '{' && open != '[' {
			i++
			continue
		}

		depth := 0
		inString := false
		escaped := false
		j := i
		for j < len(text) {
			ch := text[j]
			if escaped {
				escaped = false
				j++
				continue
			}
			if ch == '\\' && inString {
				escaped = true
				j++
				continue
			}
			if ch == '"' {
				inString = !inString
			}
			if !inString {
				switch ch {
				case '{', '[':
					depth++
				case '}', ']':
					depth--
				}
				if depth == 0 {
					candidate := text[i : j+1]
					// Must mention a tool key to be worth decoding
					if strings.Contains(candidate, `"tool"`) ||
						strings.Contains(candidate, `"tool_name"`) ||
						strings.Contains(candidate, `"name"`) {
						values = append(values, candidate)
					}
					break
				}
			}
			j++
		}
		if depth != 0 {
			// Unmatched bracket, skip
			i++
			continue
		}
		i = j + 1
	}
	return values
}

// parseToolCallValue parses a JSON object or array of objects as tool calls.
func parseToolCallValue(jsonStr string) []ToolCall {
	jsonStr = strings.TrimSpace(jsonStr)
	if jsonStr == "" {
		return nil
	}

	if jsonStr[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(jsonStr), &items); err != nil {
			return nil
		}
		var calls []ToolCall
		for _, item := range items {
			if call, ok := parseToolCallObject(string(item)); ok {
				calls = append(calls, call)
			}
		}
		return calls
	}

	if call, ok := parseToolCallObject(jsonStr); ok {
		return []ToolCall{call}
	}
	return nil
}

// parseToolCallObject parses a single JSON object as a tool call.
func parseToolCallObject(jsonStr string) (ToolCall, bool) {
	var tc toolCallJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(jsonStr)), &tc); err != nil {
		return ToolCall{}, false
	}

	toolName := tc.Tool
	if toolName == "" {
		toolName = tc.ToolName
	}
	if toolName == "" {
		toolName = tc.Name
	}
	if toolName == "" {
		return ToolCall{}, false
	}

	params := tc.Args
	if params == nil {
		params = tc.Params
	}
	if params == nil {
		params = tc.Parameters
	}
	if params == nil {
		params = make(map[string]any)
	}

	logging.Debug("parsed tool call from text", "tool", toolName, "params_count", len(params))

	return ToolCall{Tool: toolName, Params: params}, true
}
