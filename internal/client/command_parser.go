package client

import (
	"regexp"
	"strconv"
	"strings"

	"godra/internal/logging"
)

// commandPattern matches the EXECUTE command format some models fall back
// to: EXECUTE: tool-name(param="value", count=3)
var commandPattern = regexp.MustCompile(`EXECUTE:\s*([\w-]+)\((.*?)\)`)

// paramAliases maps parameter names models commonly get wrong to the
// catalogue's names, per tool.
var paramAliases = map[string]map[string]string{
	"rename-by-address": {
		"function_address": "address",
		"functionAddress":  "address",
	},
	"decompile-by-address": {
		"function_address": "address",
		"functionAddress":  "address",
	},
}

// ParseCommands extracts EXECUTE commands from model output.
//
// The parameter grammar: a comma-separated list of key=value pairs, where
// a value is one of
//   - a double- or single-quoted string with backslash escapes
//     (\" \' \\ \n \t \r)
//   - true or false
//   - null (parsed as nil)
//   - an integer or float
//   - anything else, taken as a bare string
func ParseCommands(text string) []ToolCall {
	matches := commandPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	calls := make([]ToolCall, 0, len(matches))
	for _, match := range matches {
		name := match[1]
		params := parseCommandParams(match[2])
		normalizeCommandParams(name, params)

		logging.Debug("parsed EXECUTE command", "tool", name, "params_count", len(params))
		calls = append(calls, ToolCall{Tool: name, Params: params})
	}
	return calls
}

// parseCommandParams parses the parameter list of a single command.
func parseCommandParams(text string) map[string]any {
	params := make(map[string]any)

	for _, pair := range splitParams(text) {
		eq := strings.Index(pair, "=")
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(pair[:eq])
		if key == "" {
			continue
		}
		params[key] = parseValue(strings.TrimSpace(pair[eq+1:]))
	}

	return params
}

// splitParams splits on commas that are outside quoted strings. Both
// quote styles are honored, and a backslash escapes the next character
// inside a quoted string.
func splitParams(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	var current strings.Builder
	var quote byte
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if escaped {
			current.WriteByte(ch)
			escaped = false
			continue
		}
		if quote != 0 && ch == '\\' {
			current.WriteByte(ch)
			escaped = true
			continue
		}
		if ch == '"' || ch == '\'' {
			if quote == 0 {
				quote = ch
			} else if quote == ch {
				quote = 0
			}
			current.WriteByte(ch)
			continue
		}
		if ch == ',' && quote == 0 {
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
			continue
		}
		current.WriteByte(ch)
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		parts = append(parts, s)
	}
	return parts
}

// parseValue turns a raw parameter value into a typed Go value.
func parseValue(raw string) any {
	if raw == "" {
		return ""
	}

	if len(raw) >= 2 {
		first, last := raw[0], raw[len(raw)-1]
		if (first == '"' || first == '\'') && last == first {
			return unescape(raw[1 : len(raw)-1])
		}
	}

	switch raw {
	case "true", "True":
		return true
	case "false", "False":
		return false
	case "null", "None":
		return nil
	}

	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return int(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}

	// Bare string fallback
	return raw
}

// unescape resolves backslash escapes inside a quoted string. Unknown
// escape sequences keep the backslash.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' || i+1 >= len(s) {
			sb.WriteByte(ch)
			continue
		}
		i++
		switch s[i] {
		case '"':
			sb.WriteByte('"')
		case '\'':
			sb.WriteByte('\'')
		case '\\':
			sb.WriteByte('\\')
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// normalizeCommandParams fixes parameter mistakes models make often
// enough to be worth correcting rather than rejecting.
func normalizeCommandParams(name string, params map[string]any) {
	if aliases, ok := paramAliases[name]; ok {
		for wrong, correct := range aliases {
			if val, exists := params[wrong]; exists {
				if _, taken := params[correct]; !taken {
					params[correct] = val
					logging.Debug("corrected parameter name", "tool", name, "from", wrong, "to", correct)
				}
				delete(params, wrong)
			}
		}
	}

	// A FUN_ prefixed value in an address slot is a default Ghidra name,
	// not an address. The hex part after the prefix is the address.
	if name == "rename-by-address" {
		if addr, ok := params["address"].(string); ok && strings.HasPrefix(addr, "FUN_") {
			if isHex(addr[4:]) {
				params["address"] = addr[4:]
			}
		}
	}
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
