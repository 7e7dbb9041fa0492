package highlight

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// Highlighter provides syntax highlighting for decompiled code,
// disassembly listings, and diffs between function versions.
type Highlighter struct {
	style     string
	formatter chroma.Formatter
}

// New creates a new Highlighter with the specified style.
// Supported styles: "monokai", "dracula", "github-dark", "native".
func New(style string) *Highlighter {
	if style == "" {
		style = "monokai"
	}

	return &Highlighter{
		style:     style,
		formatter: formatters.Get("terminal256"),
	}
}

// Highlight applies syntax highlighting to code based on language.
func (h *Highlighter) Highlight(code, lang string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(h.style)
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, style, iterator); err != nil {
		return code
	}

	return buf.String()
}

// HighlightWithLineNumbers highlights code with line numbers.
func (h *Highlighter) HighlightWithLineNumbers(code, lang string, startLine int) string {
	highlighted := h.Highlight(code, lang)
	lines := strings.Split(highlighted, "\n")

	lineNumStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	var result strings.Builder
	for i, line := range lines {
		lineNum := startLine + i
		result.WriteString(lineNumStyle.Render(padLeft(lineNum, 4)))
		result.WriteString(" │ ")
		result.WriteString(line)
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}

	return result.String()
}

// HighlightDiff applies syntax highlighting to unified diff output.
func (h *Highlighter) HighlightDiff(diff string) string {
	addedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)   // Green
	removedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true) // Red
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true)  // Cyan
	hunkStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))               // Purple
	contextStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))            // Gray

	lines := strings.Split(diff, "\n")
	var result strings.Builder

	for i, line := range lines {
		var styledLine string

		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			styledLine = headerStyle.Render(line)
		case strings.HasPrefix(line, "@@"):
			styledLine = hunkStyle.Render(line)
		case strings.HasPrefix(line, "+"):
			styledLine = addedStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			styledLine = removedStyle.Render(line)
		default:
			styledLine = contextStyle.Render(line)
		}

		result.WriteString(styledLine)
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}

	return result.String()
}

// HighlightInlineDiff highlights the changed span within a modified line
// pair. Renames show up as single-identifier changes, so the span view is
// usually much easier to read than whole-line coloring.
func (h *Highlighter) HighlightInlineDiff(oldLine, newLine string) (string, string) {
	if oldLine == "" && newLine == "" {
		return "", ""
	}

	addedStyle := lipgloss.NewStyle().Background(lipgloss.Color("#064E3B")).Foreground(lipgloss.Color("#6EE7B7"))
	removedStyle := lipgloss.NewStyle().Background(lipgloss.Color("#7F1D1D")).Foreground(lipgloss.Color("#FCA5A5"))

	if oldLine == "" {
		return "", addedStyle.Render(newLine)
	}
	if newLine == "" {
		return removedStyle.Render(oldLine), ""
	}

	prefix := commonPrefix(oldLine, newLine)
	suffix := commonSuffix(oldLine[len(prefix):], newLine[len(prefix):])

	oldMiddle := oldLine[len(prefix) : len(oldLine)-len(suffix)]
	newMiddle := newLine[len(prefix) : len(newLine)-len(suffix)]

	highlightedOld := prefix + removedStyle.Render(oldMiddle) + suffix
	highlightedNew := prefix + addedStyle.Render(newMiddle) + suffix

	return highlightedOld, highlightedNew
}

var mnemonicPattern = regexp.MustCompile(`(?m)^\s*(?:0x[0-9a-fA-F]+:?\s+)?(?:PUSH|POP|MOV|MOVZX|MOVSX|LEA|CALL|RET|RETN|JMP|JZ|JNZ|JE|JNE|JG|JL|JGE|JLE|ADD|SUB|MUL|IMUL|DIV|XOR|AND|OR|NOT|SHL|SHR|CMP|TEST|NOP|INT)\b`)

var cMarkerPattern = regexp.MustCompile(`\b(?:void|int|char|long|short|float|double|unsigned|return|undefined\d*|__fastcall|__cdecl|__stdcall)\b`)

// DetectLanguage guesses the language of tool output from its content.
// Tool payloads carry no filename, so detection keys on the shapes the
// analysis actually produces: JSON documents, disassembly listings,
// decompiled C, and markdown notes. Everything else is plain text.
func (h *Highlighter) DetectLanguage(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "text"
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			return "json"
		}
	}

	if len(mnemonicPattern.FindAllStringIndex(trimmed, 2)) >= 2 {
		return "nasm"
	}

	if cMarkerPattern.MatchString(trimmed) && strings.Contains(trimmed, "{") && strings.Contains(trimmed, ";") {
		return "c"
	}

	if strings.HasPrefix(trimmed, "# ") || strings.Contains(trimmed, "\n## ") {
		return "markdown"
	}

	return "text"
}

// Helper functions

func padLeft(num, width int) string {
	s := strings.Repeat(" ", width)
	numStr := itoa(num)
	if len(numStr) >= width {
		return numStr
	}
	return s[:width-len(numStr)] + numStr
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func commonPrefix(a, b string) string {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}

	for i := 0; i < minLen; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:minLen]
}

func commonSuffix(a, b string) string {
	if len(a) == 0 || len(b) == 0 {
		return ""
	}

	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}

	for i := 0; i < minLen; i++ {
		if a[len(a)-1-i] != b[len(b)-1-i] {
			if i == 0 {
				return ""
			}
			return a[len(a)-i:]
		}
	}
	return a[len(a)-minLen:]
}
