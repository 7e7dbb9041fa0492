package highlight

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	h := New("")

	tests := []struct {
		name string
		code string
		want string
	}{
		{
			name: "decompiled c",
			code: "void main(void)\n{\n  initialize();\n  return;\n}",
			want: "c",
		},
		{
			name: "decompiler pseudo types",
			code: "undefined8 __fastcall FUN_00401000(int param_1)\n{\n  return 0;\n}",
			want: "c",
		},
		{
			name: "disassembly",
			code: "PUSH EBP\nMOV EBP,ESP",
			want: "nasm",
		},
		{
			name: "disassembly with addresses",
			code: "0x00401000: PUSH EBP\n0x00401001: MOV EBP,ESP",
			want: "nasm",
		},
		{
			name: "json document",
			code: `{"functions": [{"name": "main"}]}`,
			want: "json",
		},
		{
			name: "markdown note",
			code: "# Analysis Notes\n\nThe binary unpacks itself at startup.",
			want: "markdown",
		},
		{
			name: "single mnemonic is not a listing",
			code: "RET",
			want: "text",
		},
		{
			name: "plain prose",
			code: "the function copies its argument into a fixed buffer",
			want: "text",
		},
		{
			name: "empty",
			code: "",
			want: "text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.DetectLanguage(tt.code))
		})
	}
}

func TestHighlightPreservesContent(t *testing.T) {
	h := New("")

	code := "void main(void)\n{\n  process_data();\n}"
	out := h.Highlight(code, "c")

	require.NotEmpty(t, out)
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "process_data")
	assert.Contains(t, out, "\x1b[", "terminal256 output should carry color codes")
}

func TestHighlightUnknownLanguageFallsBack(t *testing.T) {
	h := New("")

	code := "some opaque payload"
	out := h.Highlight(code, "no-such-language")

	assert.Contains(t, out, "some opaque payload")
}

func TestHighlightWithLineNumbers(t *testing.T) {
	h := New("")

	out := h.HighlightWithLineNumbers("one\ntwo\nthree", "text", 1)

	assert.Equal(t, 3, strings.Count(out, "│"))
	assert.Contains(t, out, "two")
}

func TestHighlightWithLineNumbersStartsAtOffset(t *testing.T) {
	h := New("")

	out := h.HighlightWithLineNumbers("only", "text", 42)
	assert.Contains(t, out, "42")
}

func TestHighlightDiffKeepsLineStructure(t *testing.T) {
	h := New("")

	diff := strings.Join([]string{
		"--- a/FUN_00401000",
		"+++ b/parse_header",
		"@@ -1,3 +1,3 @@",
		"-  iVar1 = FUN_00401100(param_1);",
		"+  iVar1 = read_block(param_1);",
		"   return iVar1;",
	}, "\n")

	out := h.HighlightDiff(diff)

	assert.Len(t, strings.Split(out, "\n"), 6)
	assert.Contains(t, out, "FUN_00401100")
	assert.Contains(t, out, "read_block")
}

func TestHighlightInlineDiff(t *testing.T) {
	h := New("")

	oldOut, newOut := h.HighlightInlineDiff("int FUN_00401000(void)", "int parse_header(void)")

	assert.True(t, strings.HasPrefix(oldOut, "int "))
	assert.True(t, strings.HasPrefix(newOut, "int "))
	assert.Contains(t, oldOut, "FUN_00401000")
	assert.Contains(t, newOut, "parse_header")
	assert.True(t, strings.HasSuffix(oldOut, "(void)"))
	assert.True(t, strings.HasSuffix(newOut, "(void)"))
}

func TestHighlightInlineDiffEmptySides(t *testing.T) {
	h := New("")

	oldOut, newOut := h.HighlightInlineDiff("", "")
	assert.Empty(t, oldOut)
	assert.Empty(t, newOut)

	oldOut, newOut = h.HighlightInlineDiff("", "added")
	assert.Empty(t, oldOut)
	assert.Contains(t, newOut, "added")

	oldOut, newOut = h.HighlightInlineDiff("removed", "")
	assert.Contains(t, oldOut, "removed")
	assert.Empty(t, newOut)
}
