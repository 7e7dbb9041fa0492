package tools

import (
	"context"
	"fmt"

	"godra/internal/ghidra"

	"google.golang.org/genai"
)

// SetDecompilerCommentTool attaches a comment to pseudocode at an address.
type SetDecompilerCommentTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewSetDecompilerCommentTool creates a new SetDecompilerCommentTool instance.
func NewSetDecompilerCommentTool(client *ghidra.Client) *SetDecompilerCommentTool {
	return &SetDecompilerCommentTool{
		client: client,
		params: paramSpec{required: []string{"address", "comment"}},
	}
}

func (t *SetDecompilerCommentTool) Name() string {
	return "set-decompiler-comment"
}

func (t *SetDecompilerCommentTool) Description() string {
	return "Set a comment at the given address in the decompiler pseudocode view."
}

func (t *SetDecompilerCommentTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"address": {
					Type:        genai.TypeString,
					Description: "Address to comment, hex with 0x prefix.",
				},
				"comment": {
					Type:        genai.TypeString,
					Description: "Comment text.",
				},
			},
			Required: []string{"address", "comment"},
		},
	}
}

// AddressParameters marks which parameters carry binary addresses.
func (t *SetDecompilerCommentTool) AddressParameters() []string {
	return []string{"address"}
}

func (t *SetDecompilerCommentTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *SetDecompilerCommentTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	address, _ := GetString(args, "address")
	comment, _ := GetString(args, "comment")

	msg, err := t.client.SetDecompilerComment(ctx, address, comment)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("setting decompiler comment at %s failed: %s", address, err)), nil
	}

	return NewSuccessResult(msg), nil
}

// SetDisassemblyCommentTool attaches a comment to the listing at an address.
type SetDisassemblyCommentTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewSetDisassemblyCommentTool creates a new SetDisassemblyCommentTool instance.
func NewSetDisassemblyCommentTool(client *ghidra.Client) *SetDisassemblyCommentTool {
	return &SetDisassemblyCommentTool{
		client: client,
		params: paramSpec{required: []string{"address", "comment"}},
	}
}

func (t *SetDisassemblyCommentTool) Name() string {
	return "set-disassembly-comment"
}

func (t *SetDisassemblyCommentTool) Description() string {
	return "Set a comment at the given address in the disassembly listing."
}

func (t *SetDisassemblyCommentTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"address": {
					Type:        genai.TypeString,
					Description: "Address to comment, hex with 0x prefix.",
				},
				"comment": {
					Type:        genai.TypeString,
					Description: "Comment text.",
				},
			},
			Required: []string{"address", "comment"},
		},
	}
}

// AddressParameters marks which parameters carry binary addresses.
func (t *SetDisassemblyCommentTool) AddressParameters() []string {
	return []string{"address"}
}

func (t *SetDisassemblyCommentTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *SetDisassemblyCommentTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	address, _ := GetString(args, "address")
	comment, _ := GetString(args, "comment")

	msg, err := t.client.SetDisassemblyComment(ctx, address, comment)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("setting disassembly comment at %s failed: %s", address, err)), nil
	}

	return NewSuccessResult(msg), nil
}
