package tools

import (
	"context"
	"fmt"
	"strings"

	"godra/internal/ghidra"

	"google.golang.org/genai"
)

// DecompileFunctionTool decompiles a function by name into C pseudocode.
type DecompileFunctionTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewDecompileFunctionTool creates a new DecompileFunctionTool instance.
func NewDecompileFunctionTool(client *ghidra.Client) *DecompileFunctionTool {
	return &DecompileFunctionTool{
		client: client,
		params: paramSpec{required: []string{"name"}},
	}
}

func (t *DecompileFunctionTool) Name() string {
	return "decompile-by-name"
}

func (t *DecompileFunctionTool) Description() string {
	return "Decompile a function by name and return its C pseudocode."
}

func (t *DecompileFunctionTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name": {
					Type:        genai.TypeString,
					Description: "Exact name of the function to decompile.",
				},
			},
			Required: []string{"name"},
		},
	}
}

func (t *DecompileFunctionTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *DecompileFunctionTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	name, _ := GetString(args, "name")

	code, err := t.client.DecompileFunction(ctx, name)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("decompiling %q failed: %s", name, err)), nil
	}

	return NewSuccessResultWithData(code, map[string]any{"name": name}), nil
}

// DecompileFunctionByAddressTool decompiles the function containing an address.
type DecompileFunctionByAddressTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewDecompileFunctionByAddressTool creates a new DecompileFunctionByAddressTool instance.
func NewDecompileFunctionByAddressTool(client *ghidra.Client) *DecompileFunctionByAddressTool {
	return &DecompileFunctionByAddressTool{
		client: client,
		params: paramSpec{required: []string{"address"}},
	}
}

func (t *DecompileFunctionByAddressTool) Name() string {
	return "decompile-by-address"
}

func (t *DecompileFunctionByAddressTool) Description() string {
	return "Decompile the function at the given address and return its C pseudocode."
}

func (t *DecompileFunctionByAddressTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"address": {
					Type:        genai.TypeString,
					Description: "Address inside the function, hex with 0x prefix (e.g. 0x00401000).",
				},
			},
			Required: []string{"address"},
		},
	}
}

// AddressParameters marks which parameters carry binary addresses.
func (t *DecompileFunctionByAddressTool) AddressParameters() []string {
	return []string{"address"}
}

func (t *DecompileFunctionByAddressTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *DecompileFunctionByAddressTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	address, _ := GetString(args, "address")

	code, err := t.client.DecompileAddress(ctx, address)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("decompiling address %s failed: %s", address, err)), nil
	}

	return NewSuccessResultWithData(code, map[string]any{"address": address}), nil
}

// DisassembleFunctionTool returns the assembly listing for a function.
type DisassembleFunctionTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewDisassembleFunctionTool creates a new DisassembleFunctionTool instance.
func NewDisassembleFunctionTool(client *ghidra.Client) *DisassembleFunctionTool {
	return &DisassembleFunctionTool{
		client: client,
		params: paramSpec{required: []string{"address"}},
	}
}

func (t *DisassembleFunctionTool) Name() string {
	return "disassemble-function"
}

func (t *DisassembleFunctionTool) Description() string {
	return "Get the assembly listing (address: instruction) for the function at the given address."
}

func (t *DisassembleFunctionTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"address": {
					Type:        genai.TypeString,
					Description: "Function address, hex with 0x prefix (e.g. 0x00401000).",
				},
			},
			Required: []string{"address"},
		},
	}
}

// AddressParameters marks which parameters carry binary addresses.
func (t *DisassembleFunctionTool) AddressParameters() []string {
	return []string{"address"}
}

func (t *DisassembleFunctionTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *DisassembleFunctionTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	address, _ := GetString(args, "address")

	lines, err := t.client.DisassembleFunction(ctx, address)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("disassembling address %s failed: %s", address, err)), nil
	}

	return NewSuccessResultWithData(strings.Join(lines, "\n"), lines), nil
}
