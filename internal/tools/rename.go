package tools

import (
	"context"
	"fmt"

	"godra/internal/ghidra"

	"google.golang.org/genai"
)

// RenameFunctionTool renames a function by its current name.
type RenameFunctionTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewRenameFunctionTool creates a new RenameFunctionTool instance.
func NewRenameFunctionTool(client *ghidra.Client) *RenameFunctionTool {
	return &RenameFunctionTool{
		client: client,
		params: paramSpec{required: []string{"old_name", "new_name"}},
	}
}

func (t *RenameFunctionTool) Name() string {
	return "rename-by-name"
}

func (t *RenameFunctionTool) Description() string {
	return "Rename a function from its current name to a new user-defined name."
}

func (t *RenameFunctionTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"old_name": {
					Type:        genai.TypeString,
					Description: "Current name of the function.",
				},
				"new_name": {
					Type:        genai.TypeString,
					Description: "New name for the function.",
				},
			},
			Required: []string{"old_name", "new_name"},
		},
	}
}

func (t *RenameFunctionTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *RenameFunctionTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	oldName, _ := GetString(args, "old_name")
	newName, _ := GetString(args, "new_name")

	msg, err := t.client.RenameFunction(ctx, oldName, newName)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("renaming %q failed: %s", oldName, err)), nil
	}

	return NewSuccessResultWithData(msg, map[string]any{
		"old_name": oldName,
		"new_name": newName,
	}), nil
}

// RenameFunctionByAddressTool renames the function at a given address.
type RenameFunctionByAddressTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewRenameFunctionByAddressTool creates a new RenameFunctionByAddressTool instance.
func NewRenameFunctionByAddressTool(client *ghidra.Client) *RenameFunctionByAddressTool {
	return &RenameFunctionByAddressTool{
		client: client,
		params: paramSpec{required: []string{"address", "new_name"}},
	}
}

func (t *RenameFunctionByAddressTool) Name() string {
	return "rename-by-address"
}

func (t *RenameFunctionByAddressTool) Description() string {
	return "Rename the function at the given address. Use rename-by-name instead if you only know the current name."
}

func (t *RenameFunctionByAddressTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"address": {
					Type:        genai.TypeString,
					Description: "Entry point address of the function, hex with 0x prefix.",
				},
				"new_name": {
					Type:        genai.TypeString,
					Description: "New name for the function.",
				},
			},
			Required: []string{"address", "new_name"},
		},
	}
}

// AddressParameters marks which parameters carry binary addresses.
func (t *RenameFunctionByAddressTool) AddressParameters() []string {
	return []string{"address"}
}

func (t *RenameFunctionByAddressTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *RenameFunctionByAddressTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	address, _ := GetString(args, "address")
	newName, _ := GetString(args, "new_name")

	msg, err := t.client.RenameFunctionByAddress(ctx, address, newName)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("renaming function at %s failed: %s", address, err)), nil
	}

	return NewSuccessResultWithData(msg, map[string]any{
		"address":  address,
		"new_name": newName,
	}), nil
}
