package tools

import (
	"context"
	"fmt"
	"strings"

	"godra/internal/ghidra"

	"google.golang.org/genai"
)

// ListImportsTool lists symbols the program imports.
type ListImportsTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewListImportsTool creates a new ListImportsTool instance.
func NewListImportsTool(client *ghidra.Client) *ListImportsTool {
	return &ListImportsTool{
		client: client,
		params: paramSpec{optional: []string{"offset", "limit"}},
	}
}

func (t *ListImportsTool) Name() string {
	return "list-imports"
}

func (t *ListImportsTool) Description() string {
	return "List imported symbols with the library they come from. Optional offset and limit paginate the results."
}

func (t *ListImportsTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"offset": {
					Type:        genai.TypeInteger,
					Description: "Result offset to start from. Optional, defaults to 0.",
				},
				"limit": {
					Type:        genai.TypeInteger,
					Description: "Maximum number of results. Optional, defaults to 100.",
				},
			},
		},
	}
}

func (t *ListImportsTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *ListImportsTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	offset := GetIntDefault(args, "offset", 0)
	limit := GetIntDefault(args, "limit", defaultPageLimit)

	imports, err := t.client.ListImports(ctx, offset, limit)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("listing imports failed: %s", err)), nil
	}

	return NewSuccessResultWithData(strings.Join(imports, "\n"), imports), nil
}

// ListExportsTool lists symbols the program exports.
type ListExportsTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewListExportsTool creates a new ListExportsTool instance.
func NewListExportsTool(client *ghidra.Client) *ListExportsTool {
	return &ListExportsTool{
		client: client,
		params: paramSpec{optional: []string{"offset", "limit"}},
	}
}

func (t *ListExportsTool) Name() string {
	return "list-exports"
}

func (t *ListExportsTool) Description() string {
	return "List exported functions and symbols. Optional offset and limit paginate the results."
}

func (t *ListExportsTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"offset": {
					Type:        genai.TypeInteger,
					Description: "Result offset to start from. Optional, defaults to 0.",
				},
				"limit": {
					Type:        genai.TypeInteger,
					Description: "Maximum number of results. Optional, defaults to 100.",
				},
			},
		},
	}
}

func (t *ListExportsTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *ListExportsTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	offset := GetIntDefault(args, "offset", 0)
	limit := GetIntDefault(args, "limit", defaultPageLimit)

	exports, err := t.client.ListExports(ctx, offset, limit)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("listing exports failed: %s", err)), nil
	}

	return NewSuccessResultWithData(strings.Join(exports, "\n"), exports), nil
}
