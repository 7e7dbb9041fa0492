package tools

import (
	"context"
	"fmt"
	"strings"

	"godra/internal/ghidra"

	"google.golang.org/genai"
)

const defaultPageLimit = 100

// ListFunctionsTool lists every function the program database knows about.
type ListFunctionsTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewListFunctionsTool creates a new ListFunctionsTool instance.
func NewListFunctionsTool(client *ghidra.Client) *ListFunctionsTool {
	return &ListFunctionsTool{
		client: client,
		params: paramSpec{optional: []string{"offset", "limit"}},
	}
}

func (t *ListFunctionsTool) Name() string {
	return "list-functions"
}

func (t *ListFunctionsTool) Description() string {
	return "List all functions in the program database. Optional offset and limit paginate the results."
}

func (t *ListFunctionsTool) Declaration() *genai.FunctionDeclaration {
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

func (t *ListFunctionsTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *ListFunctionsTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	offset := GetIntDefault(args, "offset", 0)
	limit := GetIntDefault(args, "limit", defaultPageLimit)

	names, err := t.client.ListFunctions(ctx, offset, limit)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("listing functions failed: %s", err)), nil
	}

	return NewSuccessResultWithData(strings.Join(names, "\n"), names), nil
}

// SearchFunctionsByNameTool finds functions whose name contains a substring.
type SearchFunctionsByNameTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewSearchFunctionsByNameTool creates a new SearchFunctionsByNameTool instance.
func NewSearchFunctionsByNameTool(client *ghidra.Client) *SearchFunctionsByNameTool {
	return &SearchFunctionsByNameTool{
		client: client,
		params: paramSpec{
			required: []string{"query"},
			optional: []string{"offset", "limit"},
		},
	}
}

func (t *SearchFunctionsByNameTool) Name() string {
	return "search-functions"
}

func (t *SearchFunctionsByNameTool) Description() string {
	return "Search for functions whose name contains the given substring. Returns matching names with their addresses."
}

func (t *SearchFunctionsByNameTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {
					Type:        genai.TypeString,
					Description: "Substring to search for in function names.",
				},
				"offset": {
					Type:        genai.TypeInteger,
					Description: "Result offset to start from. Optional, defaults to 0.",
				},
				"limit": {
					Type:        genai.TypeInteger,
					Description: "Maximum number of results. Optional, defaults to 100.",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *SearchFunctionsByNameTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *SearchFunctionsByNameTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	query, _ := GetString(args, "query")
	offset := GetIntDefault(args, "offset", 0)
	limit := GetIntDefault(args, "limit", defaultPageLimit)

	matches, err := t.client.SearchFunctions(ctx, query, offset, limit)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("searching functions failed: %s", err)), nil
	}

	if len(matches) == 0 {
		return NewSuccessResult(fmt.Sprintf("No functions matching %q", query)), nil
	}

	return NewSuccessResultWithData(strings.Join(matches, "\n"), matches), nil
}

// GetCurrentFunctionTool reports the function selected in the Ghidra UI.
type GetCurrentFunctionTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewGetCurrentFunctionTool creates a new GetCurrentFunctionTool instance.
func NewGetCurrentFunctionTool(client *ghidra.Client) *GetCurrentFunctionTool {
	return &GetCurrentFunctionTool{client: client}
}

func (t *GetCurrentFunctionTool) Name() string {
	return "get-current-function"
}

func (t *GetCurrentFunctionTool) Description() string {
	return "Get the function currently selected in the Ghidra UI. Takes no parameters."
}

func (t *GetCurrentFunctionTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		},
	}
}

func (t *GetCurrentFunctionTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *GetCurrentFunctionTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	fn, err := t.client.GetCurrentFunction(ctx)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("getting current function failed: %s", err)), nil
	}
	return NewSuccessResult(fn), nil
}

// GetCurrentAddressTool reports the address selected in the Ghidra UI.
type GetCurrentAddressTool struct {
	client *ghidra.Client
	params paramSpec
}

// NewGetCurrentAddressTool creates a new GetCurrentAddressTool instance.
func NewGetCurrentAddressTool(client *ghidra.Client) *GetCurrentAddressTool {
	return &GetCurrentAddressTool{client: client}
}

func (t *GetCurrentAddressTool) Name() string {
	return "get-current-address"
}

func (t *GetCurrentAddressTool) Description() string {
	return "Get the address currently selected in the Ghidra UI. Takes no parameters."
}

func (t *GetCurrentAddressTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		},
	}
}

func (t *GetCurrentAddressTool) Validate(args map[string]any) error {
	return t.params.check(args)
}

func (t *GetCurrentAddressTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	addr, err := t.client.GetCurrentAddress(ctx)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("getting current address failed: %s", err)), nil
	}
	return NewSuccessResult(addr), nil
}
