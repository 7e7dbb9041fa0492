package tools

import (
	"fmt"
	"sync"

	"godra/internal/ghidra"
	"godra/internal/logging"

	"google.golang.org/genai"
)

// Registry manages the collection of available tools. Registration order
// is preserved so the catalogue renders the same way every run.
type Registry struct {
	tools map[string]Tool
	order []string
	mu    sync.RWMutex
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Get retrieves a tool by name (read-optimized with RLock).
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Names returns the names of all registered tools in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Declarations returns all tool declarations in registration order.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	declarations := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		declarations = append(declarations, r.tools[name].Declaration())
	}
	return declarations
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}

	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// MustRegister adds a tool to the registry and logs a warning on error.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		logging.Warn("failed to register tool", "tool", tool.Name(), "error", err)
	}
}

// DefaultRegistry creates a registry with the full tool catalogue, all
// backed by the given bridge client.
func DefaultRegistry(client *ghidra.Client) *Registry {
	r := NewRegistry()

	r.MustRegister(NewListFunctionsTool(client))
	r.MustRegister(NewDecompileFunctionTool(client))
	r.MustRegister(NewDecompileFunctionByAddressTool(client))
	r.MustRegister(NewDisassembleFunctionTool(client))
	r.MustRegister(NewRenameFunctionTool(client))
	r.MustRegister(NewRenameFunctionByAddressTool(client))
	r.MustRegister(NewSearchFunctionsByNameTool(client))
	r.MustRegister(NewListImportsTool(client))
	r.MustRegister(NewListExportsTool(client))
	r.MustRegister(NewGetCurrentFunctionTool(client))
	r.MustRegister(NewGetCurrentAddressTool(client))
	r.MustRegister(NewSetDecompilerCommentTool(client))
	r.MustRegister(NewSetDisassemblyCommentTool(client))

	return r
}
