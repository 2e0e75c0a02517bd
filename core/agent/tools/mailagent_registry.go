package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mailagent_server/core/domain"
)

// Registry holds the registered tools and dispatches calls to them.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *Registry) RegisterAll(tools ...Tool) {
	for _, tool := range tools {
		r.Register(tool)
	}
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool, nil
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	return tools
}

// ListByCategory returns tools in the given category.
func (r *Registry) ListByCategory(category ToolCategory) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tools []Tool
	for _, tool := range r.tools {
		if tool.Category() == category {
			tools = append(tools, tool)
		}
	}
	return tools
}

// ListNames returns the registered tool names, sorted.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every tool's schema, sorted by name for a stable
// listing.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, Definition(tool))
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute dispatches one tool call. Missing required arguments are reported
// in the result envelope, not as a Go error, so callers treat schema
// violations like any other tool failure.
func (r *Registry) Execute(ctx context.Context, uc *domain.UserContext, name string, args map[string]any) (*ToolResult, error) {
	tool, err := r.Get(name)
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}, nil
	}

	if args == nil {
		args = map[string]any{}
	}
	for _, param := range tool.Parameters() {
		if param.Required {
			if _, ok := args[param.Name]; !ok {
				return &ToolResult{
					Success: false,
					Error:   fmt.Sprintf("missing required parameter: %s", param.Name),
				}, nil
			}
		}
	}

	return tool.Execute(ctx, uc, args)
}
