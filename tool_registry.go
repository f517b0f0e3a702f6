package llmprovider

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

type registeredTool struct {
	def      ToolDefinition
	executor ToolExecutor
}

// ToolRegistry binds tool definitions to the executors that run them.
// It supplies ChatOptions.Tools and answers the ToolUseBlocks a provider returns.
type ToolRegistry struct {
	tools map[string]registeredTool
	order []string
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]registeredTool),
	}
}

// Register adds a tool. The definition is validated against every schema
// dialect up front so an unmappable parameter fails here, not mid-conversation.
func (r *ToolRegistry) Register(def ToolDefinition, executor ToolExecutor) error {
	if err := def.Validate(); err != nil {
		return err
	}

	if executor == nil {
		return fmt.Errorf("executor is required for tool %s", def.Name)
	}

	for _, dialect := range []SchemaDialect{JSONSchemaDialect, OpenAPIDialect} {
		if _, err := ToProviderSchema([]ToolDefinition{def}, dialect); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s is already registered", def.Name)
	}

	r.tools[def.Name] = registeredTool{def: def, executor: executor}
	r.order = append(r.order, def.Name)
	return nil
}

// Unregister removes a tool from the registry
func (r *ToolRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s is not registered", name)
	}

	delete(r.tools, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	return nil
}

// IsRegistered checks if a tool is registered
func (r *ToolRegistry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Definitions returns the registered definitions in registration order,
// ready for ChatOptions.Tools.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].def)
	}
	return defs
}

// Execute runs the tool named by use. Unknown tools produce an error result
// rather than a Go error so the model can recover.
func (r *ToolRegistry) Execute(ctx context.Context, use ToolUseBlock) ToolResultBlock {
	r.mu.RLock()
	tool, exists := r.tools[use.Name]
	r.mu.RUnlock()

	if !exists {
		return NewToolResult(use, ToolExecution{Error: fmt.Sprintf("unknown tool: %s", use.Name)})
	}
	return NewToolResult(use, tool.executor.Execute(ctx, use))
}

// ExecuteAll answers every tool call in order and returns the user turn that
// carries the results back to the provider.
func (r *ToolRegistry) ExecuteAll(ctx context.Context, uses []ToolUseBlock) ProviderMessage {
	results := make([]ToolResultBlock, 0, len(uses))
	for _, use := range uses {
		results = append(results, r.Execute(ctx, use))
	}
	return ProviderMessage{Role: RoleUser, ToolResults: results}
}
