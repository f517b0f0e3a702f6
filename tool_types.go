package llmprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/kaptinlin/jsonrepair"
)

// ParamType is the vendor-neutral type of a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
)

// ToolParameter describes one argument of a tool.
type ToolParameter struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool

	// Enum restricts a string parameter to a fixed set of values.
	// A parameter with Enum and no Type is treated as a string.
	Enum []string

	// Items is the element schema of an array parameter
	Items *ToolParameter

	// Properties are the fields of an object parameter
	Properties []ToolParameter
}

// effectiveType resolves the implicit string type of enum parameters.
func (p ToolParameter) effectiveType() ParamType {
	if p.Type == "" && len(p.Enum) > 0 {
		return ParamString
	}
	return p.Type
}

// ToolDefinition is a vendor-neutral function description.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}

// Validate checks if the ToolDefinition is properly configured
func (d ToolDefinition) Validate() error {
	if d.Name == "" {
		return errors.New("tool name is required")
	}

	seen := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		if p.Name == "" {
			return fmt.Errorf("tool %s: parameter name is required", d.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool %s: duplicate parameter %s", d.Name, p.Name)
		}
		seen[p.Name] = true
	}

	return nil
}

// ToolUseBlock is a provider's request to invoke a tool.
// ID is the provider-issued correlation id that the matching ToolResultBlock echoes.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any

	// RawInput is the argument JSON as received (kept when decoding failed)
	RawInput string
}

// RepairedInput attempts a best-effort repair of RawInput.
// Use it when Input is empty because the provider sent malformed JSON.
func (b ToolUseBlock) RepairedInput() (map[string]any, error) {
	if b.RawInput == "" {
		return b.Input, nil
	}

	input, err := DecodeToolInput(b.RawInput)
	if err == nil {
		return input, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(b.RawInput)
	if repairErr != nil {
		return nil, fmt.Errorf("repair tool input for %s: %w", b.ID, repairErr)
	}
	return DecodeToolInput(repaired)
}

// ToolResultBlock carries the outcome of a tool invocation back to the provider.
type ToolResultBlock struct {
	ToolUseID string // Correlation id of the ToolUseBlock being answered
	Name      string // Tool name (required by providers that match results by name)
	Content   string
	IsError   bool
}

// ToolExecution is what an external tool registry returns for a ToolUseBlock.
type ToolExecution struct {
	Success bool
	Output  string
	Error   string
}

// ToolExecutor executes tool calls. This package only shapes and parses tool
// calls; execution is delegated to implementations of this interface.
type ToolExecutor interface {
	Execute(ctx context.Context, use ToolUseBlock) ToolExecution
}

// ToolExecutorFunc adapts a function to ToolExecutor.
type ToolExecutorFunc func(ctx context.Context, use ToolUseBlock) ToolExecution

func (f ToolExecutorFunc) Execute(ctx context.Context, use ToolUseBlock) ToolExecution {
	return f(ctx, use)
}

// NewToolResult builds the ToolResultBlock answering use.
func NewToolResult(use ToolUseBlock, exec ToolExecution) ToolResultBlock {
	result := ToolResultBlock{
		ToolUseID: use.ID,
		Name:      use.Name,
		Content:   exec.Output,
		IsError:   !exec.Success,
	}
	if !exec.Success && exec.Error != "" {
		result.Content = exec.Error
	}
	return result
}

// DecodeToolInput decodes tool argument JSON into an object.
// Empty input decodes to an empty object.
func DecodeToolInput(raw string) (map[string]any, error) {
	input := make(map[string]any)
	if raw == "" {
		return input, nil
	}
	if err := sonic.UnmarshalString(raw, &input); err != nil {
		return map[string]any{}, err
	}
	if input == nil {
		// "null" decodes to a nil map
		input = make(map[string]any)
	}
	return input, nil
}
