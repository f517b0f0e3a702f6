package llmprovider

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func echoExecutor() ToolExecutor {
	return ToolExecutorFunc(func(ctx context.Context, use ToolUseBlock) ToolExecution {
		query, _ := use.Input["query"].(string)
		if query == "" {
			return ToolExecution{Error: "query is required"}
		}
		return ToolExecution{Success: true, Output: "results for " + query}
	})
}

func TestToolRegistry_RegisterAndDefinitions(t *testing.T) {
	r := NewToolRegistry()
	if err := r.Register(searchTool, echoExecutor()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	other := ToolDefinition{Name: "read_file", Parameters: []ToolParameter{{Name: "path", Type: ParamString}}}
	if err := r.Register(other, echoExecutor()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	defs := r.Definitions()
	if len(defs) != 2 || defs[0].Name != "search_files" || defs[1].Name != "read_file" {
		t.Errorf("unexpected definitions %+v", defs)
	}
	if !r.IsRegistered("read_file") {
		t.Error("expected read_file registered")
	}

	if err := r.Register(other, echoExecutor()); err == nil {
		t.Error("expected duplicate registration error")
	}
	if err := r.Register(ToolDefinition{Name: "x"}, nil); err == nil {
		t.Error("expected missing executor error")
	}
}

func TestToolRegistry_RejectsUnmappableAtRegistration(t *testing.T) {
	r := NewToolRegistry()

	// Valid JSON Schema, but Gemini's dialect needs array items
	def := ToolDefinition{Name: "tag", Parameters: []ToolParameter{{Name: "labels", Type: ParamArray}}}
	err := r.Register(def, echoExecutor())

	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) || schemaErr.Dialect != OpenAPIDialect.Name {
		t.Fatalf("expected OpenAPI schema error, got %v", err)
	}
	if r.IsRegistered("tag") {
		t.Error("rejected tool must not be registered")
	}
}

func TestToolRegistry_Unregister(t *testing.T) {
	r := NewToolRegistry()
	if err := r.Register(searchTool, echoExecutor()); err != nil {
		t.Fatal(err)
	}

	if err := r.Unregister("search_files"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if r.IsRegistered("search_files") || len(r.Definitions()) != 0 {
		t.Error("tool still registered")
	}
	if err := r.Unregister("search_files"); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestToolRegistry_ExecuteAll(t *testing.T) {
	r := NewToolRegistry()
	if err := r.Register(searchTool, echoExecutor()); err != nil {
		t.Fatal(err)
	}

	msg := r.ExecuteAll(context.Background(), []ToolUseBlock{
		{ID: "t1", Name: "search_files", Input: map[string]any{"query": "go"}},
		{ID: "t2", Name: "search_files", Input: map[string]any{}},
		{ID: "t3", Name: "delete_everything"},
	})

	if msg.Role != RoleUser || len(msg.ToolResults) != 3 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if r0 := msg.ToolResults[0]; r0.ToolUseID != "t1" || r0.IsError || r0.Content != "results for go" {
		t.Errorf("unexpected result %+v", r0)
	}
	if r1 := msg.ToolResults[1]; !r1.IsError || r1.Content != "query is required" {
		t.Errorf("unexpected result %+v", r1)
	}
	if r2 := msg.ToolResults[2]; !r2.IsError || !strings.Contains(r2.Content, "unknown tool") || r2.Name != "delete_everything" {
		t.Errorf("unexpected result %+v", r2)
	}
}
