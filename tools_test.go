package llmprovider

import (
	"errors"
	"reflect"
	"testing"
)

var searchTool = ToolDefinition{
	Name:        "search_files",
	Description: "Search the workspace",
	Parameters: []ToolParameter{
		{Name: "query", Type: ParamString, Description: "Search text", Required: true},
		{Name: "mode", Enum: []string{"fast", "deep"}},
		{Name: "limit", Type: ParamInteger},
		{Name: "paths", Type: ParamArray, Items: &ToolParameter{Type: ParamString}},
		{Name: "filter", Type: ParamObject, Properties: []ToolParameter{
			{Name: "extension", Type: ParamString, Required: true},
		}},
	},
}

func TestToProviderSchema_JSONSchema(t *testing.T) {
	schemas, err := ToProviderSchema([]ToolDefinition{searchTool}, JSONSchemaDialect)
	if err != nil {
		t.Fatalf("ToProviderSchema() error = %v", err)
	}
	if len(schemas) != 1 || schemas[0].Name != "search_files" || schemas[0].Description != "Search the workspace" {
		t.Fatalf("unexpected schemas %+v", schemas)
	}

	params := schemas[0].Parameters
	if params["type"] != "object" {
		t.Errorf("expected object schema, got %v", params["type"])
	}
	if !reflect.DeepEqual(params["required"], []string{"query"}) {
		t.Errorf("unexpected required %v", params["required"])
	}

	props := params["properties"].(map[string]any)
	mode := props["mode"].(map[string]any)
	if mode["type"] != "string" || !reflect.DeepEqual(mode["enum"], []string{"fast", "deep"}) {
		t.Errorf("enum parameter should be a string enum, got %v", mode)
	}
	paths := props["paths"].(map[string]any)
	if items := paths["items"].(map[string]any); items["type"] != "string" {
		t.Errorf("unexpected array items %v", paths)
	}
	filter := props["filter"].(map[string]any)
	if !reflect.DeepEqual(filter["required"], []string{"extension"}) {
		t.Errorf("nested object must carry required fields, got %v", filter)
	}
}

func TestToProviderSchema_OpenAPINames(t *testing.T) {
	schemas, err := ToProviderSchema([]ToolDefinition{searchTool}, OpenAPIDialect)
	if err != nil {
		t.Fatalf("ToProviderSchema() error = %v", err)
	}
	props := schemas[0].Parameters["properties"].(map[string]any)
	if props["limit"].(map[string]any)["type"] != "INTEGER" {
		t.Errorf("expected OpenAPI type names, got %v", props["limit"])
	}
	if schemas[0].Parameters["type"] != "OBJECT" {
		t.Errorf("expected OBJECT, got %v", schemas[0].Parameters["type"])
	}
}

func TestToProviderSchema_RejectsUnmappableTypes(t *testing.T) {
	tests := []struct {
		name    string
		tool    ToolDefinition
		dialect SchemaDialect
		path    string
	}{
		{
			name:    "unknown type",
			tool:    ToolDefinition{Name: "when", Parameters: []ToolParameter{{Name: "at", Type: "datetime"}}},
			dialect: JSONSchemaDialect,
			path:    "at",
		},
		{
			name: "nested unknown type",
			tool: ToolDefinition{Name: "when", Parameters: []ToolParameter{{
				Name: "range", Type: ParamObject, Properties: []ToolParameter{{Name: "start", Type: "date"}},
			}}},
			dialect: JSONSchemaDialect,
			path:    "range.start",
		},
		{
			name:    "enum on number",
			tool:    ToolDefinition{Name: "pick", Parameters: []ToolParameter{{Name: "n", Type: ParamNumber, Enum: []string{"1"}}}},
			dialect: JSONSchemaDialect,
			path:    "n",
		},
		{
			name:    "array without items",
			tool:    ToolDefinition{Name: "list", Parameters: []ToolParameter{{Name: "xs", Type: ParamArray}}},
			dialect: OpenAPIDialect,
			path:    "xs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schemas, err := ToProviderSchema([]ToolDefinition{searchTool, tt.tool}, tt.dialect)
			if schemas != nil {
				t.Error("no partial translation on failure")
			}
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected *SchemaError, got %v", err)
			}
			if schemaErr.Parameter != tt.path || schemaErr.Tool != tt.tool.Name {
				t.Errorf("unexpected error location %s/%s", schemaErr.Tool, schemaErr.Parameter)
			}
			if !errors.Is(err, ErrUnsupportedFeature) || IsFallbackable(err) {
				t.Error("schema errors are fatal unsupported-feature errors")
			}
		})
	}
}

func TestToProviderSchema_ArrayWithoutItemsAllowedInJSONSchema(t *testing.T) {
	tool := ToolDefinition{Name: "list", Parameters: []ToolParameter{{Name: "xs", Type: ParamArray}}}
	if _, err := ToProviderSchema([]ToolDefinition{tool}, JSONSchemaDialect); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestToProviderSchema_InvalidDefinition(t *testing.T) {
	tests := []ToolDefinition{
		{Name: ""},
		{Name: "dup", Parameters: []ToolParameter{{Name: "a", Type: ParamString}, {Name: "a", Type: ParamString}}},
		{Name: "anon", Parameters: []ToolParameter{{Type: ParamString}}},
	}
	for _, def := range tests {
		if _, err := ToProviderSchema([]ToolDefinition{def}, JSONSchemaDialect); !IsInvalidRequest(err) {
			t.Errorf("%q: expected invalid request, got %v", def.Name, err)
		}
	}
}

func TestToProviderSchema_Empty(t *testing.T) {
	schemas, err := ToProviderSchema(nil, JSONSchemaDialect)
	if err != nil || schemas != nil {
		t.Errorf("expected nil, nil; got %v, %v", schemas, err)
	}
}

func TestDecodeToolInput(t *testing.T) {
	tests := []struct {
		raw     string
		want    map[string]any
		wantErr bool
	}{
		{"", map[string]any{}, false},
		{"null", map[string]any{}, false},
		{`{"a":1}`, map[string]any{"a": float64(1)}, false},
		{`{"a":`, map[string]any{}, true},
		{`[1,2]`, map[string]any{}, true},
	}
	for _, tt := range tests {
		got, err := DecodeToolInput(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v", tt.raw, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%q: got %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestToolUseBlock_RepairedInput(t *testing.T) {
	block := ToolUseBlock{ID: "t1", Name: "search", Input: map[string]any{}, RawInput: `{"query": "go"`}

	input, err := block.RepairedInput()
	if err != nil {
		t.Fatalf("RepairedInput() error = %v", err)
	}
	if input["query"] != "go" {
		t.Errorf("unexpected repaired input %v", input)
	}

	valid := ToolUseBlock{ID: "t2", RawInput: `{"n": 2}`}
	if input, err := valid.RepairedInput(); err != nil || input["n"] != float64(2) {
		t.Errorf("valid input should decode as is, got %v, %v", input, err)
	}
}

func TestNewToolResult(t *testing.T) {
	use := ToolUseBlock{ID: "t1", Name: "search"}

	ok := NewToolResult(use, ToolExecution{Success: true, Output: "3 files"})
	if ok.ToolUseID != "t1" || ok.Name != "search" || ok.Content != "3 files" || ok.IsError {
		t.Errorf("unexpected result %+v", ok)
	}

	failed := NewToolResult(use, ToolExecution{Output: "partial", Error: "permission denied"})
	if !failed.IsError || failed.Content != "permission denied" {
		t.Errorf("unexpected error result %+v", failed)
	}
}
