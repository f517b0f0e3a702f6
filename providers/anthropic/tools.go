package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go"

	llmprovider "github.com/haowjy/meridian-relay"
)

// convertTools converts tool definitions to Anthropic custom tools.
// Unmappable parameter types fail here with a *llmprovider.SchemaError.
func convertTools(defs []llmprovider.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	schemas, err := llmprovider.ToProviderSchema(defs, llmprovider.JSONSchemaDialect)
	if err != nil {
		return nil, err
	}
	if len(schemas) == 0 {
		return nil, nil
	}

	result := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, fn := range schemas {
		// Anthropic wants properties and required as direct fields; the
		// remaining schema keys travel in ExtraFields.
		schema := anthropic.ToolInputSchemaParam{
			Properties:  fn.Parameters["properties"],
			ExtraFields: make(map[string]any),
		}
		if required, ok := fn.Parameters["required"].([]string); ok {
			schema.Required = required
		}
		for key, value := range fn.Parameters {
			if key != "type" && key != "properties" && key != "required" {
				schema.ExtraFields[key] = value
			}
		}

		tool := anthropic.ToolUnionParamOfTool(schema, fn.Name)
		if fn.Description != "" {
			tool.OfTool.Description = anthropic.String(fn.Description)
		}
		result = append(result, tool)
	}

	return result, nil
}
