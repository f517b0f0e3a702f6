package openrouter

import (
	llmprovider "github.com/haowjy/meridian-relay"
)

// convertTools converts tool definitions to OpenRouter format.
// OpenRouter uses OpenAI-compatible format, so the JSON Schema maps directly.
func convertTools(defs []llmprovider.ToolDefinition) ([]Tool, error) {
	schemas, err := llmprovider.ToProviderSchema(defs, llmprovider.JSONSchemaDialect)
	if err != nil {
		return nil, err
	}
	if len(schemas) == 0 {
		return nil, nil
	}

	result := make([]Tool, 0, len(schemas))
	for _, fn := range schemas {
		result = append(result, Tool{
			Type: "function",
			Function: FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		})
	}
	return result, nil
}
