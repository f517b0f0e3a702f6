package llmprovider

// SchemaDialect lists the parameter types a provider's tool schema accepts and
// the names it uses for them.
type SchemaDialect struct {
	Name string

	// TypeNames maps neutral types to the dialect's names. Types missing from
	// the map cannot be expressed and are rejected at translation time.
	TypeNames map[ParamType]string

	// RequireArrayItems rejects arrays without an element schema
	RequireArrayItems bool
}

// JSONSchemaDialect is the JSON Schema subset used by Anthropic and OpenAI-compatible APIs.
var JSONSchemaDialect = SchemaDialect{
	Name: "json-schema",
	TypeNames: map[ParamType]string{
		ParamString:  "string",
		ParamNumber:  "number",
		ParamInteger: "integer",
		ParamBoolean: "boolean",
		ParamArray:   "array",
		ParamObject:  "object",
	},
}

// OpenAPIDialect is the OpenAPI 3 subset used by Gemini function declarations.
var OpenAPIDialect = SchemaDialect{
	Name: "openapi",
	TypeNames: map[ParamType]string{
		ParamString:  "STRING",
		ParamNumber:  "NUMBER",
		ParamInteger: "INTEGER",
		ParamBoolean: "BOOLEAN",
		ParamArray:   "ARRAY",
		ParamObject:  "OBJECT",
	},
	RequireArrayItems: true,
}

// FunctionSchema is a tool translated to a dialect, ready to be wrapped in the
// vendor's native tool type.
type FunctionSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // Object schema: type, properties, required
}

// ToProviderSchema translates tool definitions into dialect schemas.
// Any parameter whose type the dialect cannot express fails the whole
// translation with a *SchemaError.
func ToProviderSchema(defs []ToolDefinition, dialect SchemaDialect) ([]FunctionSchema, error) {
	if len(defs) == 0 {
		return nil, nil
	}

	result := make([]FunctionSchema, 0, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, &ValidationError{Field: "tools", Value: def.Name, Reason: err.Error(), Err: ErrInvalidRequest}
		}

		params, err := objectSchema(def.Name, "", def.Parameters, dialect)
		if err != nil {
			return nil, err
		}

		result = append(result, FunctionSchema{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  params,
		})
	}
	return result, nil
}

func objectSchema(tool, path string, fields []ToolParameter, dialect SchemaDialect) (map[string]any, error) {
	properties := make(map[string]any, len(fields))
	var required []string

	for _, field := range fields {
		fieldPath := field.Name
		if path != "" {
			fieldPath = path + "." + field.Name
		}

		schema, err := parameterSchema(tool, fieldPath, field, dialect)
		if err != nil {
			return nil, err
		}
		properties[field.Name] = schema

		if field.Required {
			required = append(required, field.Name)
		}
	}

	schema := map[string]any{
		"type":       dialect.TypeNames[ParamObject],
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema, nil
}

func parameterSchema(tool, path string, p ToolParameter, dialect SchemaDialect) (map[string]any, error) {
	paramType := p.effectiveType()
	typeName, ok := dialect.TypeNames[paramType]
	if !ok {
		return nil, &SchemaError{
			Tool:      tool,
			Parameter: path,
			Type:      paramType,
			Dialect:   dialect.Name,
			Reason:    "no type mapping",
		}
	}

	if len(p.Enum) > 0 && paramType != ParamString {
		return nil, &SchemaError{
			Tool:      tool,
			Parameter: path,
			Type:      paramType,
			Dialect:   dialect.Name,
			Reason:    "enum values are only supported on string parameters",
		}
	}

	if paramType == ParamObject {
		schema, err := objectSchema(tool, path, p.Properties, dialect)
		if err != nil {
			return nil, err
		}
		if p.Description != "" {
			schema["description"] = p.Description
		}
		return schema, nil
	}

	schema := map[string]any{"type": typeName}
	if p.Description != "" {
		schema["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		schema["enum"] = append([]string(nil), p.Enum...)
	}

	if paramType == ParamArray {
		switch {
		case p.Items != nil:
			items, err := parameterSchema(tool, path+"[]", *p.Items, dialect)
			if err != nil {
				return nil, err
			}
			schema["items"] = items
		case dialect.RequireArrayItems:
			return nil, &SchemaError{
				Tool:      tool,
				Parameter: path,
				Type:      paramType,
				Dialect:   dialect.Name,
				Reason:    "array parameters need an item schema",
			}
		}
	}

	return schema, nil
}

