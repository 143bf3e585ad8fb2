package tool

// SchemaPair holds a tool's external JSON-Schema-style description next to
// its converted native representation. The two are semantically equivalent.
type SchemaPair struct {
	Name string

	External map[string]any
	Native   *Schema
}

// NormalizeSchema fills in the structure sloppy clients omit so conversion
// has a well-formed input to work with.
func NormalizeSchema(schema map[string]any) map[string]any {
	// Handle empty schema
	if len(schema) == 0 {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	// Infer type from structure if missing
	if schema["type"] == nil {
		if schema["properties"] != nil {
			schema["type"] = "object"
		} else if schema["items"] != nil {
			schema["type"] = "array"
		} else {
			schema["type"] = "object"
		}
	}

	schemaType, _ := schema["type"].(string)
	switch schemaType {
	case "object":
		if schema["properties"] == nil {
			schema["properties"] = map[string]any{}
		}
	case "array":
		if schema["items"] == nil {
			schema["items"] = map[string]any{"type": "string"}
		}
	}

	return schema
}
