package tool

import (
	"fmt"
)

// Schema is the native validation-schema representation used by the
// provider abstraction. It covers the supported JSON Schema subset:
// object, array, string, number, integer, boolean, enum, nullable and
// the common value constraints, recursively.
type Schema struct {
	Kind Kind

	Title       string
	Description string
	Format      string
	MetaSchema  string

	Nullable bool

	Enum    []any
	Default any

	Properties           map[string]*Schema
	Required             []string
	AdditionalProperties *bool

	Items    *Schema
	MinItems *int64
	MaxItems *int64

	MinLength *int64
	MaxLength *int64
	Pattern   string

	Minimum *float64
	Maximum *float64
}

type Kind string

const (
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
)

// ConversionError names the construct a schema conversion failed on and its
// path within the schema (e.g. properties.x.oneOf).
type ConversionError struct {
	Reason string
	Path   string
}

func (e *ConversionError) Error() string {
	if e.Path == "" {
		return e.Reason
	}

	return fmt.Sprintf("%s at %s", e.Reason, e.Path)
}

func conversionError(path, format string, args ...any) *ConversionError {
	return &ConversionError{
		Reason: fmt.Sprintf(format, args...),
		Path:   path,
	}
}

// ToNative converts a JSON-Schema-style description into its native
// representation. Conversion is deterministic and total over the supported
// subset; anything outside it fails with a ConversionError rather than
// being silently dropped.
func ToNative(schema map[string]any) (*Schema, error) {
	return toNative(schema, "")
}

func toNative(schema map[string]any, path string) (*Schema, error) {
	result := &Schema{}

	kind, nullable, err := parseType(schema["type"], path)

	if err != nil {
		return nil, err
	}

	result.Kind = kind
	result.Nullable = nullable

	for key, val := range schema {
		switch key {
		case "type":
			// handled above

		case "title":
			result.Title, err = parseString(val, joinPath(path, key))

		case "description":
			result.Description, err = parseString(val, joinPath(path, key))

		case "format":
			result.Format, err = parseString(val, joinPath(path, key))

		case "$schema":
			result.MetaSchema, err = parseString(val, joinPath(path, key))

		case "pattern":
			result.Pattern, err = parseString(val, joinPath(path, key))

		case "default":
			result.Default = val

		case "nullable":
			b, ok := val.(bool)

			if !ok {
				return nil, conversionError(joinPath(path, key), "non-boolean nullable")
			}

			result.Nullable = result.Nullable || b

		case "enum":
			result.Enum, err = parseEnum(val, joinPath(path, key))

		case "required":
			result.Required, err = parseStringList(val, joinPath(path, key))

		case "properties":
			result.Properties, err = parseProperties(val, joinPath(path, key))

		case "additionalProperties":
			b, ok := val.(bool)

			if !ok {
				return nil, conversionError(joinPath(path, key), "unsupported non-boolean additionalProperties")
			}

			result.AdditionalProperties = &b

		case "items":
			items, ok := val.(map[string]any)

			if !ok {
				return nil, conversionError(joinPath(path, key), "unsupported items value")
			}

			result.Items, err = toNative(items, joinPath(path, key))

		case "minimum":
			result.Minimum, err = parseNumber(val, joinPath(path, key))

		case "maximum":
			result.Maximum, err = parseNumber(val, joinPath(path, key))

		case "minLength":
			result.MinLength, err = parseInteger(val, joinPath(path, key))

		case "maxLength":
			result.MaxLength, err = parseInteger(val, joinPath(path, key))

		case "minItems":
			result.MinItems, err = parseInteger(val, joinPath(path, key))

		case "maxItems":
			result.MaxItems, err = parseInteger(val, joinPath(path, key))

		default:
			return nil, conversionError(joinPath(path, key), "unsupported %s", key)
		}

		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// ToExternal converts a native schema back into its JSON-Schema-style form.
// For every schema in the supported subset ToExternal(ToNative(s)) is
// structurally equivalent to s.
func ToExternal(s *Schema) map[string]any {
	result := map[string]any{
		"type": string(s.Kind),
	}

	if s.Title != "" {
		result["title"] = s.Title
	}

	if s.Description != "" {
		result["description"] = s.Description
	}

	if s.Format != "" {
		result["format"] = s.Format
	}

	if s.MetaSchema != "" {
		result["$schema"] = s.MetaSchema
	}

	if s.Pattern != "" {
		result["pattern"] = s.Pattern
	}

	if s.Default != nil {
		result["default"] = s.Default
	}

	if s.Nullable {
		result["nullable"] = true
	}

	if s.Enum != nil {
		result["enum"] = append([]any{}, s.Enum...)
	}

	if s.Required != nil {
		required := make([]any, 0, len(s.Required))

		for _, r := range s.Required {
			required = append(required, r)
		}

		result["required"] = required
	}

	if s.Properties != nil {
		properties := make(map[string]any, len(s.Properties))

		for name, p := range s.Properties {
			properties[name] = ToExternal(p)
		}

		result["properties"] = properties
	}

	if s.AdditionalProperties != nil {
		result["additionalProperties"] = *s.AdditionalProperties
	}

	if s.Items != nil {
		result["items"] = ToExternal(s.Items)
	}

	if s.Minimum != nil {
		result["minimum"] = *s.Minimum
	}

	if s.Maximum != nil {
		result["maximum"] = *s.Maximum
	}

	if s.MinLength != nil {
		result["minLength"] = float64(*s.MinLength)
	}

	if s.MaxLength != nil {
		result["maxLength"] = float64(*s.MaxLength)
	}

	if s.MinItems != nil {
		result["minItems"] = float64(*s.MinItems)
	}

	if s.MaxItems != nil {
		result["maxItems"] = float64(*s.MaxItems)
	}

	return result
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}

	return base + "." + key
}

func parseType(val any, path string) (Kind, bool, error) {
	switch v := val.(type) {
	case nil:
		return "", false, conversionError(path, "missing type")

	case string:
		kind, err := parseKind(v, joinPath(path, "type"))
		return kind, false, err

	case []any:
		// only the [T, "null"] union form is supported
		var names []string

		for _, item := range v {
			name, ok := item.(string)

			if !ok {
				return "", false, conversionError(joinPath(path, "type"), "unsupported type union")
			}

			names = append(names, name)
		}

		if len(names) == 2 && names[1] == "null" {
			kind, err := parseKind(names[0], joinPath(path, "type"))
			return kind, true, err
		}

		if len(names) == 2 && names[0] == "null" {
			kind, err := parseKind(names[1], joinPath(path, "type"))
			return kind, true, err
		}

		return "", false, conversionError(joinPath(path, "type"), "unsupported type union")

	default:
		return "", false, conversionError(joinPath(path, "type"), "unsupported type value")
	}
}

func parseKind(val, path string) (Kind, error) {
	switch val {
	case "object":
		return KindObject, nil
	case "array":
		return KindArray, nil
	case "string":
		return KindString, nil
	case "number":
		return KindNumber, nil
	case "integer":
		return KindInteger, nil
	case "boolean":
		return KindBoolean, nil
	}

	return "", conversionError(path, "unsupported type %q", val)
}

func parseString(val any, path string) (string, error) {
	s, ok := val.(string)

	if !ok {
		return "", conversionError(path, "expected string value")
	}

	return s, nil
}

func parseNumber(val any, path string) (*float64, error) {
	switch v := val.(type) {
	case float64:
		return &v, nil
	case int:
		f := float64(v)
		return &f, nil
	}

	return nil, conversionError(path, "expected numeric value")
}

func parseInteger(val any, path string) (*int64, error) {
	switch v := val.(type) {
	case float64:
		i := int64(v)
		return &i, nil
	case int:
		i := int64(v)
		return &i, nil
	}

	return nil, conversionError(path, "expected integer value")
}

func parseEnum(val any, path string) ([]any, error) {
	items, ok := val.([]any)

	if !ok {
		return nil, conversionError(path, "expected enum list")
	}

	result := make([]any, 0, len(items))

	for i, item := range items {
		switch item.(type) {
		case string, bool, float64, int, nil:
			result = append(result, item)

		default:
			return nil, conversionError(fmt.Sprintf("%s.%d", path, i), "unsupported enum value")
		}
	}

	return result, nil
}

func parseStringList(val any, path string) ([]string, error) {
	items, ok := val.([]any)

	if !ok {
		if strs, ok := val.([]string); ok {
			return append([]string{}, strs...), nil
		}

		return nil, conversionError(path, "expected string list")
	}

	result := make([]string, 0, len(items))

	for i, item := range items {
		s, ok := item.(string)

		if !ok {
			return nil, conversionError(fmt.Sprintf("%s.%d", path, i), "expected string value")
		}

		result = append(result, s)
	}

	return result, nil
}

func parseProperties(val any, path string) (map[string]*Schema, error) {
	props, ok := val.(map[string]any)

	if !ok {
		return nil, conversionError(path, "expected properties object")
	}

	result := make(map[string]*Schema, len(props))

	for name, raw := range props {
		child, ok := raw.(map[string]any)

		if !ok {
			return nil, conversionError(joinPath(path, name), "expected schema object")
		}

		converted, err := toNative(child, joinPath(path, name))

		if err != nil {
			return nil, err
		}

		result[name] = converted
	}

	return result, nil
}
