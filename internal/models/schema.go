package models

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"
)

// ResponseSchema is a named JSON schema describing the shape a
// generation must return.
type ResponseSchema struct {
	Name   string
	Schema *jsonschema.Schema
}

// schemaToMap renders a jsonschema.Schema as the plain JSON Schema map
// the OpenAI response_format and Anthropic prompt embedding expect.
func schemaToMap(schema *jsonschema.Schema) map[string]any {
	if schema == nil {
		return nil
	}

	result := make(map[string]any)

	if len(schema.Types) > 0 {
		result["type"] = schema.Types[0]
	} else if schema.Type != "" {
		result["type"] = schema.Type
	}

	if schema.Description != "" {
		result["description"] = schema.Description
	}
	if schema.Format != "" {
		result["format"] = schema.Format
	}
	if len(schema.Enum) > 0 {
		result["enum"] = schema.Enum
	}
	if schema.Const != nil {
		result["const"] = *schema.Const
	}
	if len(schema.Default) > 0 {
		var value any
		if err := json.Unmarshal(schema.Default, &value); err == nil {
			result["default"] = value
		}
	}

	if schema.Minimum != nil {
		result["minimum"] = *schema.Minimum
	}
	if schema.Maximum != nil {
		result["maximum"] = *schema.Maximum
	}
	if schema.ExclusiveMinimum != nil {
		result["exclusiveMinimum"] = *schema.ExclusiveMinimum
	}
	if schema.ExclusiveMaximum != nil {
		result["exclusiveMaximum"] = *schema.ExclusiveMaximum
	}

	if schema.MinLength != nil {
		result["minLength"] = *schema.MinLength
	}
	if schema.MaxLength != nil {
		result["maxLength"] = *schema.MaxLength
	}
	if schema.Pattern != "" {
		result["pattern"] = schema.Pattern
	}

	if schema.Items != nil {
		result["items"] = schemaToMap(schema.Items)
	}

	if len(schema.Properties) > 0 {
		properties := make(map[string]any, len(schema.Properties))
		for name, property := range schema.Properties {
			if property != nil {
				properties[name] = schemaToMap(property)
			}
		}
		result["properties"] = properties
	}

	if len(schema.Required) > 0 {
		result["required"] = schema.Required
	}

	return result
}

// schemaToGenAI maps a jsonschema.Schema onto the Gemini schema type.
// Only the constraint set Gemini enforces is carried over.
func schemaToGenAI(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	out := &genai.Schema{
		Type:        genaiType(schema),
		Description: schema.Description,
		Format:      schema.Format,
		Minimum:     schema.Minimum,
		Maximum:     schema.Maximum,
	}

	if len(schema.Enum) > 0 {
		values := make([]string, 0, len(schema.Enum))
		for _, v := range schema.Enum {
			if s, ok := v.(string); ok {
				values = append(values, s)
			}
		}
		out.Enum = values
	}

	if schema.Items != nil {
		out.Items = schemaToGenAI(schema.Items)
	}

	if len(schema.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for name, property := range schema.Properties {
			if property != nil {
				out.Properties[name] = schemaToGenAI(property)
			}
		}
	}

	if len(schema.Required) > 0 {
		out.Required = schema.Required
	}

	return out
}

func genaiType(schema *jsonschema.Schema) genai.Type {
	name := schema.Type
	if name == "" && len(schema.Types) > 0 {
		name = schema.Types[0]
	}
	switch name {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}
