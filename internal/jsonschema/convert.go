// Package jsonschema converts the JSON-schema parameter specs tools and
// providers exchange into Eino's schema.ParameterInfo shape.
//
// internal/tool, internal/provider and internal/mcp each still carry their
// own copy of this conversion (parseJSONSchemaToParams /
// parseInputSchemaToParams) and do not call ToParams.
package jsonschema

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"
)

// rawSchema is the subset of JSON-schema this runtime's tools actually
// use: object-with-properties, each property a primitive/array/object
// with an optional description, plus a top-level required list.
type rawSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]rawProperty `json:"properties"`
	Required   []string               `json:"required"`
}

type rawProperty struct {
	Type        string       `json:"type"`
	Description string       `json:"description"`
	Enum        []string     `json:"enum,omitempty"`
	Items       *rawProperty `json:"items,omitempty"`
}

// ToParams converts a raw JSON-schema document into Eino ParameterInfo
// map suitable for schema.NewParamsOneOfByParams. An unparsable or empty
// schema yields an empty (non-nil) map rather than an error, since tools
// with no parameters are legitimate.
func ToParams(raw json.RawMessage) map[string]*schema.ParameterInfo {
	params := make(map[string]*schema.ParameterInfo)
	if len(raw) == 0 {
		return params
	}

	var s rawSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return params
	}

	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}

	for name, prop := range s.Properties {
		params[name] = &schema.ParameterInfo{
			Type:     mapType(prop.Type),
			Desc:     prop.Description,
			Required: required[name],
			Enum:     prop.Enum,
		}
	}
	return params
}

func mapType(t string) schema.DataType {
	switch t {
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}
