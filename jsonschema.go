package restmodel

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

var validSchemaTypes = map[string]bool{
	"string":  true,
	"integer": true,
	"number":  true,
	"boolean": true,
	"null":    true,
	"object":  true,
	"array":   true,
}

// ParseSchema decodes JSON text into a schema and checks that it resolves.
func ParseSchema(raw string) (*jsonschema.Schema, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return nil, NewValidationError("schema", "is not valid JSON").
			WithCause(err)
	}
	if err := CheckSchema(&schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// CheckSchema rejects unknown type names and schemas that fail to resolve,
// e.g. because of an invalid pattern.
func CheckSchema(schema *jsonschema.Schema) error {
	if err := checkTypes(schema, "#"); err != nil {
		return err
	}
	if _, err := schema.Resolve(&jsonschema.ResolveOptions{}); err != nil {
		e := NewValidationError("schema", "is not a valid JSON Schema").WithCause(err)
		e.Code = ErrCodeInvalidSchema
		return e
	}
	return nil
}

func checkTypes(schema *jsonschema.Schema, path string) error {
	if schema == nil {
		return nil
	}
	if schema.Type != "" && !validSchemaTypes[schema.Type] {
		e := NewValidationError("schema", fmt.Sprintf("unknown type %q at %s", schema.Type, path))
		e.Code = ErrCodeInvalidSchema
		return e
	}
	for _, t := range schema.Types {
		if !validSchemaTypes[t] {
			e := NewValidationError("schema", fmt.Sprintf("unknown type %q at %s", t, path))
			e.Code = ErrCodeInvalidSchema
			return e
		}
	}
	if err := checkTypes(schema.Items, path+"/items"); err != nil {
		return err
	}
	for name, prop := range schema.Properties {
		if err := checkTypes(prop, path+"/properties/"+name); err != nil {
			return err
		}
	}
	for i, sub := range schema.OneOf {
		if err := checkTypes(sub, fmt.Sprintf("%s/oneOf/%d", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateInstance checks a JSON value against a schema. The instance is
// normalized through encoding/json first so Go integer and struct values
// validate the way their JSON text would.
func ValidateInstance(schema *jsonschema.Schema, instance any) error {
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return fmt.Errorf("resolve schema: %w", err)
	}
	data, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("marshal instance: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return fmt.Errorf("unmarshal instance: %w", err)
	}
	return resolved.Validate(normalized)
}
