// Package schema wraps github.com/santhosh-tekuri/jsonschema/v6 behind the
// small Validator/Schema interfaces the structured-output engine depends
// on, so that engine never imports the validation library directly.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator validates data against a schema.
type Validator interface {
	// Validate validates data against the schema and returns a non-nil
	// error if validation fails. The error is not an *ir.ValidationError;
	// pkg/structured wraps it in one.
	Validate(data interface{}) error

	// JSONSchema returns the JSON Schema representation of this validator,
	// used when sending schemas to AI providers.
	JSONSchema() map[string]interface{}
}

// Schema represents a validation schema a caller supplies to the
// structured-output engine.
type Schema interface {
	Validator() Validator
}

// JSONSchemaValidator validates using a compiled JSON Schema document.
type JSONSchemaValidator struct {
	raw      map[string]interface{}
	compiled *jsonschema.Schema
}

// NewJSONSchema compiles schema and returns a validator backed by it. The
// returned error is a compile-time schema error, distinct from a later
// per-value Validate failure.
func NewJSONSchema(schema map[string]interface{}) (*JSONSchemaValidator, error) {
	compiler := jsonschema.NewCompiler()

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal input schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("schema: unmarshal input schema: %w", err)
	}

	const resourceURL = "inline.json"
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}

	return &JSONSchemaValidator{raw: schema, compiled: compiled}, nil
}

// Validate validates data (already-decoded JSON: map[string]interface{},
// []interface{}, string, float64, bool, nil) against the compiled schema.
func (v *JSONSchemaValidator) Validate(data interface{}) error {
	if err := v.compiled.Validate(data); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// JSONSchema returns the original (uncompiled) JSON Schema document.
func (v *JSONSchemaValidator) JSONSchema() map[string]interface{} {
	return v.raw
}

// SimpleJSONSchema is the Schema implementation callers construct directly.
type SimpleJSONSchema struct {
	validator *JSONSchemaValidator
}

// NewSimpleJSONSchema compiles schema and wraps it as a Schema.
func NewSimpleJSONSchema(schema map[string]interface{}) (*SimpleJSONSchema, error) {
	v, err := NewJSONSchema(schema)
	if err != nil {
		return nil, err
	}
	return &SimpleJSONSchema{validator: v}, nil
}

func (s *SimpleJSONSchema) Validator() Validator { return s.validator }
