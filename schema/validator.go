// Package schema validates configuration documents against the schema
// reflected from config.Config.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/grovetools/conductor/config"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const resourceName = "conductor.json"

// Validator validates configuration against the generated JSON Schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator creates a new schema validator from config.GenerateSchema.
func NewValidator() (*Validator, error) {
	data, err := config.GenerateSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// Validate validates a decoded configuration document (see config.Decode).
func (v *Validator) Validate(doc interface{}) error {
	// Round-trip through JSON so numbers and maps have the shapes the
	// validator expects regardless of which parser produced them.
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON for validation: %w", err)
	}

	var dataToValidate interface{}
	if err := json.Unmarshal(jsonData, &dataToValidate); err != nil {
		return fmt.Errorf("failed to unmarshal JSON for validation: %w", err)
	}

	if err := v.schema.Validate(dataToValidate); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			var errorMessages []string
			collectErrors(validationErr, &errorMessages)
			return fmt.Errorf("schema validation failed:\n%s", strings.Join(errorMessages, "\n"))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// ValidateFile decodes and validates the configuration file at path.
func (v *Validator) ValidateFile(data []byte, format config.Format) error {
	doc, err := config.Decode(data, format)
	if err != nil {
		return err
	}
	return v.Validate(doc)
}

// collectErrors recursively collects all validation errors into a slice
func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if err.InstanceLocation != "" {
		*messages = append(*messages, fmt.Sprintf("- %s: %s", err.InstanceLocation, err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
