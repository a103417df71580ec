package validation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/dispatch_request.json
var dispatchRequestSchema string

//go:embed schemas/job_payload.json
var jobPayloadSchema string

// Schemas for the two wire bodies of the dispatch pipeline.
var (
	DispatchRequest = MustCompile("dispatch_request.json", dispatchRequestSchema)
	JobPayload      = MustCompile("job_payload.json", jobPayloadSchema)
)

// Schema is a compiled JSON schema. It is safe for concurrent use.
type Schema struct {
	name string
	sch  *jsonschema.Schema
}

// Compile compiles a JSON schema held in a string.
func Compile(name, schemaJSON string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile JSON schema %s: %w", name, err)
	}
	return &Schema{name: name, sch: sch}, nil
}

// MustCompile is Compile for schemas embedded in the binary.
func MustCompile(name, schemaJSON string) *Schema {
	s, err := Compile(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a raw JSON document against the schema.
func (s *Schema) Validate(dataJSON []byte) error {
	if len(bytes.TrimSpace(dataJSON)) == 0 {
		return fmt.Errorf("failed to unmarshal JSON data: empty body")
	}
	var data interface{}
	if err := json.Unmarshal(dataJSON, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON data: %w", err)
	}
	if err := s.sch.Validate(data); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("JSON data failed validation against %s: %v", s.name, validationErr)
		}
		return fmt.Errorf("JSON data failed validation (unexpected error type): %w", err)
	}
	return nil
}
