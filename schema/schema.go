// Package schema implements optional JSON-schema validation of records
// before they are optimistically applied to a store (SPEC_FULL.md §4.8).
//
// This is a direct generalization of the teacher's jsondata.ValidSchema
// (jsondata/jsondata.go): same compile-once-validate-many shape, same
// underlying library (github.com/santhosh-tekuri/jsonschema/v5), adapted
// from "validate an inbound HTTP document body" to "validate a record before
// a collection store's Create/Patch applies it".
package schema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator wraps a compiled JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

// Compile compiles the schema document found at the given resource name
// (file path or URL, per jsonschema.Compiler semantics).
func Compile(resource string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	sch, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("schema: failed to compile %q: %w", resource, err)
	}
	return &Validator{schema: sch}, nil
}

// CompileString compiles a schema given inline as a JSON document, useful
// for tests and for embedding a schema at build time.
func CompileString(resourceName, document string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, strings.NewReader(document)); err != nil {
		return nil, fmt.Errorf("schema: failed to register %q: %w", resourceName, err)
	}
	sch, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("schema: failed to compile %q: %w", resourceName, err)
	}
	return &Validator{schema: sch}, nil
}

// Validate reports whether content conforms to the schema. A nil Validator
// always validates (no schema configured is not an error).
func (v *Validator) Validate(content any) error {
	if v == nil || v.schema == nil {
		return nil
	}
	if err := v.schema.Validate(content); err != nil {
		return fmt.Errorf("schema: record does not conform to schema: %w", err)
	}
	return nil
}
