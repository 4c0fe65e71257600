package usecase

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

//go:embed schemas/lead.json
var leadSchemaJSON []byte

// LeadSchema validates lead payloads against the embedded ingestion schema.
type LeadSchema struct {
	compiled *santhosh.Schema
}

func NewLeadSchema() (*LeadSchema, error) {
	compiled, err := compileSchema(leadSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile lead schema: %w", err)
	}
	return &LeadSchema{compiled: compiled}, nil
}

// Validate returns *domain.SchemaViolationError when data does not match.
func (s *LeadSchema) Validate(data json.RawMessage) error {
	return runValidation(s.compiled, data)
}

func compileSchema(schemaJSON []byte) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	compiler.AssertFormat = true
	if err := compiler.AddResource("lead.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("lead.json")
}

func runValidation(sch *santhosh.Schema, data json.RawMessage) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: payload must be valid json", domain.ErrInvalidInput)
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.SchemaViolationError{Violations: collectViolations(ve)}
		}
		return &domain.SchemaViolationError{Violations: []domain.SchemaViolation{{Message: err.Error()}}}
	}
	return nil
}

func collectViolations(ve *santhosh.ValidationError) []domain.SchemaViolation {
	var out []domain.SchemaViolation
	for _, cause := range ve.Causes {
		out = append(out, collectViolations(cause)...)
	}
	if len(ve.Causes) == 0 {
		path := ve.InstanceLocation
		if path == "" {
			path = "/"
		}
		out = append(out, domain.SchemaViolation{Path: path, Message: ve.Message})
	}
	return out
}
