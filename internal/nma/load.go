package nma

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadNetwork reads a network YAML file, validates its records and builds
// the Network. Unknown fields are rejected to catch typos.
func LoadNetwork(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network file: %w", err)
	}
	return ParseNetwork(data)
}

// ParseNetwork decodes and builds a network from YAML bytes.
func ParseNetwork(data []byte) (*Network, error) {
	var in Input
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&in); err != nil {
		return nil, &Error{Code: ErrCodeSchema, Message: fmt.Sprintf("failed to parse YAML: %v", err)}
	}
	if err := ValidateRecords(in); err != nil {
		return nil, err
	}
	return BuildNetwork(in)
}

// ValidateRecords applies field-level validation to decoded records and
// converts validator failures into a SchemaError listing each field.
func ValidateRecords(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Code: ErrCodeSchema, Message: err.Error()}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return &Error{
		Code:    ErrCodeSchema,
		Message: "invalid records: " + strings.Join(fields, "; "),
	}
}

// LoadPopulations reads target populations from a YAML file holding a list
// of populations.
func LoadPopulations(path string) ([]Population, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read population file: %w", err)
	}
	var pops []Population
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&pops); err != nil {
		return nil, &Error{Code: ErrCodeSchema, Message: fmt.Sprintf("failed to parse population YAML: %v", err)}
	}
	for i := range pops {
		p := &pops[i]
		p.Name = NormalizeLabel(p.Name)
		if p.Name == "" {
			return nil, SchemaErrorf("population %d has no name", i)
		}
		if p.Means, err = normalizeKeys(p.Means); err != nil {
			return nil, err
		}
		if p.Summaries, err = normalizeKeys(p.Summaries); err != nil {
			return nil, err
		}
	}
	return pops, nil
}
