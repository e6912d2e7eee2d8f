package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jSoboil/multinma/internal/sampler"
)

// Scenario defines a conformance scenario: one fit and the assertions the
// stored fit must satisfy.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Network is the path of the network YAML file.
	Network string `yaml:"network"`

	// Model is the path of the CUE model file.
	Model string `yaml:"model"`

	// Populations optionally names a YAML file of target populations used
	// by rank_prob assertions.
	Populations string `yaml:"populations,omitempty"`

	// Sampler selects the backend; empty means laplace.
	Sampler string `yaml:"sampler,omitempty"`

	// Draws is the number of retained draws; zero uses the sampler default.
	Draws int `yaml:"draws,omitempty"`

	// Seed fixes the sampler; zero means 1 so scenarios are always
	// reproducible.
	Seed uint64 `yaml:"seed,omitempty"`

	// Assertions validate the stored fit.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates one property of a fit.
type Assertion struct {
	// Type specifies the assertion type:
	// - "estimate_within": posterior mean of Parameter within Tol of Value
	// - "rank_prob": P(rank of Treatment == Rank) within [Min, Max]
	// - "warning": diagnostics contain Code
	// - "no_warning": diagnostics do not contain Code
	Type string `yaml:"type"`

	// Parameter is a draw name such as "d[B]" (estimate_within).
	Parameter string  `yaml:"parameter,omitempty"`
	Value     float64 `yaml:"value,omitempty"`
	Tol       float64 `yaml:"tol,omitempty"`

	// Treatment and Rank select a rank probability (rank_prob). Rank is
	// 1-based.
	Treatment string `yaml:"treatment,omitempty"`
	Rank      int    `yaml:"rank,omitempty"`
	// Min and Max bound the probability; a nil bound is open.
	Min         *float64 `yaml:"min,omitempty"`
	Max         *float64 `yaml:"max,omitempty"`
	Population  string   `yaml:"population,omitempty"`
	LowerBetter bool     `yaml:"lower_better,omitempty"`

	// Code is a warning code such as "RHAT" (warning, no_warning).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertEstimateWithin = "estimate_within"
	AssertRankProb       = "rank_prob"
	AssertWarning        = "warning"
	AssertNoWarning      = "no_warning"
)

// LoadScenario reads and parses a scenario YAML file. Relative file paths
// in the scenario are resolved against the scenario's directory. Returns
// an error if the file doesn't exist, is malformed, contains unknown
// fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	scenario.resolve(filepath.Dir(path))
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML without resolving
// paths.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func (s *Scenario) resolve(base string) {
	join := func(p string) string {
		if p == "" || filepath.IsAbs(p) || base == "" {
			return p
		}
		return filepath.Join(base, p)
	}
	s.Network = join(s.Network)
	s.Model = join(s.Model)
	s.Populations = join(s.Populations)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Network == "" {
		return fmt.Errorf("network is required")
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	switch sampler.Kind(s.Sampler) {
	case "", sampler.KindLaplace, sampler.KindMetropolis:
	default:
		return fmt.Errorf("unknown sampler %q", s.Sampler)
	}
	if s.Draws < 0 {
		return fmt.Errorf("draws must be non-negative, got %d", s.Draws)
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertEstimateWithin:
		if a.Parameter == "" {
			return fmt.Errorf("estimate_within requires parameter")
		}
		if a.Tol <= 0 {
			return fmt.Errorf("estimate_within requires a positive tol")
		}
	case AssertRankProb:
		if a.Treatment == "" {
			return fmt.Errorf("rank_prob requires treatment")
		}
		if a.Rank < 1 {
			return fmt.Errorf("rank_prob requires rank >= 1")
		}
		if a.Min == nil && a.Max == nil {
			return fmt.Errorf("rank_prob requires min or max")
		}
	case AssertWarning, AssertNoWarning:
		if a.Code == "" {
			return fmt.Errorf("%s requires code", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
