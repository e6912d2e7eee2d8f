package nma

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrorCode categorises fatal analysis errors.
type ErrorCode string

const (
	// ErrCodeSchema indicates malformed input data or mismatched codes.
	ErrCodeSchema ErrorCode = "SCHEMA"

	// ErrCodeDistribution indicates an unsupported marginal or missing parameters.
	ErrCodeDistribution ErrorCode = "DISTRIBUTION"

	// ErrCodeCorrelation indicates no usable correlation could be derived.
	ErrCodeCorrelation ErrorCode = "CORRELATION"

	// ErrCodeIdentifiability indicates a rank-deficient design.
	ErrCodeIdentifiability ErrorCode = "IDENTIFIABILITY"

	// ErrCodeSampler indicates the posterior sampler failed.
	ErrCodeSampler ErrorCode = "SAMPLER"
)

// Error is a fatal analysis error with structured context.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Study, Treatment and Covariate locate the problem when known.
	Study     string
	Treatment string
	Covariate string

	// Details contains additional context (e.g. offending parameter names).
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var loc []string
	if e.Study != "" {
		loc = append(loc, "study="+e.Study)
	}
	if e.Treatment != "" {
		loc = append(loc, "trt="+e.Treatment)
	}
	if e.Covariate != "" {
		loc = append(loc, "covariate="+e.Covariate)
	}
	if len(loc) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(loc, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// SchemaErrorf creates an Error with code ErrCodeSchema.
func SchemaErrorf(format string, args ...any) *Error {
	return &Error{Code: ErrCodeSchema, Message: fmt.Sprintf(format, args...)}
}

// DistributionErrorf creates an Error with code ErrCodeDistribution.
func DistributionErrorf(format string, args ...any) *Error {
	return &Error{Code: ErrCodeDistribution, Message: fmt.Sprintf(format, args...)}
}

// CorrelationErrorf creates an Error with code ErrCodeCorrelation.
func CorrelationErrorf(format string, args ...any) *Error {
	return &Error{Code: ErrCodeCorrelation, Message: fmt.Sprintf(format, args...)}
}

// IdentifiabilityErrorf creates an Error with code ErrCodeIdentifiability.
func IdentifiabilityErrorf(format string, args ...any) *Error {
	return &Error{Code: ErrCodeIdentifiability, Message: fmt.Sprintf(format, args...)}
}

// SamplerErrorf creates an Error with code ErrCodeSampler.
func SamplerErrorf(format string, args ...any) *Error {
	return &Error{Code: ErrCodeSampler, Message: fmt.Sprintf(format, args...)}
}

// HasCode reports whether err wraps an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsSchemaError returns true if err is a schema error.
func IsSchemaError(err error) bool { return HasCode(err, ErrCodeSchema) }

// IsDistributionError returns true if err is a distribution error.
func IsDistributionError(err error) bool { return HasCode(err, ErrCodeDistribution) }

// IsCorrelationError returns true if err is a correlation error.
func IsCorrelationError(err error) bool { return HasCode(err, ErrCodeCorrelation) }

// IsIdentifiabilityError returns true if err is an identifiability error.
func IsIdentifiabilityError(err error) bool { return HasCode(err, ErrCodeIdentifiability) }

// IsSamplerError returns true if err is a sampler error.
func IsSamplerError(err error) bool { return HasCode(err, ErrCodeSampler) }

// WarningCode categorises non-fatal diagnostics.
type WarningCode string

const (
	WarnCorrelationRepaired   WarningCode = "CORRELATION_REPAIRED"
	WarnCorrelationUndefined  WarningCode = "CORRELATION_UNDEFINED"
	WarnIntegrationError      WarningCode = "INTEGRATION_ERROR"
	WarnContrastApproximation WarningCode = "CONTRAST_APPROXIMATION"
	WarnLowAcceptance         WarningCode = "LOW_ACCEPTANCE"
	WarnHighAcceptance        WarningCode = "HIGH_ACCEPTANCE"
	WarnRhat                  WarningCode = "RHAT"
	WarnWideHeterogeneity     WarningCode = "WIDE_HETEROGENEITY"
)

// Warning is a non-fatal diagnostic (the ConvergenceWarning family).
// Warnings are attached to results and never dropped silently.
type Warning struct {
	Code      WarningCode `json:"code"`
	Message   string      `json:"message"`
	Study     string      `json:"study,omitempty"`
	Treatment string      `json:"treatment,omitempty"`
	Value     float64     `json:"value,omitempty"`
}

// MarshalJSON omits a zero or non-finite Value. NaN marks a value that was
// never estimated.
func (w Warning) MarshalJSON() ([]byte, error) {
	type plain Warning
	out := struct {
		plain
		Value *float64 `json:"value,omitempty"`
	}{plain: plain(w)}
	if w.Value != 0 && !math.IsNaN(w.Value) && !math.IsInf(w.Value, 0) {
		out.Value = &w.Value
	}
	return json.Marshal(out)
}

func (w Warning) String() string {
	switch {
	case w.Study != "" && w.Treatment != "":
		return fmt.Sprintf("%s: %s (study=%s, trt=%s)", w.Code, w.Message, w.Study, w.Treatment)
	case w.Study != "":
		return fmt.Sprintf("%s: %s (study=%s)", w.Code, w.Message, w.Study)
	}
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// Diagnostics is an ordered collection of warnings.
type Diagnostics []Warning

// Has reports whether any warning carries the given code.
func (d Diagnostics) Has(code WarningCode) bool {
	for _, w := range d {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Filter returns the warnings with the given code.
func (d Diagnostics) Filter(code WarningCode) Diagnostics {
	var out Diagnostics
	for _, w := range d {
		if w.Code == code {
			out = append(out, w)
		}
	}
	return out
}
