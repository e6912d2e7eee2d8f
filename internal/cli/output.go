package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"text/tabwriter"

	"github.com/jSoboil/multinma/internal/modelspec"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Analysis failure (sampler, identifiability, failed scenarios, etc.)
	ExitCommandError = 2 // Command error (bad input files, fit not found, etc.)
)

// Stable error codes reported by the CLI.
const (
	ErrCodeModel           = "E001" // model file does not compile
	ErrCodeSchema          = "E002" // network, population or scenario data invalid
	ErrCodeDistribution    = "E003"
	ErrCodeCorrelation     = "E004"
	ErrCodeIdentifiability = "E005"
	ErrCodeSampler         = "E006"
	ErrCodeNotFound        = "E007" // input file or stored fit missing
	ErrCodeStore           = "E008"
	ErrCodeCheckFailed     = "E009"
	ErrCodeCancelled       = "E010"
	ErrCodeInternal        = "E099"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Classify maps an error to its stable code and exit code.
func Classify(err error) (string, int) {
	var compileErr *modelspec.CompileError
	var nmaErr *nma.Error
	switch {
	case errors.As(err, &compileErr):
		return ErrCodeModel, ExitCommandError
	case errors.As(err, &nmaErr):
		switch nmaErr.Code {
		case nma.ErrCodeSchema:
			return ErrCodeSchema, ExitCommandError
		case nma.ErrCodeDistribution:
			return ErrCodeDistribution, ExitFailure
		case nma.ErrCodeCorrelation:
			return ErrCodeCorrelation, ExitFailure
		case nma.ErrCodeIdentifiability:
			return ErrCodeIdentifiability, ExitFailure
		case nma.ErrCodeSampler:
			return ErrCodeSampler, ExitFailure
		}
	case errors.Is(err, store.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ErrCodeNotFound, ExitCommandError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeCancelled, ExitFailure
	}
	return ErrCodeInternal, ExitFailure
}

// errorDetails returns structured context for errors that carry it.
func errorDetails(err error) map[string]string {
	var nmaErr *nma.Error
	if errors.As(err, &nmaErr) {
		d := map[string]string{"category": string(nmaErr.Code)}
		if nmaErr.Study != "" {
			d["study"] = nmaErr.Study
		}
		if nmaErr.Treatment != "" {
			d["treatment"] = nmaErr.Treatment
		}
		if nmaErr.Covariate != "" {
			d["covariate"] = nmaErr.Covariate
		}
		for k, v := range nmaErr.Details {
			d[k] = v
		}
		return d
	}
	var compileErr *modelspec.CompileError
	if errors.As(err, &compileErr) {
		d := map[string]string{"field": compileErr.Field}
		if compileErr.Pos.IsValid() {
			d["position"] = compileErr.Pos.String()
		}
		return d
	}
	return nil
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status   string          `json:"status"`             // "ok" or "error"
	Data     interface{}     `json:"data,omitempty"`     // success payload
	Error    *CLIError       `json:"error,omitempty"`    // error details
	Warnings nma.Diagnostics `json:"warnings,omitempty"` // non-fatal diagnostics
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "E002", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Result outputs data with warnings. In text mode render writes the
// human-readable form and warnings follow it.
func (f *OutputFormatter) Result(data interface{}, warnings nma.Diagnostics, render func(io.Writer) error) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status:   "ok",
			Data:     data,
			Warnings: warnings,
		})
	}
	if err := render(f.Writer); err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(f.Writer, "Warning: %s\n", w)
	}
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := Classify(err)
	var details interface{}
	if d := errorDetails(err); d != nil {
		details = d
	}
	if outErr := f.Error(code, fmt.Sprintf("%s: %v", message, err), details); outErr != nil {
		return outErr
	}
	return WrapExitError(exit, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// writeTable writes left-aligned columns separated by two spaces.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func num(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
