package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jSoboil/multinma/internal/modelspec"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E001", "model failed", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "E001", resp.Error.Code)
	assert.Equal(t, "model failed", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "model.cue", "line": "42"}
	err := formatter.Error("E002", "bad field", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("fit stored")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "fit stored")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("E001", "model failed", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "model failed")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"file": "model.cue"}
	err := formatter.Error("E001", "model failed", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Processing %s", "model.cue")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Processing model.cue")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{
		Status: "ok",
		Data:   map[string]int{"count": 42},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded CLIResponse
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "ok", decoded.Status)
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    "E100",
		Message: "validation failed",
		Details: []string{"missing field: name"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "E100", decoded.Code)
	assert.Equal(t, "validation failed", decoded.Message)
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("attached %d points", 10)
	assert.Empty(t, out.String())
	assert.Equal(t, "attached 10 points\n", errOut.String())
}

func TestOutputFormatter_ResultText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	warnings := nma.Diagnostics{{Code: nma.WarnRhat, Message: "chains disagree"}}
	err := formatter.Result([]int{1}, warnings, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, "table")
		return err
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "table\n")
	assert.Contains(t, buf.String(), "Warning: ")
	assert.Contains(t, buf.String(), "RHAT")
}

func TestOutputFormatter_ResultJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	warnings := nma.Diagnostics{{Code: nma.WarnRhat, Message: "chains disagree", Value: 1.2}}
	err := formatter.Result(map[string]int{"n": 3}, warnings, func(io.Writer) error {
		t.Fatal("render must not run in JSON mode")
		return nil
	})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, nma.WarnRhat, resp.Warnings[0].Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		exit int
	}{
		{"compile", &modelspec.CompileError{Field: "model", Message: "bad"}, ErrCodeModel, ExitCommandError},
		{"schema", nma.SchemaErrorf("bad"), ErrCodeSchema, ExitCommandError},
		{"distribution", nma.DistributionErrorf("bad"), ErrCodeDistribution, ExitFailure},
		{"correlation", nma.CorrelationErrorf("bad"), ErrCodeCorrelation, ExitFailure},
		{"identifiability", fmt.Errorf("wrapped: %w", nma.IdentifiabilityErrorf("bad")), ErrCodeIdentifiability, ExitFailure},
		{"sampler", nma.SamplerErrorf("bad"), ErrCodeSampler, ExitFailure},
		{"fit not found", fmt.Errorf("read: %w", store.ErrNotFound), ErrCodeNotFound, ExitCommandError},
		{"file not found", fmt.Errorf("open: %w", os.ErrNotExist), ErrCodeNotFound, ExitCommandError},
		{"cancelled", context.Canceled, ErrCodeCancelled, ExitFailure},
		{"other", errors.New("boom"), ErrCodeInternal, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit := Classify(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.exit, exit)
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := &nma.Error{Code: nma.ErrCodeSampler, Message: "not positive definite", Details: map[string]string{"parameters": "d[B]"}}
	err := formatter.Fail("fit failed", cause)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, cause)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSampler, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "fit failed: SAMPLER: not positive definite")
	details, ok := resp.Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "d[B]", details["parameters"])
	assert.Equal(t, "SAMPLER", details["category"])
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", errors.New("cause")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "inner: cause", WrapExitError(ExitCommandError, "inner", errors.New("cause")).Error())
}

func TestWriteTable(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, writeTable(buf, []string{"trt", "mean"}, [][]string{{"B", num(0.5)}, {"Long", num(-1.25)}}))
	assert.Equal(t, "trt   mean\nB     0.500\nLong  -1.250\n", buf.String())
}
