// Package errs holds the error taxonomy of the recovery pipeline.
//
// ExtractionFailure and RepairExhausted are local: the pipeline recovers from them by falling through to the
// next tier and only ever reports them as the cause of a SchemaMismatch. SchemaMismatch, GenerationError and
// ConfigurationError are terminal for a request.
package errs

import (
	"fmt"
	"strings"
)

// RawPreviewLen is how much of the offending model output a SchemaMismatch carries.
const RawPreviewLen = 300

// BodyPreviewLen is how much of a failed backend response body a GenerationError carries.
const BodyPreviewLen = 200

// ExtractionFailure: no JSON-like substring was found in the text.
type ExtractionFailure struct {
	Raw string
}

func (e *ExtractionFailure) Error() string {
	return "extract json: no json value found in " + Preview(e.Raw, 80)
}

// RepairExhausted: the repaired text still does not parse.
type RepairExhausted struct {
	Repaired string
}

func (e *RepairExhausted) Error() string {
	return "repair json: still invalid after closing open structures: " + Preview(e.Repaired, 80)
}

// SchemaMismatch is returned once every normalization tier failed for a task.
type SchemaMismatch struct {
	Task    string
	Raw     string   // first RawPreviewLen chars of the model output
	Reasons []string // one line per failed tier
	Cause   error
}

func NewSchemaMismatch(task, raw string, reasons []string, cause error) *SchemaMismatch {
	return &SchemaMismatch{
		Task:    task,
		Raw:     Preview(raw, RawPreviewLen),
		Reasons: reasons,
		Cause:   cause,
	}
}

func (e *SchemaMismatch) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "model returned unexpected shape for %s", e.Task)
	if len(e.Reasons) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Reasons, "; "))
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Raw)
	return b.String()
}

func (e *SchemaMismatch) Unwrap() error { return e.Cause }

// GenerationError: the backend failed after the retry budget, or answered with a non-2xx status.
// Status is 0 when the failure happened below HTTP (network, empty payload).
type GenerationError struct {
	Status int
	Body   string
	Err    error
}

func (e *GenerationError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("API Error %d: %s", e.Status, e.Body)
	case e.Err != nil:
		return "generation failed: " + e.Err.Error()
	default:
		return "generation failed: " + e.Body
	}
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ConfigurationError: the client cannot run at all (missing credentials). Raised before any network call.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return e.Setting + " is not set"
}

// Preview returns the first n characters of s.
func Preview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i]
		}
		seen++
	}
	return s
}
