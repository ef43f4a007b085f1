// Package errors provides severity-aware error types.
package errors

import "fmt"

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// GraphError is a structured error with context.
type GraphError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	ResourceID  string   `json:"resource_id,omitempty"`
	Recoverable bool     `json:"recoverable"`
}

func (e *GraphError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("[%s] %s: %s (resource: %s)", e.Severity, e.Code, e.Message, e.ResourceID)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

// Error codes
const (
	ErrCodeCollaboratorUnavailable = "COLLABORATOR_UNAVAILABLE"
	ErrCodeMalformedInput          = "MALFORMED_INPUT"
	ErrCodeFatalParseFailure       = "FATAL_PARSE_FAILURE"
	ErrCodeAmbiguousReference      = "AMBIGUOUS_REFERENCE"
	ErrCodeUnknownResource         = "UNKNOWN_RESOURCE"
)

// NewCollaboratorUnavailableError records an unreachable backing service.
// Processing continues; the error is reported in-band.
func NewCollaboratorUnavailableError(service string, cause error) *GraphError {
	msg := fmt.Sprintf("Collaborator %s unavailable", service)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &GraphError{
		Code:        ErrCodeCollaboratorUnavailable,
		Message:     msg,
		Severity:    SeverityError,
		Recoverable: true,
	}
}

// NewMalformedInputError records a single raw record too malformed to extract
// even an id. The record is skipped, not retried.
func NewMalformedInputError(detail, resourceID string) *GraphError {
	return &GraphError{
		Code:        ErrCodeMalformedInput,
		Message:     detail,
		Severity:    SeverityWarning,
		ResourceID:  resourceID,
		Recoverable: true,
	}
}

// NewFatalParseFailure records an unparseable top-level input. This is the
// only error that crosses the adapter-to-caller boundary as a return value.
func NewFatalParseFailure(detail string, cause error) *GraphError {
	msg := detail
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", detail, cause)
	}
	return &GraphError{
		Code:        ErrCodeFatalParseFailure,
		Message:     msg,
		Severity:    SeverityFatal,
		Recoverable: false,
	}
}

// NewAmbiguousReferenceError records a relationship lookup that matched more
// than one candidate. No edge is created rather than guessing.
func NewAmbiguousReferenceError(reference, resourceID string) *GraphError {
	return &GraphError{
		Code:        ErrCodeAmbiguousReference,
		Message:     fmt.Sprintf("Reference %q matches multiple candidates", reference),
		Severity:    SeverityInfo,
		ResourceID:  resourceID,
		Recoverable: true,
	}
}
