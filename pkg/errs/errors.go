// Package errs provides structured, user-friendly errors with machine-parseable codes.
package errs

import (
	"errors"
	"fmt"
)

// ErrorCode is a machine-parseable error identifier.
type ErrorCode string

const (
	// General
	ErrUnknown    ErrorCode = "ERR-000"
	ErrInternal   ErrorCode = "ERR-001"
	ErrConfig     ErrorCode = "ERR-002"
	ErrValidation ErrorCode = "ERR-003"

	// Node errors
	ErrNodeUnreachable ErrorCode = "ERR-NODE-001"
	ErrNodeAuthFailed  ErrorCode = "ERR-NODE-002"
	ErrNodeUnknown     ErrorCode = "ERR-NODE-003"
	ErrNodeNotFound    ErrorCode = "ERR-NODE-004"
	ErrNodeDuplicate   ErrorCode = "ERR-NODE-005"

	// Report errors
	ErrReportGeneration ErrorCode = "ERR-RPT-001"
	ErrReportKind       ErrorCode = "ERR-RPT-002"

	// Archive errors
	ErrArchiveGeneration ErrorCode = "ERR-ZIP-001"
	ErrArchiveMismatch   ErrorCode = "ERR-ZIP-002"

	// State errors
	ErrStateRead  ErrorCode = "ERR-STATE-001"
	ErrStateWrite ErrorCode = "ERR-STATE-002"
)

// SensorError is the standard structured error type used across sensorhub packages.
type SensorError struct {
	Code   ErrorCode // Machine-parseable error code
	Op     string    // Operation chain, e.g., "report.system.render"
	Node   string    // Resource identifier (node address, report kind, etc.)
	Cause  error     // Wrapped upstream error
	Advice string    // Human-readable remediation hint
}

func (e *SensorError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("[%s] %s (%s): %v", e.Code, e.Op, e.Node, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Op, e.Cause)
}

func (e *SensorError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the formatted user-facing error message with remediation advice.
func (e *SensorError) UserMessage() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Op)
	if e.Node != "" {
		msg += fmt.Sprintf(" (node: %s)", e.Node)
	}
	if e.Advice != "" {
		msg += fmt.Sprintf("\n  → %s", e.Advice)
	}
	return msg
}

// New creates a new SensorError.
func New(code ErrorCode, op string, cause error) *SensorError {
	return &SensorError{Code: code, Op: op, Cause: cause}
}

// Newf creates a new SensorError with a formatted message as the cause.
func Newf(code ErrorCode, op, format string, args ...any) *SensorError {
	return &SensorError{Code: code, Op: op, Cause: fmt.Errorf(format, args...)}
}

// WithNode sets the node/resource identifier on a SensorError.
func (e *SensorError) WithNode(node string) *SensorError {
	e.Node = node
	return e
}

// WithAdvice sets the human-readable remediation hint on a SensorError.
func (e *SensorError) WithAdvice(advice string) *SensorError {
	e.Advice = advice
	return e
}

// Wrap wraps an existing error as a SensorError at a new operation boundary.
func Wrap(err error, code ErrorCode, op string) *SensorError {
	if err == nil {
		return nil
	}
	return &SensorError{Code: code, Op: op, Cause: err}
}

// IsCode reports whether err is a SensorError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *SensorError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// AsSensor extracts the *SensorError from err, or returns nil.
func AsSensor(err error) *SensorError {
	var se *SensorError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// CodeOf returns the code of the outermost SensorError in err, or ErrUnknown.
func CodeOf(err error) ErrorCode {
	if se := AsSensor(err); se != nil {
		return se.Code
	}
	return ErrUnknown
}
