/**
 * Structured error types for the transcript OCR worker
 *
 * Every error surfaced to a caller is coerced into one envelope shape:
 * {error: {code, message, details, timestamp}}. Factory functions build
 * the domain errors; FromErr coerces anything else.
 */

package ocrerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Bad input: oversized, empty, unsupported type. Never retried.
	ErrorValidation ErrorCode = "VALIDATION_ERROR"

	// A processing stage failed after input passed validation.
	ErrorProcessing ErrorCode = "PROCESSING_ERROR"

	// Every recognition backend failed for this document.
	ErrorRecognition ErrorCode = "RECOGNITION_ERROR"

	// A cache operation failed. Never escalated to a fatal pipeline
	// error; treated as a miss.
	ErrorCache ErrorCode = "CACHE_ERROR"

	// A bounded operation exceeded its deadline.
	ErrorTimeout ErrorCode = "TIMEOUT_ERROR"

	// Anything unexpected.
	ErrorInternal ErrorCode = "INTERNAL_ERROR"
)

// PipelineError is the structured error carried through the pipeline.
type PipelineError struct {
	Code      ErrorCode
	Message   string
	Details   map[string]interface{}
	Timestamp time.Time
	Cause     error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, message string, details map[string]interface{}, cause error) *PipelineError {
	if details == nil {
		details = map[string]interface{}{}
	}
	return &PipelineError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// Factory functions for common errors

func NewValidationError(message string, details map[string]interface{}) *PipelineError {
	return newError(ErrorValidation, message, details, nil)
}

func NewProcessingError(message string, cause error, details map[string]interface{}) *PipelineError {
	return newError(ErrorProcessing, message, details, cause)
}

func NewRecognitionError(message string, cause error, details map[string]interface{}) *PipelineError {
	return newError(ErrorRecognition, message, details, cause)
}

func NewCacheError(message string, cause error) *PipelineError {
	return newError(ErrorCache, message, nil, cause)
}

func NewTimeoutError(message string, timeout time.Duration, cause error) *PipelineError {
	return newError(ErrorTimeout, message, map[string]interface{}{
		"timeout": timeout.String(),
	}, cause)
}

// Envelope is the stable failure contract returned to callers.
type Envelope struct {
	Error EnvelopeBody `json:"error"`
}

// EnvelopeBody carries the machine-readable error fields.
type EnvelopeBody struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details"`
	Timestamp string                 `json:"timestamp"`
}

// FromErr coerces any error into the structured envelope. Unexpected
// errors are classified INTERNAL_ERROR with the original message kept in
// details for diagnosis.
func FromErr(err error) Envelope {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return Envelope{Error: EnvelopeBody{
			Code:      string(pe.Code),
			Message:   pe.Message,
			Details:   pe.Details,
			Timestamp: pe.Timestamp.Format(time.RFC3339),
		}}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Envelope{Error: EnvelopeBody{
			Code:    string(ErrorTimeout),
			Message: "processing deadline exceeded",
			Details: map[string]interface{}{
				"cause": err.Error(),
			},
			Timestamp: time.Now().Format(time.RFC3339),
		}}
	}
	return Envelope{Error: EnvelopeBody{
		Code:    string(ErrorInternal),
		Message: "unexpected error during document processing",
		Details: map[string]interface{}{
			"cause": err.Error(),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}}
}

// IsTransient reports whether an error is worth retrying. Only
// connectivity and timeout failures qualify; validation and malformed
// input never do.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		switch pe.Code {
		case ErrorValidation:
			return false
		case ErrorTimeout:
			return true
		}
		if pe.Cause != nil {
			return IsTransient(pe.Cause)
		}
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// ToMap flattens the error for database storage.
func (e *PipelineError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}
	for k, v := range e.Details {
		result[k] = v
	}
	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}
	return result
}
