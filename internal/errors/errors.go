package errors

import (
	"fmt"
	"time"
)

/**
 * Error types for the prescription scan pipeline and worker.
 *
 * Decode and no-text failures are terminal for an image: retrying the
 * same bytes gives the same answer, so the queue must not retry them.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Pipeline errors
	ErrorDecodeFailed    ErrorCode = "DECODE_FAILED"
	ErrorNoTextExtracted ErrorCode = "NO_TEXT_EXTRACTED"
	ErrorOCRFailed       ErrorCode = "OCR_FAILED"
	ErrorImageTooLarge   ErrorCode = "IMAGE_TOO_LARGE"

	// Worker errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorStorageFailed     ErrorCode = "STORAGE_FAILED"
)

// NoTextMessage is the user-facing message for a page that yielded no text.
const NoTextMessage = "Could not extract any text from the prescription image. Please upload a clearer image."

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether running the same job again could succeed.
func (e *ProcessingError) Retryable() bool {
	switch e.Code {
	case ErrorDecodeFailed, ErrorNoTextExtracted, ErrorImageTooLarge:
		return false
	}
	return true
}

// Factory functions for common errors

func NewDecodeError(cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDecodeFailed,
		Message:   "Could not decode the prescription image",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewNoTextError(engine string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNoTextExtracted,
		Message:   NoTextMessage,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_engine": engine,
		},
	}
}

func NewOCRFailedError(engine string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed at engine: %s", engine),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_engine": engine,
		},
		Cause: cause,
	}
}

func NewImageTooLargeError(jobID string, size, limit int64) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorImageTooLarge,
		Message:   fmt.Sprintf("Image too large: %d bytes (maximum %d)", size, limit),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"size_bytes":  size,
			"limit_bytes": limit,
		},
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store scan result",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}
	if e.JobID != "" {
		result["job_id"] = e.JobID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// ErrorResult is the `{"error": "..."}` shape returned to callers instead of a parse result.
type ErrorResult struct {
	Error string `json:"error"`
}

// ToResult converts any error into the caller-facing error shape.
// Decode failures and generic pipeline failures are prefixed the same way.
func ToResult(err error) ErrorResult {
	if perr, ok := err.(*ProcessingError); ok {
		switch perr.Code {
		case ErrorNoTextExtracted, ErrorImageTooLarge:
			return ErrorResult{Error: perr.Message}
		}
	}
	return ErrorResult{Error: fmt.Sprintf("Local OCR failed: %v", err)}
}
