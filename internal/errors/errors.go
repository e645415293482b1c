package errors

import (
	"errors"
	"fmt"
)

// BrainError is the structured error type for notebrain.
// It carries enough context for the indexing report, logs and CLI output.
type BrainError struct {
	// Code is the unique error code (e.g., "ERR_301_EMBEDDING_TIMEOUT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code.
	Category Category

	// Severity is derived from the code.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface. The cause is appended unless the
// message already is the cause's text, as with Wrap.
func (e *BrainError) Error() string {
	if e.Cause != nil {
		if cause := e.Cause.Error(); cause != e.Message {
			return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, cause)
		}
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *BrainError) Unwrap() error {
	return e.Cause
}

// Is matches another BrainError by code so errors.Is works with sentinels.
func (e *BrainError) Is(target error) bool {
	if t, ok := target.(*BrainError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *BrainError) WithDetail(key, value string) *BrainError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *BrainError) WithSuggestion(suggestion string) *BrainError {
	e.Suggestion = suggestion
	return e
}

// New creates a new BrainError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *BrainError {
	return &BrainError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a BrainError from an existing error.
func Wrap(code string, err error) *BrainError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *BrainError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ParseError creates a recoverable per-document parse error.
func ParseError(code, docID, message string, cause error) *BrainError {
	return New(code, message, cause).WithDetail("document", docID)
}

// EmbeddingError creates an embedding service error.
func EmbeddingError(code, message string, cause error) *BrainError {
	return New(code, message, cause)
}

// ConsistencyError reports a chunk present in only one of the two indexes.
func ConsistencyError(chunkID, message string, cause error) *BrainError {
	return New(ErrCodeIndexConsistency, message, cause).
		WithDetail("chunk", chunkID).
		WithSuggestion("run 'notebrain check --repair' or re-run indexing")
}

// RetrievalError creates a query-time error.
func RetrievalError(code, message string, cause error) *BrainError {
	return New(code, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *BrainError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first BrainError in err's chain.
func As(err error) (*BrainError, bool) {
	var be *BrainError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsRetryable reports whether any BrainError in the chain is retryable.
func IsRetryable(err error) bool {
	if be, ok := As(err); ok {
		return be.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if be, ok := As(err); ok {
		return be.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" when err is not a BrainError.
func GetCode(err error) string {
	if be, ok := As(err); ok {
		return be.Code
	}
	return ""
}

// GetCategory extracts the category, or "" when err is not a BrainError.
func GetCategory(err error) Category {
	if be, ok := As(err); ok {
		return be.Category
	}
	return ""
}
