// Package errors provides structured error handling for notebrain.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Parse and document source errors (recovered per document)
//   - 3XX: Embedding service errors
//   - 4XX: Index consistency and storage errors
//   - 5XX: Retrieval errors
//   - 9XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryParse indicates malformed or unreadable documents.
	CategoryParse Category = "PARSE"
	// CategoryEmbedding indicates failures of the external embedding service.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryIndex indicates lexical/vector store disagreement or write failures.
	CategoryIndex Category = "INDEX"
	// CategoryRetrieval indicates query-time failures.
	CategoryRetrieval Category = "RETRIEVAL"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Parse and source errors (200-299)
	ErrCodeFrontmatterInvalid = "ERR_201_FRONTMATTER_INVALID"
	ErrCodeDueDateInvalid     = "ERR_202_DUE_DATE_INVALID"
	ErrCodeNotText            = "ERR_203_NOT_TEXT"
	ErrCodeFileTooLarge       = "ERR_204_FILE_TOO_LARGE"
	ErrCodeSourceRead         = "ERR_205_SOURCE_READ"

	// Embedding errors (300-399)
	ErrCodeEmbeddingTimeout     = "ERR_301_EMBEDDING_TIMEOUT"
	ErrCodeEmbeddingRateLimited = "ERR_302_EMBEDDING_RATE_LIMITED"
	ErrCodeEmbeddingUnavailable = "ERR_303_EMBEDDING_UNAVAILABLE"
	ErrCodeEmbeddingMalformed   = "ERR_304_EMBEDDING_MALFORMED"
	ErrCodeEmbeddingExhausted   = "ERR_305_EMBEDDING_EXHAUSTED"
	ErrCodeDimensionMismatch    = "ERR_306_DIMENSION_MISMATCH"

	// Index errors (400-499)
	ErrCodeIndexConsistency = "ERR_401_INDEX_CONSISTENCY"
	ErrCodeIndexWrite       = "ERR_402_INDEX_WRITE"
	ErrCodeIndexLocked      = "ERR_403_INDEX_LOCKED"
	ErrCodeIndexCorrupt     = "ERR_404_INDEX_CORRUPT"

	// Retrieval errors (500-599)
	ErrCodeRetrievalTimeout = "ERR_501_RETRIEVAL_TIMEOUT"
	ErrCodeRetrievalFailed  = "ERR_502_RETRIEVAL_FAILED"
	ErrCodeQueryEmpty       = "ERR_503_QUERY_EMPTY"

	// Internal errors (900-999)
	ErrCodeInternal = "ERR_901_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "1" from "ERR_101_CONFIG_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryParse
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryIndex
	case '5':
		return CategoryRetrieval
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexCorrupt:
		return SeverityFatal
	case ErrCodeFrontmatterInvalid, ErrCodeDueDateInvalid, ErrCodeNotText,
		ErrCodeFileTooLarge, ErrCodeRetrievalTimeout:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingTimeout, ErrCodeEmbeddingRateLimited,
		ErrCodeEmbeddingUnavailable, ErrCodeEmbeddingMalformed:
		return true
	default:
		return false
	}
}
