// Package mcp implements the Model Context Protocol (MCP) server for notebrain.
package mcp

import (
	"context"
	"errors"
	"fmt"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
)

// Custom MCP error codes for notebrain.
const (
	// ErrCodeIndexNotFound indicates the index is missing or unusable.
	ErrCodeIndexNotFound = -32001

	// ErrCodeEmbeddingFailed indicates the embedding service failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeNoteNotFound indicates a note no longer exists on disk.
	ErrCodeNoteNotFound = -32004

	// ErrCodeNoteTooLarge indicates a note is too large to return.
	ErrCodeNoteTooLarge = -32005

	// ErrCodeRetrievalFailed indicates both retrieval paths failed.
	ErrCodeRetrievalFailed = -32006

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
// It maps known error types to appropriate MCP error codes and messages.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var be *brainerrors.BrainError
	if errors.As(err, &be) {
		return mapBrainError(be)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Tool not found.",
		}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: "Invalid parameters.",
		}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Resource not found.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// mapBrainError converts a BrainError to an MCPError by code, then category.
func mapBrainError(be *brainerrors.BrainError) *MCPError {
	message := be.Message
	if be.Suggestion != "" {
		message = fmt.Sprintf("%s %s", be.Message, be.Suggestion)
	}

	switch be.Code {
	case brainerrors.ErrCodeQueryEmpty, brainerrors.ErrCodeConfigInvalid:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case brainerrors.ErrCodeRetrievalTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case brainerrors.ErrCodeRetrievalFailed:
		return &MCPError{Code: ErrCodeRetrievalFailed, Message: message}
	case brainerrors.ErrCodeDimensionMismatch, brainerrors.ErrCodeIndexCorrupt:
		return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
	case brainerrors.ErrCodeFileTooLarge:
		return &MCPError{Code: ErrCodeNoteTooLarge, Message: message}
	}

	switch be.Category {
	case brainerrors.CategoryEmbedding:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case brainerrors.CategoryIndex:
		return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
	case brainerrors.CategoryRetrieval:
		return &MCPError{Code: ErrCodeRetrievalFailed, Message: message}
	default: // config, parse, internal
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
