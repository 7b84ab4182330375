// Package mcp implements the Model Context Protocol server for steward.
package mcp

import (
	"context"
	"errors"
	"fmt"

	stewerrors "github.com/shopsteward/steward/internal/errors"
)

// Custom MCP error codes for steward.
const (
	// ErrCodeNoGeneration indicates no contract has been ingested yet.
	ErrCodeNoGeneration = -32001

	// ErrCodeCorruptGeneration indicates the published generation could
	// not be loaded.
	ErrCodeCorruptGeneration = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeArticleNotFound indicates the requested article does not
	// exist in the contract.
	ErrCodeArticleNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrNoGeneration indicates the server has no loaded generation to
	// answer from.
	ErrNoGeneration = errors.New("no contract ingested")

	// ErrArticleNotFound indicates an article lookup found no chunks.
	ErrArticleNotFound = errors.New("article not found")
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

	var stewErr *stewerrors.StewardError
	if errors.As(err, &stewErr) {
		return mapStewardError(stewErr)
	}

	switch {
	case errors.Is(err, ErrNoGeneration):
		return &MCPError{
			Code:    ErrCodeNoGeneration,
			Message: "No contract ingested yet. Run 'steward ingest <contract.md>' first.",
		}
	case errors.Is(err, ErrArticleNotFound):
		return &MCPError{
			Code:    ErrCodeArticleNotFound,
			Message: "Article not found in this contract.",
		}
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

// NewArticleNotFoundError creates an error for an article the contract
// does not have.
func NewArticleNotFoundError(articleNum int) *MCPError {
	return &MCPError{
		Code:    ErrCodeArticleNotFound,
		Message: fmt.Sprintf("Article %d not found. Call contract_info for the list of articles.", articleNum),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// mapStewardError converts a StewardError to an MCPError.
func mapStewardError(se *stewerrors.StewardError) *MCPError {
	// Build message with suggestion if available
	message := se.Message
	if se.Suggestion != "" {
		message = fmt.Sprintf("%s %s", se.Message, se.Suggestion)
	}

	switch se.Category {
	case stewerrors.CategoryStorage:
		switch se.Code {
		case stewerrors.ErrCodeGenerationMissing:
			return &MCPError{
				Code:    ErrCodeNoGeneration,
				Message: "No contract ingested yet. Run 'steward ingest <contract.md>' first.",
			}
		case stewerrors.ErrCodeCorruptIndex, stewerrors.ErrCodeFileCorrupt:
			return &MCPError{
				Code:    ErrCodeCorruptGeneration,
				Message: message,
			}
		default:
			return &MCPError{
				Code:    ErrCodeInternalError,
				Message: message,
			}
		}
	case stewerrors.CategoryNetwork:
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: message,
		}
	case stewerrors.CategoryValidation:
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: message,
		}
	default: // CategoryConfig, CategoryInternal, and unknown
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	}
}
