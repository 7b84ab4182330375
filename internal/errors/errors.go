package errors

import (
	stderrors "errors"
	"fmt"
)

// StewardError carries a stable code plus the context needed to log,
// retry, and present a failure: category, severity, detail pairs, and
// an optional suggestion for the user.
type StewardError struct {
	Code       string
	Message    string
	Category   Category
	Severity   Severity
	Details    map[string]string
	Cause      error
	Retryable  bool
	Suggestion string
}

func (e *StewardError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *StewardError) Unwrap() error { return e.Cause }

// Is matches by code, so errors.Is works against a sentinel built with
// the same code regardless of message.
func (e *StewardError) Is(target error) bool {
	t, ok := target.(*StewardError)
	return ok && e.Code == t.Code
}

// WithDetail attaches one key-value pair of context. Chainable.
func (e *StewardError) WithDetail(key, value string) *StewardError {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches a next-step hint for the user. Chainable.
func (e *StewardError) WithSuggestion(suggestion string) *StewardError {
	e.Suggestion = suggestion
	return e
}

// New builds a StewardError for code. Category, severity, and the
// retryable flag all derive from the code so call sites cannot
// disagree with the taxonomy in codes.go.
func New(code, message string, cause error) *StewardError {
	return &StewardError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap lifts err into a StewardError, reusing its message. Returns nil
// for a nil err so call sites can wrap unconditionally.
func Wrap(code string, err error) *StewardError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// The category constructors pin a representative code each; use New
// directly when a more precise code applies.

func ConfigError(message string, cause error) *StewardError {
	return New(ErrCodeConfigInvalid, message, cause)
}

func StorageError(message string, cause error) *StewardError {
	return New(ErrCodeFileNotFound, message, cause)
}

// NetworkError is retryable by code.
func NetworkError(message string, cause error) *StewardError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// RateLimitError marks an LLM backend pushing back; retryable.
func RateLimitError(message string, cause error) *StewardError {
	return New(ErrCodeLLMRateLimited, message, cause)
}

func ValidationError(message string, cause error) *StewardError {
	return New(ErrCodeInvalidInput, message, cause)
}

func InternalError(message string, cause error) *StewardError {
	return New(ErrCodeInternal, message, cause)
}

// find digs the first StewardError out of err's chain, so the
// predicates below see through fmt.Errorf %w wrapping.
func find(err error) (*StewardError, bool) {
	var se *StewardError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetryable reports whether err, or anything it wraps, is a
// retryable StewardError.
func IsRetryable(err error) bool {
	se, ok := find(err)
	return ok && se.Retryable
}

// IsFatal reports whether err carries fatal severity. Fatal errors
// abort the current operation instead of degrading.
func IsFatal(err error) bool {
	se, ok := find(err)
	return ok && se.Severity == SeverityFatal
}

// GetCode returns err's code, or "" when no StewardError is in the
// chain.
func GetCode(err error) string {
	if se, ok := find(err); ok {
		return se.Code
	}
	return ""
}

// GetCategory returns err's category, or "" when no StewardError is in
// the chain.
func GetCategory(err error) Category {
	if se, ok := find(err); ok {
		return se.Category
	}
	return ""
}
