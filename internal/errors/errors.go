package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Validation errors - invalid input data
	ErrorTypeValidation
	// Database errors - source store connection or query failures
	ErrorTypeDatabase
	// FileSystem errors - file I/O failures
	ErrorTypeFileSystem
	// External errors - reasoning service or parser failures
	ErrorTypeExternal
	// Internal errors - unexpected internal state
	ErrorTypeInternal
	// Analysis errors - failures of one analysis attempt
	ErrorTypeAnalysis
	// Cache errors - non-fatal cache storage failures
	ErrorTypeCache
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, may impact functionality
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Code is the reason code carried across the response boundary.
type Code string

const (
	CodeParse          Code = "parse_error"
	CodeRange          Code = "range_error"
	CodeToolBudget     Code = "tool_budget_exceeded"
	CodeMalformed      Code = "malformed_engine_output"
	CodeTimeout        Code = "timeout"
	CodeCacheIO        Code = "cache_io_error"
	CodeEngine         Code = "engine_unavailable"
	CodeCanceled       Code = "canceled"
	CodeInvalidRequest Code = "invalid_request"
	CodeInternal       Code = "internal_error"
)

// Sentinels for errors.Is matching by reason code.
var (
	ErrParse          = &Error{Code: CodeParse}
	ErrRange          = &Error{Code: CodeRange}
	ErrToolBudget     = &Error{Code: CodeToolBudget}
	ErrMalformed      = &Error{Code: CodeMalformed}
	ErrTimeout        = &Error{Code: CodeTimeout}
	ErrCacheIO        = &Error{Code: CodeCacheIO}
	ErrEngine         = &Error{Code: CodeEngine}
	ErrCanceled       = &Error{Code: CodeCanceled}
	ErrInvalidRequest = &Error{Code: CodeInvalidRequest}
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
	Timestamp  string
}

// Failure is the typed failure returned to callers instead of a raw error.
type Failure struct {
	Code   Code   `json:"code" yaml:"code"`
	Reason string `json:"reason" yaml:"reason"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is matches by reason code when the target carries one, otherwise by type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// Failure converts the error into its response-boundary form.
func (e *Error) Failure() Failure {
	code := e.Code
	if code == "" {
		code = CodeInternal
	}
	return Failure{Code: code, Reason: e.Error()}
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Message))

	if e.Code != "" {
		sb.WriteString(fmt.Sprintf("Code: %s\n", e.Code))
	}

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeDatabase:
		return "DATABASE"
	case ErrorTypeFileSystem:
		return "FILESYSTEM"
	case ErrorTypeExternal:
		return "EXTERNAL"
	case ErrorTypeInternal:
		return "INTERNAL"
	case ErrorTypeAnalysis:
		return "ANALYSIS"
	case ErrorTypeCache:
		return "CACHE"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

func coded(e *Error, code Code) *Error {
	e.Code = code
	return e
}

// Convenience constructors for common error types

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// DatabaseError wraps a database error
func DatabaseError(err error, message string) *Error {
	return Wrap(err, ErrorTypeDatabase, SeverityCritical, message)
}

// FileSystemError wraps a filesystem error
func FileSystemError(err error, message string) *Error {
	return Wrap(err, ErrorTypeFileSystem, SeverityHigh, message)
}

// ExternalError wraps an external service error
func ExternalError(err error, message string) *Error {
	return Wrap(err, ErrorTypeExternal, SeverityMedium, message)
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return coded(New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...)), CodeInternal)
}

// Analysis taxonomy

// ParseErrorf reports that the structural parser cannot handle the input.
func ParseErrorf(format string, args ...interface{}) *Error {
	return coded(New(ErrorTypeExternal, SeverityMedium, fmt.Sprintf(format, args...)), CodeParse)
}

// RangeErrorf reports an invalid line-range request.
func RangeErrorf(format string, args ...interface{}) *Error {
	return coded(New(ErrorTypeValidation, SeverityLow, fmt.Sprintf(format, args...)), CodeRange)
}

// ToolBudgetExceeded reports that the exchange loop ran out of iterations.
func ToolBudgetExceeded(iterations, toolCalls int) *Error {
	return coded(New(ErrorTypeAnalysis, SeverityMedium,
		fmt.Sprintf("no terminal payload after %d iterations (%d tool calls)", iterations, toolCalls)), CodeToolBudget).
		WithContext("iterations", iterations).
		WithContext("tool_calls", toolCalls)
}

// MalformedOutput reports a terminal payload that failed schema validation.
func MalformedOutput(err error, message string) *Error {
	if err == nil {
		return coded(New(ErrorTypeAnalysis, SeverityMedium, message), CodeMalformed)
	}
	return coded(Wrap(err, ErrorTypeAnalysis, SeverityMedium, message), CodeMalformed)
}

// Timeout reports that the wall-clock bound of an attempt was reached.
func Timeout(err error, message string) *Error {
	if err == nil {
		return coded(New(ErrorTypeAnalysis, SeverityMedium, message), CodeTimeout)
	}
	return coded(Wrap(err, ErrorTypeAnalysis, SeverityMedium, message), CodeTimeout)
}

// EngineUnavailable reports a transport or provider failure of the reasoning service.
func EngineUnavailable(err error, message string) *Error {
	if err == nil {
		return coded(New(ErrorTypeExternal, SeverityHigh, message), CodeEngine)
	}
	return coded(Wrap(err, ErrorTypeExternal, SeverityHigh, message), CodeEngine)
}

// CacheIO reports a non-fatal cache storage failure.
func CacheIO(err error, message string) *Error {
	return coded(Wrap(err, ErrorTypeCache, SeverityLow, message), CodeCacheIO)
}

// Canceled reports caller-initiated cancellation.
func Canceled(err error) *Error {
	if err == nil {
		err = context.Canceled
	}
	return coded(Wrap(err, ErrorTypeAnalysis, SeverityLow, "analysis canceled"), CodeCanceled)
}

// InvalidRequestf reports a request that cannot be analyzed at all.
func InvalidRequestf(format string, args ...interface{}) *Error {
	return coded(New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...)), CodeInvalidRequest)
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}
	return false
}

// GetSeverity returns the severity of an error
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.Severity
	}

	return SeverityMedium
}

// GetType returns the type of an error
func GetType(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// CodeOf returns the first reason code found in the error chain.
// Context errors map to timeout and canceled.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for cur := err; cur != nil; cur = stderrors.Unwrap(cur) {
		if e, ok := cur.(*Error); ok && e.Code != "" {
			return e.Code
		}
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case stderrors.Is(err, context.Canceled):
		return CodeCanceled
	}
	return CodeInternal
}

// HasCode reports whether err carries the given reason code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// FailureOf converts any error into a typed Failure.
func FailureOf(err error) Failure {
	if err == nil {
		return Failure{}
	}
	var e *Error
	if stderrors.As(err, &e) && e.Code != "" {
		return e.Failure()
	}
	return Failure{Code: CodeOf(err), Reason: err.Error()}
}

// Is mirrors the standard library so callers need a single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As mirrors the standard library so callers need a single errors import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
