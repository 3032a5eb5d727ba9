// Package errors provides structured error handling for the extraction engine
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/bttc/roundrobin/pkg/types"
)

// ErrorType groups error codes into broad failure classes
type ErrorType string

const (
	ErrorTypeParsing    ErrorType = "parsing"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeNotFound   ErrorType = "not_found"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Acquisition and parsing errors
	ErrCodeFetchFailed       ErrorCode = "FETCH_FAILED"
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeParsingFailed     ErrorCode = "PARSING_FAILED"
	ErrCodeNoGroups          ErrorCode = "NO_GROUPS"
	ErrCodeNoText            ErrorCode = "NO_TEXT"
	ErrCodeOCRFailed         ErrorCode = "OCR_FAILED"
	ErrCodeMissingDate       ErrorCode = "MISSING_DATE"

	// Validation errors
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"

	// Configuration errors
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"

	// Storage errors
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// EngineError represents a structured error raised by the engine
type EngineError struct {
	Type       ErrorType              `json:"type"`
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"stack_trace,omitempty"`
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithStackTrace adds a stack trace to the error
func (e *EngineError) WithStackTrace() *EngineError {
	e.StackTrace = getStackTrace()
	return e
}

// NewEngineError creates a new engine error
func NewEngineError(errType ErrorType, code ErrorCode, message string) *EngineError {
	return &EngineError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// NewEngineErrorWithCause creates a new engine error with a cause
func NewEngineErrorWithCause(errType ErrorType, code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Parsing error constructors
func NewFetchError(source string, cause error) *EngineError {
	return NewEngineErrorWithCause(ErrorTypeParsing, ErrCodeFetchFailed,
		fmt.Sprintf("failed to fetch %s", source), cause).WithDetail("source", source)
}

func NewUnsupportedFormatError(source string) *EngineError {
	return NewEngineError(ErrorTypeParsing, ErrCodeUnsupportedFormat,
		fmt.Sprintf("unsupported document format: %s", source)).WithDetail("source", source)
}

func NewParsingError(message string, cause error) *EngineError {
	return NewEngineErrorWithCause(ErrorTypeParsing, ErrCodeParsingFailed, message, cause)
}

func NewNoGroupsError(source string) *EngineError {
	return NewEngineError(ErrorTypeParsing, ErrCodeNoGroups,
		"no round robin groups found").WithDetail("source", source)
}

func NewNoTextError(source string) *EngineError {
	return NewEngineError(ErrorTypeParsing, ErrCodeNoText,
		"document yielded no usable text").WithDetail("source", source)
}

func NewOCRError(page int, cause error) *EngineError {
	return NewEngineErrorWithCause(ErrorTypeExternal, ErrCodeOCRFailed,
		fmt.Sprintf("OCR failed on page %d", page), cause).WithDetail("page", page)
}

func NewMissingDateError(source string) *EngineError {
	return NewEngineError(ErrorTypeParsing, ErrCodeMissingDate,
		"could not determine tournament date").WithDetail("source", source)
}

// Validation error constructors
func NewValidationError(message string) *EngineError {
	return NewEngineError(ErrorTypeValidation, ErrCodeValidation, message)
}

// Configuration error constructors
func NewConfigInvalidError(message string, cause error) *EngineError {
	return NewEngineErrorWithCause(ErrorTypeValidation, ErrCodeConfigInvalid, message, cause)
}

func NewConfigNotFoundError(configPath string) *EngineError {
	return NewEngineError(ErrorTypeNotFound, ErrCodeConfigNotFound,
		fmt.Sprintf("configuration file not found: %s", configPath)).WithDetail("config_path", configPath)
}

// Storage error constructors
func NewDatabaseError(message string, cause error) *EngineError {
	return NewEngineErrorWithCause(ErrorTypeInternal, ErrCodeDatabaseError, message, cause)
}

func NewNotFoundError(resource string) *EngineError {
	return NewEngineError(ErrorTypeNotFound, ErrCodeNotFound,
		fmt.Sprintf("%s not found", resource)).WithDetail("resource", resource)
}

func NewInternalError(message string, cause error) *EngineError {
	return NewEngineErrorWithCause(ErrorTypeInternal, ErrCodeInternal, message, cause)
}

// Helper functions
func getStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var trace strings.Builder
	for {
		frame, more := frames.Next()
		trace.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		if !more {
			break
		}
	}

	return trace.String()
}

// GetEngineError extracts an EngineError from an error chain
func GetEngineError(err error) *EngineError {
	var engineErr *EngineError
	if stderrors.As(err, &engineErr) {
		return engineErr
	}
	return nil
}

// HasCode reports whether err carries the given code
func HasCode(err error, code ErrorCode) bool {
	engineErr := GetEngineError(err)
	return engineErr != nil && engineErr.Code == code
}

// IsParsingFailure reports whether err means no document could be decoded
func IsParsingFailure(err error) bool {
	if err == nil {
		return false
	}
	engineErr := GetEngineError(err)
	if engineErr == nil {
		return false
	}
	return engineErr.Type == ErrorTypeParsing || engineErr.Code == ErrCodeOCRFailed
}

// IsValidationFailure reports whether err carries validation errors
func IsValidationFailure(err error) bool {
	if err == nil {
		return false
	}
	var list *ErrorList
	if stderrors.As(err, &list) {
		for _, e := range list.Errors {
			if e.Type == ErrorTypeValidation {
				return true
			}
		}
		return false
	}
	engineErr := GetEngineError(err)
	return engineErr != nil && engineErr.Code == ErrCodeValidation
}

// StatusFor maps an import error onto the tournament parsing status
func StatusFor(err error) types.ParsingStatus {
	switch {
	case err == nil:
		return types.ParsingStatusSuccess
	case IsValidationFailure(err):
		return types.ParsingStatusValidationFailed
	case HasCode(err, ErrCodeDatabaseError):
		return types.ParsingStatusDBError
	default:
		return types.ParsingStatusParsingFailed
	}
}

// WrapError wraps an error as an EngineError
func WrapError(err error, errType ErrorType, code ErrorCode, message string) *EngineError {
	return NewEngineErrorWithCause(errType, code, message, err)
}

// ErrorList represents a list of errors
type ErrorList struct {
	Errors []*EngineError `json:"errors"`
}

// Error implements the error interface
func (el *ErrorList) Error() string {
	return strings.Join(el.Messages(), "; ")
}

// Add adds an error to the list
func (el *ErrorList) Add(err *EngineError) {
	if err != nil {
		el.Errors = append(el.Errors, err)
	}
}

// AddValidation appends a formatted validation error
func (el *ErrorList) AddValidation(format string, args ...interface{}) {
	el.Add(NewValidationError(fmt.Sprintf(format, args...)))
}

// Messages returns the bare messages in insertion order
func (el *ErrorList) Messages() []string {
	messages := make([]string, 0, len(el.Errors))
	for _, err := range el.Errors {
		messages = append(messages, err.Message)
	}
	return messages
}

// HasErrors returns true if there are errors
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// ToError returns the ErrorList as an error if it has errors, otherwise nil
func (el *ErrorList) ToError() error {
	if el.HasErrors() {
		return el
	}
	return nil
}

// NewErrorList creates a new error list
func NewErrorList() *ErrorList {
	return &ErrorList{
		Errors: make([]*EngineError, 0),
	}
}

// Collect collects multiple errors into an ErrorList
func Collect(errs ...*EngineError) *ErrorList {
	el := NewErrorList()
	for _, err := range errs {
		el.Add(err)
	}
	return el
}
