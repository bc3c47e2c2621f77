// Package errors defines the error taxonomy used across the billing and
// reconciliation engine: categorized, coded errors with optional context
// and fix suggestions, plus batch summaries for tenant-wide operations.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Category represents a class of errors with a shared handling policy.
type Category string

const (
	CategoryRepository    Category = "repository"
	CategoryParse         Category = "parse"
	CategoryValidation    Category = "validation"
	CategoryConfiguration Category = "configuration"
	CategoryBilling       Category = "billing"
	CategoryMatching      Category = "matching"
	CategoryInternal      Category = "internal"
)

// Code identifies a specific error condition within a category.
type Code string

const (
	// Repository errors
	CodeNotFound     Code = "not_found"
	CodeDuplicateKey Code = "duplicate_key"
	CodeStorage      Code = "storage_error"

	// Parse errors
	CodeInvalidFormat  Code = "invalid_format"
	CodeInvalidAmount  Code = "invalid_amount"
	CodeInvalidDate    Code = "invalid_date"
	CodeRecordTooShort Code = "record_too_short"

	// Validation errors
	CodeMissingField Code = "missing_field"
	CodeOutOfRange   Code = "out_of_range"

	// Configuration errors
	CodeInvalidConfig Code = "invalid_config"
	CodeMissingConfig Code = "missing_config"

	// Billing errors
	CodeMissingSettings  Code = "missing_settings"
	CodeGenerationFailed Code = "generation_failed"

	// Matching errors
	CodeMatchingFailed Code = "matching_failed"

	// Internal errors
	CodeUnexpected Code = "unexpected_error"
)

// BillingError is the base error type for all application errors.
type BillingError struct {
	Category   Category          `json:"category"`
	Code       Code              `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context carries additional structured information about the error.
type Context map[string]interface{}

// Error implements the error interface.
func (e *BillingError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error.
func (e *BillingError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the process exit code for the error category.
func (e *BillingError) ExitCode() int {
	switch e.Category {
	case CategoryRepository:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryBilling, CategoryMatching, CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithContext adds one key of context information to the error.
func (e *BillingError) WithContext(key string, value interface{}) *BillingError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error.
func (e *BillingError) WithSuggestion(suggestion string) *BillingError {
	e.Suggestion = suggestion
	return e
}

// New creates a new BillingError.
func New(category Category, code Code, message string) *BillingError {
	return &BillingError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with BillingError context.
func Wrap(err error, category Category, code Code, message string) *BillingError {
	if err == nil {
		return nil
	}
	return &BillingError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// RepositoryError creates a repository-related error.
func RepositoryError(code Code, entity, id string, err error) *BillingError {
	var message, suggestion string
	switch code {
	case CodeNotFound:
		message = fmt.Sprintf("%s not found: %s", entity, id)
		suggestion = "check that the identifier is correct and the record exists"
	case CodeDuplicateKey:
		message = fmt.Sprintf("%s already exists: %s", entity, id)
		suggestion = "a record with the same natural key is already present"
	default:
		message = fmt.Sprintf("storage error for %s %s", entity, id)
		suggestion = "check database connectivity and schema"
	}

	result := wrapOrNew(err, CategoryRepository, code, message)
	return result.
		WithSuggestion(suggestion).
		WithContext("entity", entity).
		WithContext("id", id)
}

// IsNotFound reports whether the error chain contains a not-found error.
func IsNotFound(err error) bool {
	if be, ok := AsBillingError(err); ok {
		return be.Code == CodeNotFound
	}
	return false
}

// IsDuplicateKey reports whether the error chain contains a unique
// constraint violation. Fee generation treats these as successful no-ops.
func IsDuplicateKey(err error) bool {
	if be, ok := AsBillingError(err); ok {
		return be.Code == CodeDuplicateKey
	}
	return false
}

// ParseError creates a statement parsing error.
func ParseError(code Code, format string, line int, value string, err error) *BillingError {
	var message, suggestion string
	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in %s statement at line %d: %q", format, line, value)
		suggestion = "amounts must use decimal-comma (1.234,56) or plain decimal notation"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in %s statement at line %d: %q", format, line, value)
		suggestion = "dates must be day/month/year with /, - or . separators"
	case CodeRecordTooShort:
		message = fmt.Sprintf("record too short in %s statement at line %d", format, line)
		suggestion = "check that the file is a complete, unmodified bank export"
	default:
		message = fmt.Sprintf("invalid format in %s statement at line %d: %q", format, line, value)
		suggestion = "check the statement format and the selected parser"
	}

	result := wrapOrNew(err, CategoryParse, code, message)
	return result.
		WithSuggestion(suggestion).
		WithContext("format", format).
		WithContext("line", line).
		WithContext("value", value)
}

// ValidationError creates a validation-related error.
func ValidationError(code Code, field string, value interface{}, err error) *BillingError {
	var message, suggestion string
	switch code {
	case CodeMissingField:
		message = fmt.Sprintf("required field %q is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field %q: %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field %q: %v", field, value)
		suggestion = "check the field value and format"
	}

	result := wrapOrNew(err, CategoryValidation, code, message)
	return result.
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error.
func ConfigurationError(code Code, setting string, value interface{}, err error) *BillingError {
	var message, suggestion string
	switch code {
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting via flag, environment or config file"
	default:
		message = fmt.Sprintf("invalid configuration for %q: %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	}

	result := wrapOrNew(err, CategoryConfiguration, code, message)
	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// BillingOpError creates a fee generation or rollover error.
func BillingOpError(code Code, memberID string, err error) *BillingError {
	var message, suggestion string
	switch code {
	case CodeMissingSettings:
		message = fmt.Sprintf("member %s has no financial settings", memberID)
		suggestion = "configure a billing term and amount for the member, or a tenant default"
	default:
		message = fmt.Sprintf("fee generation failed for member %s", memberID)
		suggestion = "check the member's billing configuration and retry"
	}

	result := wrapOrNew(err, CategoryBilling, code, message)
	return result.
		WithSuggestion(suggestion).
		WithContext("member_id", memberID)
}

// MatchingError creates a matching-related error.
func MatchingError(operation string, err error) *BillingError {
	result := wrapOrNew(err, CategoryMatching, CodeMatchingFailed,
		fmt.Sprintf("matching failed during %s", operation))
	return result.
		WithSuggestion("try adjusting matching tolerances or check data quality").
		WithContext("operation", operation)
}

// InternalError creates an internal error.
func InternalError(operation string, err error) *BillingError {
	result := wrapOrNew(err, CategoryInternal, CodeUnexpected,
		fmt.Sprintf("unexpected error during %s", operation))
	return result.
		WithSuggestion("this is likely a bug, please report it with the error details").
		WithContext("operation", operation)
}

func wrapOrNew(err error, category Category, code Code, message string) *BillingError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// Summary aggregates the errors of a batch-level operation, e.g. one
// tenant-wide fee generation run.
type Summary struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"by_category"`
	ByCode     map[Code]int     `json:"by_code"`
	Errors     []*BillingError  `json:"errors"`
}

// NewSummary creates a summary over the given errors.
func NewSummary(errs []*BillingError) *Summary {
	summary := &Summary{
		Total:      len(errs),
		ByCategory: make(map[Category]int),
		ByCode:     make(map[Code]int),
		Errors:     errs,
	}
	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}
	return summary
}

// Error returns a formatted message for the summary.
func (s *Summary) Error() string {
	if s.Total == 0 {
		return "no errors"
	}
	if s.Total == 1 {
		return s.Errors[0].Error()
	}

	var categories []string
	for category, count := range s.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	return fmt.Sprintf("%d errors occurred (%s)", s.Total, strings.Join(categories, ", "))
}

// ExitCode returns the highest priority exit code among all errors.
func (s *Summary) ExitCode() int {
	if s.Total == 0 {
		return 0
	}
	maxCode := 1
	for _, err := range s.Errors {
		if code := err.ExitCode(); code > maxCode {
			maxCode = code
		}
	}
	return maxCode
}

// AsBillingError extracts a BillingError from an error chain.
func AsBillingError(err error) (*BillingError, bool) {
	var billingErr *BillingError
	if errors.As(err, &billingErr) {
		return billingErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error unless it is already a BillingError.
func WrapIfNeeded(err error, category Category, code Code, message string) *BillingError {
	if err == nil {
		return nil
	}
	if billingErr, ok := AsBillingError(err); ok {
		return billingErr
	}
	return Wrap(err, category, code, message)
}
