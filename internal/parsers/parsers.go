// Package parsers turns raw bank statement exports into normalized
// transactions.
//
// Three statement families are supported:
//   - delimited: character-separated exports with one booking per row,
//     configurable per bank through column mappings
//   - coda: fixed-width records where one booking spans several lines
//   - mt940: SWIFT-style tagged statements (:61: booking, :86: info)
//
// All three produce the same models.NormalizedTransaction, so the matcher
// never needs to know which bank a statement came from. A malformed line
// never aborts a parse: it is recorded as a ParseError, logged, and the
// remaining lines are processed.
package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"membership-billing-service/internal/models"
	"membership-billing-service/pkg/errors"
)

// Format identifies a supported statement format.
type Format string

const (
	// FormatDelimited is a character-separated export, one booking per row.
	FormatDelimited Format = "delimited"
	// FormatCODA is the Belgian fixed-width multi-line statement format.
	FormatCODA Format = "coda"
	// FormatMT940 is the SWIFT tagged statement format.
	FormatMT940 Format = "mt940"
)

// ParseFormat parses a format name from the CLI or API surface.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "delimited", "csv":
		return FormatDelimited, nil
	case "coda":
		return FormatCODA, nil
	case "mt940", "swift":
		return FormatMT940, nil
	default:
		return "", fmt.Errorf("unknown statement format %q: must be delimited, coda or mt940", s)
	}
}

// ParseError records one unparseable line together with enough context to
// locate it in the source file.
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d (%s=%q): %s: %v",
			e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d (%s=%q): %s",
		e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Stats summarizes one parsing run.
type Stats struct {
	TotalLines int `json:"total_lines"`
	Parsed     int `json:"parsed"`
	Skipped    int `json:"skipped"`
	ErrorCount int `json:"error_count"`
}

func (s Stats) String() string {
	return fmt.Sprintf("%d lines: %d transactions, %d skipped, %d errors",
		s.TotalLines, s.Parsed, s.Skipped, s.ErrorCount)
}

// Result holds the transactions and per-line errors of one parsing run.
// Transactions appear in statement order.
type Result struct {
	Transactions []*models.NormalizedTransaction `json:"transactions"`
	Errors       []*ParseError                   `json:"errors,omitempty"`
	Stats        Stats                           `json:"stats"`
}

// HasErrors reports whether any line failed to parse.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

func (r *Result) addError(line int, field, value, message string, err error) {
	r.Errors = append(r.Errors, &ParseError{
		Line:    line,
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	})
	r.Stats.ErrorCount++
}

// StatementParser parses one statement format into normalized transactions.
type StatementParser interface {
	// Parse reads a whole statement. An empty or header-only input yields
	// an empty result, not an error; only an unreadable stream or an
	// invalid configuration fails the call.
	Parse(ctx context.Context, r io.Reader) (*Result, error)

	// Format returns the format this parser handles.
	Format() Format
}

// Options carries per-format configuration for the dispatcher. A nil
// Options (or nil field) means the format's defaults.
type Options struct {
	Delimited *DelimitedConfig
}

// NewStatementParser constructs the parser for a format.
func NewStatementParser(format Format, opts *Options) (StatementParser, error) {
	if opts == nil {
		opts = &Options{}
	}
	switch format {
	case FormatDelimited:
		return NewDelimitedParser(opts.Delimited)
	case FormatCODA:
		return NewCODAParser(), nil
	case FormatMT940:
		return NewMT940Parser(), nil
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig,
			"statement_format", string(format), nil)
	}
}

// ParseStatement is the one-shot convenience over NewStatementParser.
func ParseStatement(ctx context.Context, r io.Reader, format Format, opts *Options) (*Result, error) {
	parser, err := NewStatementParser(format, opts)
	if err != nil {
		return nil, err
	}
	return parser.Parse(ctx, r)
}
