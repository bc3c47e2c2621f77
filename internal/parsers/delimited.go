package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"membership-billing-service/internal/models"
	"membership-billing-service/pkg/errors"
	"membership-billing-service/pkg/logger"
)

// DelimitedConfig maps the columns of one bank's character-separated
// export. Column values are zero-based indexes into each record; optional
// columns use -1.
type DelimitedConfig struct {
	// Delimiter separates the fields of one record.
	Delimiter rune
	// SkipLines is the number of leading preamble lines above the header
	// row (or above the data when there is no header).
	SkipLines int
	// HasHeader marks the first non-skipped row as a header row.
	HasHeader bool

	DateColumn         int
	AmountColumn       int
	CounterpartyColumn int
	IBANColumn         int
	DescriptionColumn  int
	ReferenceColumn    int
	CurrencyColumn     int

	// DateLocation is the civil calendar the statement's dates live in.
	DateLocation *time.Location
}

// DefaultDelimitedConfig returns the generic comma-separated mapping:
// date, amount, counterparty, IBAN, description, reference.
func DefaultDelimitedConfig() *DelimitedConfig {
	return &DelimitedConfig{
		Delimiter:          ',',
		HasHeader:          true,
		DateColumn:         0,
		AmountColumn:       1,
		CounterpartyColumn: 2,
		IBANColumn:         3,
		DescriptionColumn:  4,
		ReferenceColumn:    5,
		CurrencyColumn:     -1,
	}
}

// INGDelimitedConfig maps the semicolon-separated ING export.
func INGDelimitedConfig() *DelimitedConfig {
	return &DelimitedConfig{
		Delimiter:          ';',
		HasHeader:          true,
		DateColumn:         0,
		CounterpartyColumn: 1,
		IBANColumn:         2,
		AmountColumn:       3,
		CurrencyColumn:     4,
		DescriptionColumn:  5,
		ReferenceColumn:    6,
	}
}

// KBCDelimitedConfig maps the semicolon-separated KBC export, which
// carries one preamble line above the header.
func KBCDelimitedConfig() *DelimitedConfig {
	return &DelimitedConfig{
		Delimiter:          ';',
		SkipLines:          1,
		HasHeader:          true,
		IBANColumn:         0,
		DateColumn:         1,
		AmountColumn:       2,
		CurrencyColumn:     3,
		CounterpartyColumn: 4,
		DescriptionColumn:  5,
		ReferenceColumn:    6,
	}
}

// BelfiusDelimitedConfig maps the comma-separated Belfius export.
func BelfiusDelimitedConfig() *DelimitedConfig {
	return &DelimitedConfig{
		Delimiter:          ',',
		HasHeader:          true,
		DateColumn:         0,
		ReferenceColumn:    1,
		CounterpartyColumn: 2,
		IBANColumn:         3,
		DescriptionColumn:  4,
		AmountColumn:       5,
		CurrencyColumn:     -1,
	}
}

// BankPreset returns the column mapping for a named bank export, or the
// generic default when the name is empty.
func BankPreset(name string) (*DelimitedConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return DefaultDelimitedConfig(), nil
	case "ing":
		return INGDelimitedConfig(), nil
	case "kbc":
		return KBCDelimitedConfig(), nil
	case "belfius":
		return BelfiusDelimitedConfig(), nil
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "bank_preset", name, nil).
			WithSuggestion("Known presets: ing, kbc, belfius")
	}
}

// Validate checks the configuration for internal consistency.
func (c *DelimitedConfig) Validate() error {
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter must be set")
	}
	if c.SkipLines < 0 {
		return fmt.Errorf("skip lines cannot be negative")
	}
	if c.DateColumn < 0 {
		return fmt.Errorf("date column is required")
	}
	if c.AmountColumn < 0 {
		return fmt.Errorf("amount column is required")
	}
	if c.DateColumn == c.AmountColumn {
		return fmt.Errorf("date and amount cannot share column %d", c.DateColumn)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *DelimitedConfig) Clone() *DelimitedConfig {
	clone := *c
	return &clone
}

func (c *DelimitedConfig) location() *time.Location {
	if c.DateLocation != nil {
		return c.DateLocation
	}
	return time.UTC
}

// DelimitedParser parses character-separated exports, one booking per row.
type DelimitedParser struct {
	config *DelimitedConfig
	log    logger.Logger
}

// NewDelimitedParser creates a delimited parser. A nil config uses the
// generic default mapping.
func NewDelimitedParser(config *DelimitedConfig) (*DelimitedParser, error) {
	if config == nil {
		config = DefaultDelimitedConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "delimited_parser", "", err)
	}
	return &DelimitedParser{
		config: config.Clone(),
		log:    logger.Global().WithComponent("delimited_parser"),
	}, nil
}

// Format returns FormatDelimited.
func (p *DelimitedParser) Format() Format {
	return FormatDelimited
}

// Parse reads the whole export. Rows that fail field parsing are recorded
// and skipped; the remaining rows still produce transactions.
func (p *DelimitedParser) Parse(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.Comma = p.config.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	result := &Result{}
	line := 0
	headerPending := p.config.HasHeader

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Stats.TotalLines++
			result.Stats.Skipped++
			result.addError(line, "record", "", "malformed row", err)
			p.log.WithError(err).WithField("line", line).Warn("Skipping malformed row")
			continue
		}
		result.Stats.TotalLines++

		if line <= p.config.SkipLines {
			result.Stats.Skipped++
			continue
		}
		if headerPending {
			headerPending = false
			result.Stats.Skipped++
			continue
		}
		if isBlankRecord(record) {
			result.Stats.Skipped++
			continue
		}

		tx, perr := p.parseRecord(record)
		if perr != nil {
			perr.Line = line
			result.Errors = append(result.Errors, perr)
			result.Stats.ErrorCount++
			result.Stats.Skipped++
			p.log.WithError(perr).WithField("line", line).Warn("Skipping unparseable row")
			continue
		}
		result.Transactions = append(result.Transactions, tx)
		result.Stats.Parsed++
	}

	p.log.WithField("stats", result.Stats.String()).Debug("Delimited parse complete")
	return result, nil
}

func (p *DelimitedParser) parseRecord(record []string) (*models.NormalizedTransaction, *ParseError) {
	rawDate := fieldAt(record, p.config.DateColumn)
	date, err := ParseFlexibleDate(rawDate, p.config.location())
	if err != nil {
		return nil, &ParseError{Field: "date", Value: rawDate, Message: "invalid booking date", Err: err}
	}

	rawAmount := fieldAt(record, p.config.AmountColumn)
	amount, side, err := ParseAmount(rawAmount)
	if err != nil {
		return nil, &ParseError{Field: "amount", Value: rawAmount, Message: "invalid amount", Err: err}
	}

	tx := newTransaction()
	tx.BookingDate = date
	tx.Amount = amount
	tx.Side = side
	tx.Counterparty = strings.TrimSpace(fieldAt(record, p.config.CounterpartyColumn))
	tx.Description = strings.TrimSpace(fieldAt(record, p.config.DescriptionColumn))
	tx.Reference = strings.TrimSpace(fieldAt(record, p.config.ReferenceColumn))

	if currency := strings.TrimSpace(fieldAt(record, p.config.CurrencyColumn)); currency != "" {
		tx.Currency = strings.ToUpper(currency)
	}

	tx.IBAN = ExtractIBAN(fieldAt(record, p.config.IBANColumn))
	if tx.IBAN == "" {
		tx.IBAN = ExtractIBAN(tx.Description)
	}
	return tx, nil
}

func fieldAt(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return record[index]
}

func isBlankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
