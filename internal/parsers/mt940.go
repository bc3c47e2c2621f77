package parsers

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strings"
	"time"

	"membership-billing-service/internal/models"
	"membership-billing-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// statementLinePattern captures one :61: statement line:
// value date, optional entry date, debit/credit mark, amount with comma
// decimals, transaction type code and customer reference.
var statementLinePattern = regexp.MustCompile(
	`^(\d{6})(\d{4})?(R?[CD])(\d+,\d*)(N[A-Z0-9]{3})?(.*)$`)

// MT940Parser parses SWIFT tagged statements. Each :61: line opens a
// booking and the :86: block that follows carries its free-form
// information, continued on untagged lines.
type MT940Parser struct {
	loc *time.Location
	log logger.Logger
}

// NewMT940Parser creates an MT940 parser using the Brussels civil calendar.
func NewMT940Parser() *MT940Parser {
	loc, err := time.LoadLocation("Europe/Brussels")
	if err != nil {
		loc = time.UTC
	}
	return &MT940Parser{
		loc: loc,
		log: logger.Global().WithComponent("mt940_parser"),
	}
}

// Format returns FormatMT940.
func (p *MT940Parser) Format() Format {
	return FormatMT940
}

// Parse reads a whole tagged statement. A malformed :61: line is recorded
// and skipped; its trailing :86: block is then ignored too.
func (p *MT940Parser) Parse(ctx context.Context, r io.Reader) (*Result, error) {
	result := &Result{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256), 1024*1024)

	var current *models.NormalizedTransaction
	inInfo := false

	flush := func() {
		if current == nil {
			return
		}
		p.finalize(current)
		result.Transactions = append(result.Transactions, current)
		result.Stats.Parsed++
		current = nil
	}

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		line++
		result.Stats.TotalLines++

		raw := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || trimmed == "-" {
			result.Stats.Skipped++
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, ":61:"):
			flush()
			inInfo = false
			tx, perr := p.parseStatementLine(trimmed[4:])
			if perr != nil {
				perr.Line = line
				result.Errors = append(result.Errors, perr)
				result.Stats.ErrorCount++
				result.Stats.Skipped++
				p.log.WithError(perr).WithField("line", line).Warn("Skipping unparseable statement line")
				continue
			}
			current = tx
		case strings.HasPrefix(trimmed, ":86:"):
			inInfo = current != nil
			if inInfo {
				p.applyInfo(current, trimmed[4:])
			} else {
				result.Stats.Skipped++
			}
		case strings.HasPrefix(trimmed, ":62F:"), strings.HasPrefix(trimmed, ":62M:"):
			// Closing balance ends the current booking block.
			flush()
			result.Stats.Skipped++
			inInfo = false
		case strings.HasPrefix(trimmed, ":"):
			// :20:, :25:, :28C:, :60F: and friends carry statement
			// bookkeeping the normalized transaction does not need.
			result.Stats.Skipped++
			inInfo = false
		case inInfo:
			p.applyInfo(current, trimmed)
		default:
			result.Stats.Skipped++
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return result, err
	}
	p.log.WithField("stats", result.Stats.String()).Debug("MT940 parse complete")
	return result, nil
}

func (p *MT940Parser) parseStatementLine(body string) (*models.NormalizedTransaction, *ParseError) {
	m := statementLinePattern.FindStringSubmatch(strings.TrimSpace(body))
	if m == nil {
		return nil, &ParseError{Field: "statement_line", Value: body, Message: "unrecognized :61: layout"}
	}

	date, err := time.ParseInLocation("060102", m[1], p.loc)
	if err != nil {
		return nil, &ParseError{Field: "value_date", Value: m[1], Message: "invalid value date", Err: err}
	}

	side := models.SideCredit
	if strings.HasSuffix(m[3], "D") {
		side = models.SideDebet
	}

	amount, err := decimal.NewFromString(strings.Replace(strings.TrimSuffix(m[4], ","), ",", ".", 1))
	if err != nil {
		return nil, &ParseError{Field: "amount", Value: m[4], Message: "invalid amount", Err: err}
	}

	tx := newTransaction()
	tx.BookingDate = date
	tx.Amount = amount
	tx.Side = side

	// The customer reference runs up to the bank's own //-reference.
	ref := strings.TrimSpace(m[6])
	if idx := strings.Index(ref, "//"); idx >= 0 {
		ref = strings.TrimSpace(ref[:idx])
	}
	if ref != "NONREF" {
		tx.Reference = ref
	}
	return tx, nil
}

// applyInfo folds one :86: information line into the booking. Structured
// /EREF/ and /NAME/ fields override the free-form fallbacks.
func (p *MT940Parser) applyInfo(tx *models.NormalizedTransaction, info string) {
	info = strings.TrimSpace(info)
	if info == "" {
		return
	}

	if v := structuredField(info, "EREF"); v != "" && tx.Reference == "" {
		tx.Reference = v
	}
	if v := structuredField(info, "NAME"); v != "" {
		tx.Counterparty = v
	}
	if tx.IBAN == "" {
		if v := structuredField(info, "IBAN"); v != "" {
			tx.IBAN = ExtractIBAN(v)
		} else if iban := ExtractIBAN(info); iban != "" {
			tx.IBAN = iban
		}
	}
	tx.Description = joinDescription(tx.Description, info)
}

func (p *MT940Parser) finalize(tx *models.NormalizedTransaction) {
	tx.Description = strings.TrimSpace(tx.Description)
	if tx.Counterparty == "" && tx.Description != "" && !strings.Contains(tx.Description, "/") {
		// Unstructured single-line info is usually just the name.
		tx.Counterparty = tx.Description
	}
}

// structuredField extracts the value of a /TAG/value field from an :86:
// information block.
func structuredField(info, tag string) string {
	marker := "/" + tag + "/"
	idx := strings.Index(info, marker)
	if idx < 0 {
		return ""
	}
	rest := info[idx+len(marker):]
	if end := strings.Index(rest, "/"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
