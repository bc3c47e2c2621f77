package parsers

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"membership-billing-service/internal/models"
	"membership-billing-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// CODA record layout, fixed-width with one record type digit at position
// zero. One booking spans a type-2 article-1 movement line plus optional
// article-2/3 continuation lines and type-3 information lines.
const (
	codaSignPos       = 31
	codaAmountStart   = 32
	codaAmountEnd     = 47
	codaDateStart     = 47
	codaDateEnd       = 53
	codaCommStart     = 62
	codaCommEnd       = 115
	codaCptyAcctStart = 10
	codaCptyAcctEnd   = 47
	codaCptyNameStart = 47
	codaCptyNameEnd   = 82
)

// CODAParser parses Belgian fixed-width statement files. Movement amounts
// carry three implicit decimals and the value date is DDMMYY.
type CODAParser struct {
	loc *time.Location
	log logger.Logger
}

// NewCODAParser creates a CODA parser using the Brussels civil calendar.
func NewCODAParser() *CODAParser {
	loc, err := time.LoadLocation("Europe/Brussels")
	if err != nil {
		loc = time.UTC
	}
	return &CODAParser{
		loc: loc,
		log: logger.Global().WithComponent("coda_parser"),
	}
}

// Format returns FormatCODA.
func (p *CODAParser) Format() Format {
	return FormatCODA
}

// Parse reads a whole CODA file. Records too short for their type are
// recorded as errors and skipped; the booking under construction survives
// a bad continuation line.
func (p *CODAParser) Parse(ctx context.Context, r io.Reader) (*Result, error) {
	result := &Result{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256), 1024*1024)

	var current *models.NormalizedTransaction
	flush := func() {
		if current == nil {
			return
		}
		current.Description = strings.TrimSpace(current.Description)
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

		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			result.Stats.Skipped++
			continue
		}

		switch raw[0] {
		case '0', '1', '4':
			// File header, old/new balance and free communication records
			// carry nothing the normalized transaction needs.
			result.Stats.Skipped++
		case '2':
			p.parseMovement(raw, line, result, &current, flush)
		case '3':
			// Information record, extends the current booking's description.
			if current != nil {
				current.Description = joinDescription(current.Description, infoText(raw))
			} else {
				result.Stats.Skipped++
			}
		case '8', '9':
			// Trailer records close the statement.
			flush()
			result.Stats.Skipped++
		default:
			result.Stats.Skipped++
			result.addError(line, "record_type", raw[:1], "unknown record type", nil)
			p.log.WithField("line", line).Warn("Skipping unknown record type")
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return result, err
	}
	p.log.WithField("stats", result.Stats.String()).Debug("CODA parse complete")
	return result, nil
}

// parseMovement handles a type-2 record. Article 1 opens a new booking,
// articles 2 and 3 enrich the one under construction.
func (p *CODAParser) parseMovement(raw string, line int, result *Result, current **models.NormalizedTransaction, flush func()) {
	if len(raw) < 2 {
		result.Stats.Skipped++
		result.addError(line, "record", raw, "movement record too short", nil)
		return
	}

	switch raw[1] {
	case '1':
		flush()
		tx, perr := p.parseMovementArticle1(raw)
		if perr != nil {
			perr.Line = line
			result.Errors = append(result.Errors, perr)
			result.Stats.ErrorCount++
			result.Stats.Skipped++
			p.log.WithError(perr).WithField("line", line).Warn("Skipping unparseable movement")
			return
		}
		*current = tx
	case '2':
		if *current != nil && len(raw) > codaCommStart {
			extra := strings.TrimSpace(raw[codaCommStart:min(len(raw), codaCommEnd)])
			(*current).Description = joinDescription((*current).Description, extra)
		}
	case '3':
		if *current != nil {
			p.enrichCounterparty(raw, *current)
		}
	default:
		result.Stats.Skipped++
		result.addError(line, "article", raw[1:2], "unknown movement article", nil)
	}
}

func (p *CODAParser) parseMovementArticle1(raw string) (*models.NormalizedTransaction, *ParseError) {
	if len(raw) < codaDateEnd {
		return nil, &ParseError{Field: "record", Value: raw, Message: "movement record too short"}
	}

	side := models.SideCredit
	if raw[codaSignPos] == '1' {
		side = models.SideDebet
	}

	rawAmount := raw[codaAmountStart:codaAmountEnd]
	cents, err := strconv.ParseInt(strings.TrimSpace(rawAmount), 10, 64)
	if err != nil {
		return nil, &ParseError{Field: "amount", Value: rawAmount, Message: "invalid movement amount", Err: err}
	}

	rawDate := raw[codaDateStart:codaDateEnd]
	date, err := p.parseCODADate(rawDate)
	if err != nil {
		return nil, &ParseError{Field: "value_date", Value: rawDate, Message: "invalid value date", Err: err}
	}

	tx := newTransaction()
	tx.BookingDate = date
	tx.Amount = decimal.New(cents, -3)
	tx.Side = side

	if len(raw) > codaCommStart {
		comm := strings.TrimSpace(raw[codaCommStart:min(len(raw), codaCommEnd)])
		tx.Description = comm
		tx.Reference = comm
	}
	return tx, nil
}

// enrichCounterparty handles a type-2 article-3 record carrying the
// counterparty account and name.
func (p *CODAParser) enrichCounterparty(raw string, tx *models.NormalizedTransaction) {
	if len(raw) > codaCptyAcctStart {
		account := strings.TrimSpace(raw[codaCptyAcctStart:min(len(raw), codaCptyAcctEnd)])
		if iban := ExtractIBAN(account); iban != "" {
			tx.IBAN = iban
		}
	}
	if len(raw) > codaCptyNameStart {
		tx.Counterparty = strings.TrimSpace(raw[codaCptyNameStart:min(len(raw), codaCptyNameEnd)])
	}
}

// parseCODADate parses a DDMMYY value date. Two-digit years always map
// into the 2000s.
func (p *CODAParser) parseCODADate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation("020106", raw, p.loc)
	if err != nil {
		return time.Time{}, err
	}
	if t.Year() < 2000 {
		t = time.Date(t.Year()+100, t.Month(), t.Day(), 0, 0, 0, 0, p.loc)
	}
	return t, nil
}

func infoText(raw string) string {
	if len(raw) <= codaCommStart {
		return ""
	}
	return strings.TrimSpace(raw[codaCommStart:min(len(raw), codaCommEnd)])
}

func joinDescription(existing, extra string) string {
	if extra == "" {
		return existing
	}
	if existing == "" {
		return extra
	}
	return existing + " " + extra
}
