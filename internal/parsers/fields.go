package parsers

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"membership-billing-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Field normalization shared by all statement formats. Belgian exports
// write amounts with a comma decimal separator and optional dot thousands
// separators, and dates as day-first with /, - or . separators.

var ibanPattern = regexp.MustCompile(`[A-Z]{2}\d{2}[A-Z0-9]{10,30}`)

// ParseAmount normalizes a statement amount into an absolute decimal and
// a transaction side. Currency symbols, thousands separators and
// surrounding whitespace are stripped; the sign decides the side, with a
// signless amount treated as a credit.
//
//	"1.234,56"  -> 1234.56 CREDIT
//	"€ 45,67"   -> 45.67   CREDIT
//	"-789,01"   -> 789.01  DEBET
func ParseAmount(raw string) (decimal.Decimal, models.TransactionSide, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	for _, symbol := range []string{"€", "EUR", "eur"} {
		s = strings.ReplaceAll(s, symbol, "")
	}
	if s == "" {
		return decimal.Zero, "", fmt.Errorf("empty amount")
	}

	side := models.SideCredit
	switch {
	case strings.HasPrefix(s, "-"):
		side = models.SideDebet
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		side = models.SideDebet
		s = s[:len(s)-1]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	if strings.Contains(s, ",") {
		// European notation: dots are thousands separators.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else if dots := strings.Count(s, "."); dots > 1 {
		// Dot-only thousands notation without decimals ("1.234.567").
		s = strings.ReplaceAll(s, ".", "")
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, "", fmt.Errorf("invalid amount %q: doubled sign", raw)
	}
	return amount, side, nil
}

var dateLayouts = []string{
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2006-01-02",
	"02/01/06",
	"02-01-06",
	"02.01.06",
}

// ParseFlexibleDate parses a day-first statement date in the given
// location, accepting the separator and century variations seen across
// bank exports. ISO dates pass through unchanged.
func ParseFlexibleDate(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// ExtractIBAN returns the first IBAN-shaped token in a free-form string,
// tolerating the grouped-by-four spacing banks print.
func ExtractIBAN(s string) string {
	compact := strings.ReplaceAll(strings.ToUpper(s), " ", "")
	return ibanPattern.FindString(compact)
}

// newTransaction creates a normalized transaction in its initial state.
// Every parsed booking starts as ONTVANGEN until the matcher has seen it.
func newTransaction() *models.NormalizedTransaction {
	return &models.NormalizedTransaction{
		ID:       uuid.NewString(),
		Currency: "EUR",
		Status:   models.StatusOntvangen,
	}
}
