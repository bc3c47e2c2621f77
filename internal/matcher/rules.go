package matcher

import (
	"fmt"
	"sort"
	"strings"

	"membership-billing-service/internal/models"

	"github.com/shopspring/decimal"
)

// Criterion is one condition of a matching rule. The union is sealed:
// every kind is evaluated by an exhaustive type switch in Rule.Matches,
// so a new criterion kind is a compile-time addition there.
type Criterion interface {
	// Describe returns a short human-readable form for match reasons.
	Describe() string

	criterion()
}

// KeywordContains matches when the transaction's description or
// counterparty contains the keyword, case-insensitively.
type KeywordContains struct {
	Keyword string
}

func (c KeywordContains) Describe() string { return fmt.Sprintf("keyword %q", c.Keyword) }
func (c KeywordContains) criterion()       {}

// IBANContains matches when the counterparty IBAN contains the fragment.
type IBANContains struct {
	Fragment string
}

func (c IBANContains) Describe() string { return fmt.Sprintf("iban %q", c.Fragment) }
func (c IBANContains) criterion()       {}

// AmountTolerance matches when the absolute amount is within Tolerance
// of Target.
type AmountTolerance struct {
	Target    decimal.Decimal
	Tolerance decimal.Decimal
}

func (c AmountTolerance) Describe() string {
	return fmt.Sprintf("amount %s ± %s", c.Target, c.Tolerance)
}
func (c AmountTolerance) criterion() {}

// Rule is one operator-defined matching rule. All present criteria must
// hold for the rule to match. A matching rule contributes the configured
// bonus and may override the result's category, vendor, fee or member.
type Rule struct {
	ID       string
	Name     string
	Priority int
	Active   bool

	Criteria []Criterion

	CategoryID string
	VendorID   string
	FeeID      string
	MemberID   string
}

// Matches reports whether every criterion of the rule holds for the
// transaction. A rule without criteria never matches.
func (r *Rule) Matches(tx *models.NormalizedTransaction) bool {
	if len(r.Criteria) == 0 {
		return false
	}
	for _, criterion := range r.Criteria {
		switch c := criterion.(type) {
		case KeywordContains:
			haystack := strings.ToLower(tx.Description + " " + tx.Counterparty)
			if !strings.Contains(haystack, strings.ToLower(c.Keyword)) {
				return false
			}
		case IBANContains:
			if !strings.Contains(tx.IBAN, strings.ToUpper(strings.ReplaceAll(c.Fragment, " ", ""))) {
				return false
			}
		case AmountTolerance:
			if !models.CompareAmountsWithTolerance(tx.Amount, c.Target, c.Tolerance) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// FirstMatchingRule evaluates active rules in descending priority order
// and returns the first that matches, or nil. Later rules are never
// evaluated once one matches. The input slice is left untouched.
func FirstMatchingRule(rules []*Rule, tx *models.NormalizedTransaction) *Rule {
	ordered := make([]*Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	for _, rule := range ordered {
		if !rule.Active {
			continue
		}
		if rule.Matches(tx) {
			return rule
		}
	}
	return nil
}
