// Package matcher scores normalized bank transactions against open fees,
// expense categories and configurable rules.
//
// Scoring is a pure function of the transaction and the supplied context:
// the matcher never mutates fees, members or rules, and recomputing a
// suggestion with the same inputs yields the same result. A human confirms
// every suggestion before anything is booked.
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config holds the scoring weights and status thresholds. The defaults
// are policy constants tuned against real reconciliation history; they
// are configurable, but the thresholds are inclusive and exact so that
// score 70 proposes and score 40 partially matches.
type Config struct {
	// AmountFullWeight is awarded when a credit amount is within
	// AmountFullTolerance of an open fee's amount.
	AmountFullWeight    int             `yaml:"amount_full_weight"`
	AmountFullTolerance decimal.Decimal `yaml:"amount_full_tolerance"`

	// AmountPartialWeight is awarded when the amount is only within
	// AmountPartialTolerance.
	AmountPartialWeight    int             `yaml:"amount_partial_weight"`
	AmountPartialTolerance decimal.Decimal `yaml:"amount_partial_tolerance"`

	// MemberNumberWeight is awarded when the description or reference
	// contains the fee's member number.
	MemberNumberWeight int `yaml:"member_number_weight"`
	// MemberNameWeight is awarded when the description or counterparty
	// contains the member's name.
	MemberNameWeight int `yaml:"member_name_weight"`
	// IBANWeight is awarded when the transaction comes from the IBAN on
	// file for the member.
	IBANWeight int `yaml:"iban_weight"`
	// PeriodYearWeight is awarded when the description mentions the
	// fee's period year.
	PeriodYearWeight int `yaml:"period_year_weight"`

	// CategoryWeight is the contribution of a debit keyword category.
	CategoryWeight int `yaml:"category_weight"`
	// RuleBonus is the contribution of the first matching rule.
	RuleBonus int `yaml:"rule_bonus"`

	// DuplicatePenalty is subtracted when the transaction looks like a
	// duplicate of a recent one.
	DuplicatePenalty int `yaml:"duplicate_penalty"`
	// DuplicateDayWindow is the booking-date window, in days, within
	// which the duplicate heuristic looks.
	DuplicateDayWindow int `yaml:"duplicate_day_window"`

	// ProposedThreshold and PartialThreshold bucket the final score.
	// Both boundaries are inclusive.
	ProposedThreshold int `yaml:"proposed_threshold"`
	PartialThreshold  int `yaml:"partial_threshold"`
}

// DefaultConfig returns the production scoring policy.
func DefaultConfig() *Config {
	return &Config{
		AmountFullWeight:       45,
		AmountFullTolerance:    decimal.NewFromFloat(0.50),
		AmountPartialWeight:    20,
		AmountPartialTolerance: decimal.NewFromFloat(2.00),
		MemberNumberWeight:     25,
		MemberNameWeight:       15,
		IBANWeight:             10,
		PeriodYearWeight:       10,
		CategoryWeight:         20,
		RuleBonus:              30,
		DuplicatePenalty:       50,
		DuplicateDayWindow:     1,
		ProposedThreshold:      70,
		PartialThreshold:       40,
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.AmountFullTolerance.IsNegative() || c.AmountPartialTolerance.IsNegative() {
		return fmt.Errorf("amount tolerances cannot be negative")
	}
	if c.AmountFullTolerance.GreaterThan(c.AmountPartialTolerance) {
		return fmt.Errorf("full tolerance %s exceeds partial tolerance %s",
			c.AmountFullTolerance, c.AmountPartialTolerance)
	}
	if c.DuplicateDayWindow < 0 {
		return fmt.Errorf("duplicate day window cannot be negative")
	}
	if c.PartialThreshold > c.ProposedThreshold {
		return fmt.Errorf("partial threshold %d exceeds proposed threshold %d",
			c.PartialThreshold, c.ProposedThreshold)
	}
	if c.ProposedThreshold > 100 || c.PartialThreshold < 0 {
		return fmt.Errorf("thresholds must stay within [0,100]")
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
