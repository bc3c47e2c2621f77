// Package models defines the domain types shared by the billing and
// reconciliation components: members with their financial settings,
// membership fees, normalized bank transactions, match results and the
// member-facing card status.
package models

import (
	"fmt"
	"strings"
	"time"

	"membership-billing-service/internal/period"

	"github.com/shopspring/decimal"
)

// FeeStatus represents the lifecycle state of a membership fee.
type FeeStatus string

const (
	// FeeStatusOpen marks a generated fee awaiting payment.
	FeeStatusOpen FeeStatus = "OPEN"
	// FeeStatusPaid marks a fee whose payment has been confirmed. Terminal.
	FeeStatusPaid FeeStatus = "PAID"
	// FeeStatusOverdue marks an unpaid fee whose period has ended.
	FeeStatusOverdue FeeStatus = "OVERDUE"
)

// String returns the string representation of FeeStatus.
func (s FeeStatus) String() string {
	return string(s)
}

// IsValid checks if the fee status is a known value.
func (s FeeStatus) IsValid() bool {
	return s == FeeStatusOpen || s == FeeStatusPaid || s == FeeStatusOverdue
}

// PaymentMethod represents how a member pays their fees.
type PaymentMethod string

const (
	MethodTransfer    PaymentMethod = "TRANSFER"
	MethodDirectDebit PaymentMethod = "DIRECT_DEBIT"
	MethodCash        PaymentMethod = "CASH"
)

// IsValid checks if the payment method is a known value.
func (m PaymentMethod) IsValid() bool {
	return m == MethodTransfer || m == MethodDirectDebit || m == MethodCash
}

// FinancialSettings holds a member's billing parameters. The pointer to
// this struct on Member is nil when the member has never been configured
// for billing; callers must treat that as a checked case, not dereference.
type FinancialSettings struct {
	Term          period.Term     `json:"term"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	MandateOnFile bool            `json:"mandate_on_file"`
}

// Validate performs basic validation on the financial settings.
func (fs *FinancialSettings) Validate() error {
	if err := fs.Term.Validate(); err != nil {
		return fmt.Errorf("invalid term: %w", err)
	}
	if fs.Amount.IsNegative() {
		return fmt.Errorf("fee amount cannot be negative")
	}
	if !fs.Method.IsValid() {
		return fmt.Errorf("invalid payment method: %s", fs.Method)
	}
	return nil
}

// Member represents a member of the organization within one tenant.
type Member struct {
	ID            string             `json:"id"`
	TenantID      string             `json:"tenant_id"`
	Number        string             `json:"number"`
	FirstName     string             `json:"first_name"`
	LastName      string             `json:"last_name"`
	Email         string             `json:"email"`
	IBAN          string             `json:"iban"`
	Category      string             `json:"category"`
	Active        bool               `json:"active"`
	JoinedAt      time.Time          `json:"joined_at"`
	BillingAnchor *time.Time         `json:"billing_anchor,omitempty"`
	Financial     *FinancialSettings `json:"financial,omitempty"`
}

// FullName returns the member's display name.
func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// Validate performs basic validation on the member record.
func (m *Member) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("member ID cannot be empty")
	}
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("member tenant ID cannot be empty")
	}
	if m.Financial != nil {
		if err := m.Financial.Validate(); err != nil {
			return fmt.Errorf("invalid financial settings: %w", err)
		}
	}
	return nil
}

// Tenant represents one organization using the system.
type Tenant struct {
	ID             string                     `json:"id"`
	Name           string                     `json:"name"`
	DefaultAmounts map[string]decimal.Decimal `json:"default_amounts"`
}

// DefaultAmountFor returns the tenant's default fee amount for a member
// category, or zero when no default is configured.
func (t *Tenant) DefaultAmountFor(category string) decimal.Decimal {
	if amount, ok := t.DefaultAmounts[category]; ok {
		return amount
	}
	return decimal.Zero
}

// Fee represents one membership fee for one billing period. The
// (tenant, member, period start, period end) tuple is the natural key;
// generating the same period twice is a no-op, never a second row.
type Fee struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	MemberID    string          `json:"member_id"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Amount      decimal.Decimal `json:"amount"`
	Method      PaymentMethod   `json:"method"`
	Status      FeeStatus       `json:"status"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NaturalKey returns the identifying tuple as a single string, useful for
// logging and as a map key.
func (f *Fee) NaturalKey() string {
	return fmt.Sprintf("%s/%s/%s/%s",
		f.TenantID, f.MemberID,
		f.PeriodStart.UTC().Format(time.RFC3339),
		f.PeriodEnd.UTC().Format(time.RFC3339))
}

// Period returns the fee's billing period as a half-open interval.
func (f *Fee) Period() period.Period {
	return period.Period{Start: f.PeriodStart, End: f.PeriodEnd}
}

// CoversInstant reports whether the instant falls within [start, end).
func (f *Fee) CoversInstant(t time.Time) bool {
	return !t.Before(f.PeriodStart) && t.Before(f.PeriodEnd)
}

// IsPaid reports whether the fee has been settled.
func (f *Fee) IsPaid() bool {
	return f.Status == FeeStatusPaid
}

// Validate performs basic validation on the fee record.
func (f *Fee) Validate() error {
	if strings.TrimSpace(f.MemberID) == "" {
		return fmt.Errorf("fee member ID cannot be empty")
	}
	if strings.TrimSpace(f.TenantID) == "" {
		return fmt.Errorf("fee tenant ID cannot be empty")
	}
	if !f.PeriodEnd.After(f.PeriodStart) {
		return fmt.Errorf("fee period end must be after period start")
	}
	if f.Amount.IsNegative() {
		return fmt.Errorf("fee amount cannot be negative")
	}
	if !f.Status.IsValid() {
		return fmt.Errorf("invalid fee status: %s", f.Status)
	}
	if f.Status == FeeStatusPaid && f.PaidAt == nil {
		return fmt.Errorf("paid fee must carry a paid-at timestamp")
	}
	return nil
}

// String returns a string representation of the Fee.
func (f *Fee) String() string {
	return fmt.Sprintf("Fee{Member: %s, Period: %s..%s, Amount: %s, Status: %s}",
		f.MemberID,
		f.PeriodStart.Format("2006-01-02"), f.PeriodEnd.Format("2006-01-02"),
		f.Amount.String(), f.Status)
}

// TransactionSide represents the direction of a bank transaction.
type TransactionSide string

const (
	// SideCredit marks an incoming amount.
	SideCredit TransactionSide = "CREDIT"
	// SideDebet marks an outgoing amount.
	SideDebet TransactionSide = "DEBET"
)

// IsValid checks if the transaction side is a known value.
func (s TransactionSide) IsValid() bool {
	return s == SideCredit || s == SideDebet
}

// MatchStatus represents the reconciliation state of a transaction.
type MatchStatus string

const (
	// StatusVoorgesteld marks a confident suggestion awaiting confirmation.
	StatusVoorgesteld MatchStatus = "VOORGESTELD"
	// StatusGedeeltelijkGematcht marks a partial, low-confidence suggestion.
	StatusGedeeltelijkGematcht MatchStatus = "GEDEELTELIJK_GEMATCHT"
	// StatusOntvangen marks a received transaction with no usable match.
	StatusOntvangen MatchStatus = "ONTVANGEN"
)

// IsValid checks if the match status is a known value.
func (s MatchStatus) IsValid() bool {
	return s == StatusVoorgesteld || s == StatusGedeeltelijkGematcht || s == StatusOntvangen
}

// NormalizedTransaction is the format-agnostic result of parsing one bank
// statement record. Instances are produced fresh per parse and never
// mutated afterwards; they are the immutable evidence the matcher scores.
// The stored amount is always the absolute value; Side carries the sign.
type NormalizedTransaction struct {
	ID           string          `json:"id"`
	BookingDate  time.Time       `json:"booking_date"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Side         TransactionSide `json:"side"`
	Counterparty string          `json:"counterparty"`
	IBAN         string          `json:"iban"`
	Description  string          `json:"description"`
	Reference    string          `json:"reference"`
	Status       MatchStatus     `json:"status"`
}

// AmountMinorUnits returns the amount expressed in euro cents.
func (t *NormalizedTransaction) AmountMinorUnits() int64 {
	return t.Amount.Shift(2).Round(0).IntPart()
}

// IsCredit reports whether the transaction is an incoming payment.
func (t *NormalizedTransaction) IsCredit() bool {
	return t.Side == SideCredit
}

// IsDebet reports whether the transaction is an outgoing payment.
func (t *NormalizedTransaction) IsDebet() bool {
	return t.Side == SideDebet
}

// Validate performs basic validation on the normalized transaction.
func (t *NormalizedTransaction) Validate() error {
	if t.BookingDate.IsZero() {
		return fmt.Errorf("booking date cannot be zero")
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("normalized amount cannot be negative")
	}
	if !t.Side.IsValid() {
		return fmt.Errorf("invalid transaction side: %s", t.Side)
	}
	return nil
}

// String returns a string representation of the NormalizedTransaction.
func (t *NormalizedTransaction) String() string {
	return fmt.Sprintf("Transaction{Date: %s, Amount: %s %s, Side: %s, Ref: %s}",
		t.BookingDate.Format("2006-01-02"), t.Amount.String(), t.Currency, t.Side, t.Reference)
}

// MatchResult is the outcome of scoring one transaction against the open
// fees, members and rules. Results are ephemeral: recomputed on demand and
// only persisted once a human confirms the suggestion.
type MatchResult struct {
	Transaction     *NormalizedTransaction `json:"transaction"`
	Score           int                    `json:"score"`
	Status          MatchStatus            `json:"status"`
	MatchedFeeID    string                 `json:"matched_fee_id,omitempty"`
	MatchedMemberID string                 `json:"matched_member_id,omitempty"`
	CategoryID      string                 `json:"category_id,omitempty"`
	VendorID        string                 `json:"vendor_id,omitempty"`
	Reasons         []string               `json:"reasons"`
}

// AddReason appends a human-readable explanation to the result.
func (r *MatchResult) AddReason(format string, args ...interface{}) {
	r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
}

// CardStatus is the member-facing state derived from paid periods.
type CardStatus string

const (
	// CardActueel means a currently running period is paid.
	CardActueel CardStatus = "ACTUEEL"
	// CardNietActueel means no running period is paid but nothing expired.
	CardNietActueel CardStatus = "NIET_ACTUEEL"
	// CardVerlopen means the latest period ended unpaid.
	CardVerlopen CardStatus = "VERLOPEN"
)

// String returns the string representation of CardStatus.
func (s CardStatus) String() string {
	return string(s)
}

// CompareAmountsWithTolerance compares two decimal amounts within a
// tolerance expressed in the same unit.
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// CompareDatesWithTolerance compares two instants within a day tolerance.
func CompareDatesWithTolerance(a, b time.Time, toleranceDays int) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceDays)*24*time.Hour
}
