package models

import (
	"testing"
	"time"

	"membership-billing-service/internal/period"

	"github.com/shopspring/decimal"
)

func validFee() *Fee {
	return &Fee{
		ID:          "fee-1",
		TenantID:    "tenant-1",
		MemberID:    "member-1",
		PeriodStart: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.NewFromFloat(25.00),
		Method:      MethodTransfer,
		Status:      FeeStatusOpen,
		CreatedAt:   time.Now(),
	}
}

func TestFeeValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Fee)
		wantErr bool
	}{
		{"valid open fee", func(f *Fee) {}, false},
		{"missing member", func(f *Fee) { f.MemberID = "" }, true},
		{"missing tenant", func(f *Fee) { f.TenantID = " " }, true},
		{"inverted period", func(f *Fee) { f.PeriodEnd = f.PeriodStart.AddDate(0, -2, 0) }, true},
		{"zero-length period", func(f *Fee) { f.PeriodEnd = f.PeriodStart }, true},
		{"negative amount", func(f *Fee) { f.Amount = decimal.NewFromFloat(-1) }, true},
		{"unknown status", func(f *Fee) { f.Status = "SETTLED" }, true},
		{"paid without timestamp", func(f *Fee) { f.Status = FeeStatusPaid }, true},
		{"paid with timestamp", func(f *Fee) {
			now := time.Now()
			f.Status = FeeStatusPaid
			f.PaidAt = &now
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee := validFee()
			tt.mutate(fee)
			err := fee.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFeeNaturalKeyStableAcrossTimezones(t *testing.T) {
	brussels, err := time.LoadLocation("Europe/Brussels")
	if err != nil {
		t.Fatal(err)
	}

	a := validFee()
	b := validFee()
	b.PeriodStart = b.PeriodStart.In(brussels)
	b.PeriodEnd = b.PeriodEnd.In(brussels)

	if a.NaturalKey() != b.NaturalKey() {
		t.Errorf("natural key differs across timezones: %s vs %s", a.NaturalKey(), b.NaturalKey())
	}
}

func TestFeeCoversInstant(t *testing.T) {
	fee := validFee()

	if !fee.CoversInstant(fee.PeriodStart) {
		t.Error("period start must be covered (half-open interval)")
	}
	if fee.CoversInstant(fee.PeriodEnd) {
		t.Error("period end must not be covered (half-open interval)")
	}
	if !fee.CoversInstant(fee.PeriodStart.AddDate(0, 0, 10)) {
		t.Error("instant inside the period must be covered")
	}
}

func TestMemberFullName(t *testing.T) {
	m := &Member{FirstName: "Jan", LastName: "Peeters"}
	if got := m.FullName(); got != "Jan Peeters" {
		t.Errorf("expected 'Jan Peeters', got %q", got)
	}

	m = &Member{LastName: "Peeters"}
	if got := m.FullName(); got != "Peeters" {
		t.Errorf("expected 'Peeters', got %q", got)
	}
}

func TestFinancialSettingsValidate(t *testing.T) {
	fs := &FinancialSettings{
		Term:   period.Monthly,
		Amount: decimal.NewFromFloat(25),
		Method: MethodDirectDebit,
	}
	if err := fs.Validate(); err != nil {
		t.Errorf("expected valid settings, got %v", err)
	}

	fs.Term = period.Term{Unit: period.UnitMonth, Count: 0}
	if err := fs.Validate(); err == nil {
		t.Error("expected error for degenerate term")
	}
}

func TestTenantDefaultAmountFor(t *testing.T) {
	tenant := &Tenant{
		ID:   "tenant-1",
		Name: "Harmonie Sint-Cecilia",
		DefaultAmounts: map[string]decimal.Decimal{
			"adult": decimal.NewFromFloat(45),
			"youth": decimal.NewFromFloat(25),
		},
	}

	if got := tenant.DefaultAmountFor("youth"); !got.Equal(decimal.NewFromFloat(25)) {
		t.Errorf("expected 25, got %s", got)
	}
	if got := tenant.DefaultAmountFor("honorary"); !got.IsZero() {
		t.Errorf("expected zero for unknown category, got %s", got)
	}
}

func TestNormalizedTransactionAmountMinorUnits(t *testing.T) {
	tx := &NormalizedTransaction{
		BookingDate: time.Now(),
		Amount:      decimal.RequireFromString("1234.56"),
		Side:        SideCredit,
	}
	if got := tx.AmountMinorUnits(); got != 123456 {
		t.Errorf("expected 123456 minor units, got %d", got)
	}
}

func TestNormalizedTransactionValidate(t *testing.T) {
	tx := &NormalizedTransaction{
		BookingDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.NewFromFloat(45.67),
		Side:        SideDebet,
		Status:      StatusOntvangen,
	}
	if err := tx.Validate(); err != nil {
		t.Errorf("expected valid transaction, got %v", err)
	}

	tx.Side = "WITHDRAWAL"
	if err := tx.Validate(); err == nil {
		t.Error("expected error for unknown side")
	}
}

func TestCompareAmountsWithTolerance(t *testing.T) {
	a := decimal.NewFromFloat(100.00)
	b := decimal.NewFromFloat(100.45)
	tolerance := decimal.NewFromFloat(0.50)

	if !CompareAmountsWithTolerance(a, b, tolerance) {
		t.Error("expected amounts within tolerance")
	}
	if CompareAmountsWithTolerance(a, decimal.NewFromFloat(101), tolerance) {
		t.Error("expected amounts outside tolerance")
	}
}

func TestCompareDatesWithTolerance(t *testing.T) {
	a := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	b := a.AddDate(0, 0, 1)

	if !CompareDatesWithTolerance(a, b, 1) {
		t.Error("expected one day apart to be within one-day tolerance")
	}
	if CompareDatesWithTolerance(a, b.AddDate(0, 0, 1), 1) {
		t.Error("expected two days apart to exceed one-day tolerance")
	}
}
