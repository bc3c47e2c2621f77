package parsers

import (
	"context"
	"strings"
	"testing"

	"membership-billing-service/internal/models"
)

func TestDelimitedParserDefaultMapping(t *testing.T) {
	input := strings.Join([]string{
		"Date,Amount,Counterparty,IBAN,Description,Reference",
		`15/03/2024,"45,67",Jan Peeters,BE68539007547034,Lidgeld maart,M-1001`,
		`16/03/2024,"-12,50",Sportwinkel BV,NL91ABNA0417164300,Materiaal,INV-88`,
	}, "\n")

	parser, err := NewDelimitedParser(nil)
	if err != nil {
		t.Fatalf("NewDelimitedParser failed: %v", err)
	}
	result, err := parser.Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(result.Transactions) != 2 {
		t.Fatalf("parsed %d transactions, want 2", len(result.Transactions))
	}
	if result.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", result.Errors)
	}

	first := result.Transactions[0]
	if first.AmountMinorUnits() != 4567 {
		t.Errorf("first amount = %d minor units, want 4567", first.AmountMinorUnits())
	}
	if first.Side != models.SideCredit {
		t.Errorf("first side = %s, want CREDIT", first.Side)
	}
	if first.IBAN != "BE68539007547034" {
		t.Errorf("first IBAN = %q", first.IBAN)
	}
	if first.Counterparty != "Jan Peeters" {
		t.Errorf("first counterparty = %q", first.Counterparty)
	}
	if first.Reference != "M-1001" {
		t.Errorf("first reference = %q", first.Reference)
	}
	if first.Status != models.StatusOntvangen {
		t.Errorf("first status = %s, want ONTVANGEN", first.Status)
	}
	if d := first.BookingDate; d.Year() != 2024 || d.Month() != 3 || d.Day() != 15 {
		t.Errorf("first booking date = %s", d)
	}

	second := result.Transactions[1]
	if second.Side != models.SideDebet {
		t.Errorf("second side = %s, want DEBET", second.Side)
	}
	if second.AmountMinorUnits() != 1250 {
		t.Errorf("second amount = %d minor units, want 1250", second.AmountMinorUnits())
	}
}

func TestDelimitedParserSkipsBadLine(t *testing.T) {
	input := strings.Join([]string{
		"Date,Amount,Counterparty,IBAN,Description,Reference",
		`15/03/2024,"45,67",Jan Peeters,,Lidgeld,`,
		`not a date,"99,99",Broken Row,,,`,
		`16/03/2024,"12,50",An Jacobs,,Lidgeld,`,
	}, "\n")

	parser, _ := NewDelimitedParser(nil)
	result, err := parser.Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(result.Transactions) != 2 {
		t.Errorf("parsed %d transactions, want exactly 2 around the bad line", len(result.Transactions))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("recorded %d errors, want 1", len(result.Errors))
	}
	if result.Errors[0].Line != 3 {
		t.Errorf("error line = %d, want 3", result.Errors[0].Line)
	}
	if result.Errors[0].Field != "date" {
		t.Errorf("error field = %q, want date", result.Errors[0].Field)
	}
}

func TestDelimitedParserEmptyInput(t *testing.T) {
	parser, _ := NewDelimitedParser(nil)

	for name, input := range map[string]string{
		"empty":       "",
		"header_only": "Date,Amount,Counterparty,IBAN,Description,Reference\n",
	} {
		t.Run(name, func(t *testing.T) {
			result, err := parser.Parse(context.Background(), strings.NewReader(input))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if len(result.Transactions) != 0 {
				t.Errorf("parsed %d transactions, want 0", len(result.Transactions))
			}
			if result.HasErrors() {
				t.Errorf("unexpected errors: %v", result.Errors)
			}
		})
	}
}

func TestDelimitedParserKBCPreset(t *testing.T) {
	input := strings.Join([]string{
		"KBC Bank NV - Rekeninguittreksel",
		"Rekening;Datum;Bedrag;Munt;Tegenpartij;Omschrijving;Referentie",
		"BE68539007547034;15.03.2024;1.234,56;EUR;Jan Peeters;Lidgeld 2024;M-1001",
	}, "\n")

	config, err := BankPreset("kbc")
	if err != nil {
		t.Fatalf("BankPreset failed: %v", err)
	}
	parser, err := NewDelimitedParser(config)
	if err != nil {
		t.Fatalf("NewDelimitedParser failed: %v", err)
	}
	result, err := parser.Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(result.Transactions) != 1 {
		t.Fatalf("parsed %d transactions, want 1", len(result.Transactions))
	}
	tx := result.Transactions[0]
	if tx.AmountMinorUnits() != 123456 {
		t.Errorf("amount = %d minor units, want 123456", tx.AmountMinorUnits())
	}
	if tx.IBAN != "BE68539007547034" {
		t.Errorf("IBAN = %q", tx.IBAN)
	}
	if tx.Currency != "EUR" {
		t.Errorf("currency = %q, want EUR", tx.Currency)
	}
}

func TestBankPresetUnknown(t *testing.T) {
	if _, err := BankPreset("monopoly"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestDelimitedConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DelimitedConfig)
		wantErr bool
	}{
		{"default is valid", func(*DelimitedConfig) {}, false},
		{"missing delimiter", func(c *DelimitedConfig) { c.Delimiter = 0 }, true},
		{"negative skip", func(c *DelimitedConfig) { c.SkipLines = -1 }, true},
		{"missing date column", func(c *DelimitedConfig) { c.DateColumn = -1 }, true},
		{"missing amount column", func(c *DelimitedConfig) { c.AmountColumn = -1 }, true},
		{"colliding columns", func(c *DelimitedConfig) { c.AmountColumn = c.DateColumn }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultDelimitedConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
