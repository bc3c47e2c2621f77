package parsers

import (
	"testing"
	"time"

	"membership-billing-service/internal/models"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input     string
		wantMinor int64
		wantSide  models.TransactionSide
		wantErr   bool
	}{
		{"1.234,56", 123456, models.SideCredit, false},
		{"€ 45,67", 4567, models.SideCredit, false},
		{"-789,01", 78901, models.SideDebet, false},
		{"45,67", 4567, models.SideCredit, false},
		{"+12,50", 1250, models.SideCredit, false},
		{"12,50-", 1250, models.SideDebet, false},
		{"1234.56", 123456, models.SideCredit, false},
		{"EUR 100,00", 10000, models.SideCredit, false},
		{"1.234.567", 123456700, models.SideCredit, false},
		{"0,00", 0, models.SideCredit, false},
		{"", 0, "", true},
		{"abc", 0, "", true},
		{"--12,50", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			amount, side, err := ParseAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) expected error, got %s", tt.input, amount)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) failed: %v", tt.input, err)
			}
			gotMinor := amount.Shift(2).Round(0).IntPart()
			if gotMinor != tt.wantMinor {
				t.Errorf("ParseAmount(%q) = %d minor units, want %d", tt.input, gotMinor, tt.wantMinor)
			}
			if side != tt.wantSide {
				t.Errorf("ParseAmount(%q) side = %s, want %s", tt.input, side, tt.wantSide)
			}
		})
	}
}

func TestParseFlexibleDate(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Brussels")
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, loc)

	tests := []struct {
		input   string
		wantErr bool
	}{
		{"15/03/2024", false},
		{"15-03-2024", false},
		{"15.03.2024", false},
		{"2024-03-15", false},
		{"15/03/24", false},
		{"", true},
		{"not a date", true},
		{"2024/03/15", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFlexibleDate(tt.input, loc)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseFlexibleDate(%q) expected error, got %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFlexibleDate(%q) failed: %v", tt.input, err)
			}
			if !got.Equal(want) {
				t.Errorf("ParseFlexibleDate(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestExtractIBAN(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"BE68539007547034", "BE68539007547034"},
		{"BE68 5390 0754 7034", "BE68539007547034"},
		{"payment from BE68539007547034 for fees", "BE68539007547034"},
		{"NL91ABNA0417164300", "NL91ABNA0417164300"},
		{"no account here", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExtractIBAN(tt.input); got != tt.want {
			t.Errorf("ExtractIBAN(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"delimited", FormatDelimited, false},
		{"csv", FormatDelimited, false},
		{"coda", FormatCODA, false},
		{"MT940", FormatMT940, false},
		{"swift", FormatMT940, false},
		{"pdf", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}
