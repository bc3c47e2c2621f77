package parsers

import (
	"context"
	"strings"
	"testing"

	"membership-billing-service/internal/models"
)

// codaLine builds one fixed-width record from sparse position/content
// pairs, padding the rest with spaces.
func codaLine(width int, parts map[int]string) string {
	b := []byte(strings.Repeat(" ", width))
	for pos, content := range parts {
		copy(b[pos:], content)
	}
	return string(b)
}

func codaMovement(sign byte, amount, date, comm string) string {
	return codaLine(115, map[int]string{
		0:  "21",
		31: string(sign),
		32: amount,
		47: date,
		62: comm,
	})
}

func codaCounterparty(account, name string) string {
	return codaLine(115, map[int]string{
		0:  "23",
		10: account,
		47: name,
	})
}

func codaInfo(comm string) string {
	return codaLine(115, map[int]string{
		0:  "31",
		62: comm,
	})
}

func TestCODAParserSingleMovement(t *testing.T) {
	input := strings.Join([]string{
		codaLine(115, map[int]string{0: "0"}),
		codaMovement('0', "000000000045670", "150324", "LIDGELD MAART M-1001"),
		codaCounterparty("BE68539007547034", "JAN PEETERS"),
		codaInfo("MEDEDELING VAN DE BANK"),
		codaLine(115, map[int]string{0: "9"}),
	}, "\n")

	parser := NewCODAParser()
	result, err := parser.Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(result.Transactions) != 1 {
		t.Fatalf("parsed %d transactions, want 1", len(result.Transactions))
	}
	tx := result.Transactions[0]

	if tx.AmountMinorUnits() != 4567 {
		t.Errorf("amount = %d minor units, want 4567", tx.AmountMinorUnits())
	}
	if tx.Side != models.SideCredit {
		t.Errorf("side = %s, want CREDIT", tx.Side)
	}
	if d := tx.BookingDate; d.Year() != 2024 || d.Month() != 3 || d.Day() != 15 {
		t.Errorf("booking date = %s, want 2024-03-15", d)
	}
	if tx.IBAN != "BE68539007547034" {
		t.Errorf("IBAN = %q", tx.IBAN)
	}
	if tx.Counterparty != "JAN PEETERS" {
		t.Errorf("counterparty = %q", tx.Counterparty)
	}
	if !strings.Contains(tx.Description, "LIDGELD MAART M-1001") {
		t.Errorf("description %q misses the movement communication", tx.Description)
	}
	if !strings.Contains(tx.Description, "MEDEDELING VAN DE BANK") {
		t.Errorf("description %q misses the information record", tx.Description)
	}
}

func TestCODAParserDebitSign(t *testing.T) {
	input := strings.Join([]string{
		codaMovement('1', "000000000789010", "160324", "AFREKENING"),
		codaLine(115, map[int]string{0: "9"}),
	}, "\n")

	parser := NewCODAParser()
	result, err := parser.Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Transactions) != 1 {
		t.Fatalf("parsed %d transactions, want 1", len(result.Transactions))
	}
	tx := result.Transactions[0]
	if tx.Side != models.SideDebet {
		t.Errorf("side = %s, want DEBET", tx.Side)
	}
	if tx.AmountMinorUnits() != 78901 {
		t.Errorf("amount = %d minor units, want 78901", tx.AmountMinorUnits())
	}
}

func TestCODAParserSkipsShortRecord(t *testing.T) {
	input := strings.Join([]string{
		codaMovement('0', "000000000045670", "150324", "EERSTE"),
		"21 truncated movement",
		codaMovement('0', "000000000012500", "170324", "TWEEDE"),
		codaLine(115, map[int]string{0: "9"}),
	}, "\n")

	parser := NewCODAParser()
	result, err := parser.Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(result.Transactions) != 2 {
		t.Errorf("parsed %d transactions, want 2 around the short record", len(result.Transactions))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("recorded %d errors, want 1", len(result.Errors))
	}
	if result.Errors[0].Line != 2 {
		t.Errorf("error line = %d, want 2", result.Errors[0].Line)
	}
}

func TestCODAParserEmptyInput(t *testing.T) {
	parser := NewCODAParser()
	result, err := parser.Parse(context.Background(), strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Transactions) != 0 || result.HasErrors() {
		t.Errorf("expected empty result, got %d transactions and %d errors",
			len(result.Transactions), len(result.Errors))
	}
}

func TestCODAParserFinalMovementWithoutTrailer(t *testing.T) {
	input := codaMovement('0', "000000000045670", "150324", "LIDGELD")

	parser := NewCODAParser()
	result, err := parser.Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Transactions) != 1 {
		t.Errorf("parsed %d transactions, want the unterminated movement flushed", len(result.Transactions))
	}
}
