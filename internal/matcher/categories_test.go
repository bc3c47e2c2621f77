package matcher

import (
	"strings"
	"testing"
)

func TestDefaultCategoriesClassify(t *testing.T) {
	set := DefaultCategories()

	tests := []struct {
		text   string
		wantID string
		wantOK bool
	}{
		{"Domiciliëring ENGIE Electrabel", "utilities", true},
		{"Premie polis 2024 Ethias", "insurance", true},
		{"Onderhoud veldverlichting", "maintenance", true},
		{"Zaalhuur sporthal", "rent", true},
		{"storting lidgeld", "", false},
	}

	for _, tt := range tests {
		category, ok := set.Classify(tt.text)
		if ok != tt.wantOK {
			t.Errorf("Classify(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			continue
		}
		if ok && category.ID != tt.wantID {
			t.Errorf("Classify(%q) = %s, want %s", tt.text, category.ID, tt.wantID)
		}
	}
}

func TestLoadCategories(t *testing.T) {
	input := `
categories:
  - id: coaching
    name: Trainersvergoedingen
    keywords: [trainer, lesgever]
  - id: catering
    name: Catering
    keywords: [drank, traiteur]
`
	set, err := LoadCategories(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadCategories failed: %v", err)
	}

	category, ok := set.Classify("Vergoeding LESGEVER januari")
	if !ok || category.ID != "coaching" {
		t.Errorf("Classify = %+v (%v), want coaching", category, ok)
	}

	// The loaded set replaces the defaults wholesale.
	if _, ok := set.Classify("Electrabel"); ok {
		t.Error("loaded set still recognizes a default keyword")
	}
}

func TestLoadCategoriesRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"empty list":  "categories: []",
		"missing id":  "categories:\n  - name: X\n    keywords: [a]",
		"no keywords": "categories:\n  - id: x\n    name: X",
		"not yaml":    "{{{",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadCategories(strings.NewReader(input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
