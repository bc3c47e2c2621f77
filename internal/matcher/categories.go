package matcher

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one expense bucket recognized on the debit side.
type Category struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// CategorySet classifies debit descriptions by keyword containment.
// Categories are checked in declaration order; the first keyword hit wins.
type CategorySet struct {
	categories []Category
}

// DefaultCategories returns the built-in expense buckets for a
// membership organization.
func DefaultCategories() *CategorySet {
	return NewCategorySet([]Category{
		{ID: "utilities", Name: "Nutsvoorzieningen", Keywords: []string{
			"electrabel", "engie", "luminus", "fluvius", "telenet", "proximus", "water", "gas", "elektriciteit"}},
		{ID: "insurance", Name: "Verzekeringen", Keywords: []string{
			"verzekering", "polis", "ethias", "kbc verzekeringen", "ag insurance", "baloise"}},
		{ID: "maintenance", Name: "Onderhoud", Keywords: []string{
			"onderhoud", "herstelling", "reparatie", "schoonmaak", "poets"}},
		{ID: "supplies", Name: "Materiaal", Keywords: []string{
			"materiaal", "sportwinkel", "decathlon", "drukwerk", "kantoor"}},
		{ID: "rent", Name: "Huur", Keywords: []string{
			"huur", "zaalhuur", "concessie"}},
		{ID: "bank_costs", Name: "Bankkosten", Keywords: []string{
			"bankkosten", "beheerskosten", "kaartbijdrage"}},
	})
}

// NewCategorySet builds a category set, lower-casing every keyword once.
func NewCategorySet(categories []Category) *CategorySet {
	normalized := make([]Category, len(categories))
	for i, c := range categories {
		keywords := make([]string, len(c.Keywords))
		for j, k := range c.Keywords {
			keywords[j] = strings.ToLower(strings.TrimSpace(k))
		}
		normalized[i] = Category{ID: c.ID, Name: c.Name, Keywords: keywords}
	}
	return &CategorySet{categories: normalized}
}

// LoadCategories reads a category list from YAML, replacing the built-in
// buckets wholesale.
func LoadCategories(r io.Reader) (*CategorySet, error) {
	var raw struct {
		Categories []Category `yaml:"categories"`
	}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding categories: %w", err)
	}
	if len(raw.Categories) == 0 {
		return nil, fmt.Errorf("category file defines no categories")
	}
	for i, c := range raw.Categories {
		if c.ID == "" {
			return nil, fmt.Errorf("category %d has no id", i)
		}
		if len(c.Keywords) == 0 {
			return nil, fmt.Errorf("category %q has no keywords", c.ID)
		}
	}
	return NewCategorySet(raw.Categories), nil
}

// Classify finds the first category whose keyword occurs in the text.
func (s *CategorySet) Classify(text string) (Category, bool) {
	lowered := strings.ToLower(text)
	for _, category := range s.categories {
		for _, keyword := range category.Keywords {
			if keyword != "" && strings.Contains(lowered, keyword) {
				return category, true
			}
		}
	}
	return Category{}, false
}
