package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
)

func TestDefaultTaxonomy(t *testing.T) {
	tax := DefaultTaxonomy()

	labels := make([]string, 0, len(tax.Categories))
	for _, c := range tax.Categories {
		labels = append(labels, c.Label)
	}
	assert.Equal(t, []string{"data", "safety", "training", "indigenous", "equity", "policy", "research", "community"}, labels)
	assert.Equal(t, []Bonus{{"poison", 3}, {"naloxone", 3}, {"rural", 2}, {"appalachia", 2}}, tax.Bonuses)
	assert.Equal(t, 2, tax.Threshold)
	assert.Equal(t, 3, tax.Cap)
}

func TestLoadTaxonomy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tax.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
threshold: 1
cap: 2
categories:
  - label: housing
    keywords: [housing, shelter]
bonuses:
  - term: eviction
    weight: 5
`), 0o644))

	tax, err := LoadTaxonomy(path)
	require.NoError(t, err)
	assert.Equal(t, "housing", tax.Categories[0].Label)
	assert.Equal(t, 5, tax.Bonuses[0].Weight)

	def, err := LoadTaxonomy("")
	require.NoError(t, err)
	assert.Len(t, def.Categories, 8)
}

func TestLoadTaxonomy_MissingFile(t *testing.T) {
	_, err := LoadTaxonomy(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, apperr.Is(err, apperr.CodeInvalidConfig))
}

func TestParseTaxonomy_UnknownKey(t *testing.T) {
	_, err := ParseTaxonomy([]byte("threshold: 2\ncap: 3\nweights: {}\ncategories: [{label: a, keywords: [x]}]\n"))
	assert.ErrorIs(t, err, ErrMalformedTaxonomy)
}

func TestTaxonomy_Validate(t *testing.T) {
	valid := func() Taxonomy {
		return Taxonomy{
			Categories: []Category{{Label: "data", Keywords: []string{"data"}}},
			Bonuses:    []Bonus{{Term: "poison", Weight: 3}},
			Threshold:  2,
			Cap:        3,
		}
	}
	tests := []struct {
		name   string
		mutate func(*Taxonomy)
	}{
		{"no categories", func(t *Taxonomy) { t.Categories = nil }},
		{"blank label", func(t *Taxonomy) { t.Categories[0].Label = " " }},
		{"duplicate label", func(t *Taxonomy) {
			t.Categories = append(t.Categories, Category{Label: "DATA", Keywords: []string{"x"}})
		}},
		{"no keywords", func(t *Taxonomy) { t.Categories[0].Keywords = nil }},
		{"blank keyword", func(t *Taxonomy) { t.Categories[0].Keywords = []string{""} }},
		{"blank term", func(t *Taxonomy) { t.Bonuses[0].Term = "" }},
		{"duplicate term", func(t *Taxonomy) { t.Bonuses = append(t.Bonuses, Bonus{Term: "Poison", Weight: 1}) }},
		{"zero weight", func(t *Taxonomy) { t.Bonuses[0].Weight = 0 }},
		{"zero threshold", func(t *Taxonomy) { t.Threshold = 0 }},
		{"zero cap", func(t *Taxonomy) { t.Cap = 0 }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tax := valid()
			tt.mutate(&tax)
			err := tax.Validate()
			assert.ErrorIs(t, err, ErrMalformedTaxonomy)
			assert.Equal(t, apperr.CodeInvalidConfig, apperr.CodeOf(err))
		})
	}
}
