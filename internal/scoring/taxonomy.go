package scoring

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
)

//go:embed taxonomy.yaml
var defaultTaxonomyYAML []byte

// ErrMalformedTaxonomy is wrapped by every taxonomy validation failure.
var ErrMalformedTaxonomy = errors.New("malformed taxonomy")

type Category struct {
	Label    string   `yaml:"label" json:"label"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

type Bonus struct {
	Term   string `yaml:"term" json:"term"`
	Weight int    `yaml:"weight" json:"weight"`
}

// Taxonomy is the declarative input to the scorer.
type Taxonomy struct {
	Categories []Category `yaml:"categories" json:"categories"`
	Bonuses    []Bonus    `yaml:"bonuses" json:"bonuses"`
	Threshold  int        `yaml:"threshold" json:"threshold"`
	Cap        int        `yaml:"cap" json:"cap"`
}

// DefaultTaxonomy returns the embedded taxonomy.
func DefaultTaxonomy() Taxonomy {
	tax, err := ParseTaxonomy(defaultTaxonomyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy: %v", err))
	}
	return tax
}

// LoadTaxonomy reads and validates a taxonomy file. An empty path yields
// the embedded default.
func LoadTaxonomy(path string) (Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Taxonomy{}, apperr.Wrap(apperr.CodeInvalidConfig, err, "read taxonomy")
	}
	return ParseTaxonomy(data)
}

// ParseTaxonomy decodes YAML strictly (unknown keys are rejected) and
// validates the result.
func ParseTaxonomy(data []byte) (Taxonomy, error) {
	var tax Taxonomy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&tax); err != nil {
		return Taxonomy{}, apperr.Wrap(apperr.CodeInvalidConfig, fmt.Errorf("%w: %v", ErrMalformedTaxonomy, err), "parse taxonomy")
	}
	if err := tax.Validate(); err != nil {
		return Taxonomy{}, err
	}
	return tax, nil
}

// Validate reports the first structural problem found.
func (t Taxonomy) Validate() error {
	bad := func(format string, args ...any) error {
		return apperr.Wrap(apperr.CodeInvalidConfig,
			fmt.Errorf("%w: %s", ErrMalformedTaxonomy, fmt.Sprintf(format, args...)), "validate taxonomy")
	}
	if len(t.Categories) == 0 {
		return bad("no categories")
	}
	labels := make(map[string]bool, len(t.Categories))
	for i, c := range t.Categories {
		label := strings.TrimSpace(c.Label)
		if label == "" {
			return bad("category %d has no label", i)
		}
		if labels[strings.ToLower(label)] {
			return bad("duplicate category %q", label)
		}
		labels[strings.ToLower(label)] = true
		if len(c.Keywords) == 0 {
			return bad("category %q has no keywords", label)
		}
		for _, kw := range c.Keywords {
			if strings.TrimSpace(kw) == "" {
				return bad("category %q has a blank keyword", label)
			}
		}
	}
	terms := make(map[string]bool, len(t.Bonuses))
	for i, b := range t.Bonuses {
		term := strings.ToLower(strings.TrimSpace(b.Term))
		if term == "" {
			return bad("bonus %d has no term", i)
		}
		if terms[term] {
			return bad("duplicate bonus %q", b.Term)
		}
		terms[term] = true
		if b.Weight <= 0 {
			return bad("bonus %q has non-positive weight %d", b.Term, b.Weight)
		}
	}
	if t.Threshold < 1 {
		return bad("threshold must be at least 1, got %d", t.Threshold)
	}
	if t.Cap < 1 {
		return bad("cap must be at least 1, got %d", t.Cap)
	}
	return nil
}
