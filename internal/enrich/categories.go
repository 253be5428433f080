package enrich

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed data/categories.yaml
var categoriesYAML []byte

type categoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Categories infers a place category from keywords.
type Categories struct {
	rules []categoryRule
}

// LoadCategories parses a YAML keyword table. Keywords are folded once at
// load time.
func LoadCategories(data []byte) (*Categories, error) {
	var doc struct {
		Categories []categoryRule `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "categories: parse")
	}

	c := &Categories{}
	for i, r := range doc.Categories {
		if r.Name == "" {
			return nil, eris.Errorf("categories: rule %d has no name", i)
		}
		folded := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if f := fold(k); f != "" {
				folded = append(folded, f)
			}
		}
		c.rules = append(c.rules, categoryRule{Name: r.Name, Keywords: folded})
	}
	return c, nil
}

// DefaultCategories returns the built-in keyword table.
func DefaultCategories() (*Categories, error) {
	return LoadCategories(categoriesYAML)
}

// Infer returns the first category whose keyword appears in one of texts,
// checked in argument order, or "" when nothing matches.
func (c *Categories) Infer(texts ...string) string {
	if c == nil {
		return ""
	}
	for _, t := range texts {
		folded := fold(t)
		if folded == "" {
			continue
		}
		for _, r := range c.rules {
			for _, k := range r.Keywords {
				if containsWord(folded, k) {
					return r.Name
				}
			}
		}
	}
	return ""
}
