package enrich

import (
	_ "embed"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed data/gazetteer.yaml
var gazetteerYAML []byte

// City is a reference point for approximate placement.
type City struct {
	Name      string   `yaml:"name"`
	Country   string   `yaml:"country"`
	Latitude  float64  `yaml:"latitude"`
	Longitude float64  `yaml:"longitude"`
	Aliases   []string `yaml:"aliases"`
}

type gazetteerDoc struct {
	Default string `yaml:"default"`
	Cities  []City `yaml:"cities"`
}

type alias struct {
	folded string
	city   int
}

// Gazetteer matches free text against a small table of cities.
type Gazetteer struct {
	cities   []City
	def      int
	byLength []alias // longest alias first
}

// LoadGazetteer parses a YAML gazetteer document.
func LoadGazetteer(data []byte) (*Gazetteer, error) {
	var doc gazetteerDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "gazetteer: parse")
	}
	if len(doc.Cities) == 0 {
		return nil, eris.New("gazetteer: no cities")
	}

	g := &Gazetteer{cities: doc.Cities, def: -1}
	for i, c := range doc.Cities {
		if c.Name == "" {
			return nil, eris.Errorf("gazetteer: city %d has no name", i)
		}
		if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
			return nil, eris.Errorf("gazetteer: %s has out-of-range coordinates", c.Name)
		}
		if fold(c.Name) == fold(doc.Default) {
			g.def = i
		}
		names := append([]string{c.Name}, c.Aliases...)
		for _, a := range names {
			if f := fold(a); f != "" {
				g.byLength = append(g.byLength, alias{folded: f, city: i})
			}
		}
	}
	if g.def < 0 {
		return nil, eris.Errorf("gazetteer: default city %q is not listed", doc.Default)
	}

	sort.SliceStable(g.byLength, func(i, j int) bool {
		return len(g.byLength[i].folded) > len(g.byLength[j].folded)
	})
	return g, nil
}

// DefaultGazetteer returns the built-in gazetteer.
func DefaultGazetteer() (*Gazetteer, error) {
	return LoadGazetteer(gazetteerYAML)
}

// Match returns the city whose name or alias appears in text. Longer
// aliases win over shorter ones.
func (g *Gazetteer) Match(text string) (City, bool) {
	folded := fold(text)
	for _, a := range g.byLength {
		if containsWord(folded, a.folded) {
			return g.cities[a.city], true
		}
	}
	return City{}, false
}

// Resolve returns the matched city or, when nothing matches, the default
// one. matched reports which.
func (g *Gazetteer) Resolve(text string) (city City, matched bool) {
	if c, ok := g.Match(text); ok {
		return c, true
	}
	return g.Default(), false
}

// Default returns the baseline city.
func (g *Gazetteer) Default() City {
	return g.cities[g.def]
}
