package template

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry binds a campaign id to its rule document.
type Entry struct {
	Campaign string `yaml:"campaign" json:"campaign"`
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	Family   Family `yaml:"family" json:"family"`
	Template string `yaml:"template" json:"template"`
	// Modes lists the accepted mode names of a multi-mode document, matched
	// case-insensitively in order.
	Modes []string `yaml:"modes,omitempty" json:"modes,omitempty"`
	// VersionConstraint is an optional semver constraint checked against the
	// document's top-level "version".
	VersionConstraint string `yaml:"version_constraint,omitempty" json:"version_constraint,omitempty"`
}

// Catalog is the ordered list of validated promotions.
type Catalog struct {
	Entries []Entry `yaml:"promotions" json:"promotions"`
}

// DefaultCatalog is the production promotion set.
func DefaultCatalog() Catalog {
	return Catalog{Entries: []Entry{
		{Campaign: "17", Name: "TOP", Family: FamilyRanking, Template: "ranking-top.rules.full.json"},
		{Campaign: "18", Name: "Estelar", Family: FamilyDraw, Template: "sorteos.rules.full.json", Modes: []string{"estelar"}},
		{Campaign: "19", Name: "Sueños", Family: FamilyDraw, Template: "sorteos.rules.full.json", Modes: []string{"suenos", "sueños"}},
		{Campaign: "22", Name: "Salta y Gana", Family: FamilySaltaYGana, Template: "sorteos.saltaYGana.rules.json"},
	}}
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return Catalog{}, fmt.Errorf("load catalog %q: %w", path, err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %q: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("catalog %q: %w", path, err)
	}
	return c, nil
}

// Validate checks that every entry is complete and campaign ids are unique.
func (c Catalog) Validate() error {
	if len(c.Entries) == 0 {
		return fmt.Errorf("no promotions declared")
	}
	seen := make(map[string]bool, len(c.Entries))
	for i, e := range c.Entries {
		switch {
		case e.Campaign == "":
			return fmt.Errorf("entry %d: campaign is required", i)
		case seen[e.Campaign]:
			return fmt.Errorf("entry %d: duplicate campaign %q", i, e.Campaign)
		case e.Template == "":
			return fmt.Errorf("campaign %s: template is required", e.Campaign)
		}
		switch e.Family {
		case FamilyRanking, FamilySaltaYGana:
		case FamilyDraw:
			if len(e.Modes) == 0 {
				return fmt.Errorf("campaign %s: draw family requires modes", e.Campaign)
			}
		default:
			return fmt.Errorf("campaign %s: unknown family %q", e.Campaign, e.Family)
		}
		seen[e.Campaign] = true
	}
	return nil
}

// Lookup finds the entry for a campaign id.
func (c Catalog) Lookup(campaign string) (Entry, bool) {
	for _, e := range c.Entries {
		if e.Campaign == campaign {
			return e, true
		}
	}
	return Entry{}, false
}

// Select resolves a promotion filter. An empty filter or "all" selects every
// entry; otherwise ids are matched in filter order and unknown ids are
// returned separately.
func (c Catalog) Select(filter []string) (selected []Entry, unknown []string) {
	if len(filter) == 0 || (len(filter) == 1 && strings.EqualFold(strings.TrimSpace(filter[0]), "all")) {
		return append([]Entry(nil), c.Entries...), nil
	}
	for _, id := range filter {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if e, ok := c.Lookup(id); ok {
			selected = append(selected, e)
		} else {
			unknown = append(unknown, id)
		}
	}
	return selected, unknown
}

// DisplayName is the name shown in summaries, falling back to the id.
func (e Entry) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Campaign
}
