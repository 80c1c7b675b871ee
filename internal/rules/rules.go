// Package rules holds the externally overridable interpreter configuration:
// the month-name map, the keyword-to-category table and the stopword list.
// Defaults are embedded in the binary; RULES_PATH points at a replacement
// file so keywords can grow without touching matching logic.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"spendlens/assets"
)

// CategoryRule maps query keywords to one category label. The position of
// a rule in Set.Categories is its match priority.
type CategoryRule struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// Set is one loaded rule configuration. Load it once at startup; it is
// read-only afterwards and safe for concurrent use.
type Set struct {
	Months     map[string]int `json:"months"`
	Categories []CategoryRule `json:"categories"`
	Stopwords  []string       `json:"stopwords"`

	keywordCategory map[string]string
	stopwords       map[string]struct{}
}

// Parse decodes and validates a rule set from JSON.
func Parse(data []byte) (*Set, error) {
	var s Set
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	s.index()
	return &s, nil
}

// Load reads a rule set from a JSON file. Malformed overrides fail here,
// at startup, not at query time.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return s, nil
}

// Default returns the embedded rule set. The embedded JSON is covered by
// tests, so a parse failure here is a programming error.
func Default() *Set {
	s, err := Parse(assets.DefaultRules)
	if err != nil {
		panic("embedded rules.json is invalid: " + err.Error())
	}
	return s
}

func (s *Set) validate() error {
	var problems []string

	if len(s.Months) == 0 {
		problems = append(problems, "months map is empty")
	}
	for name, m := range s.Months {
		if m < 1 || m > 12 {
			problems = append(problems, fmt.Sprintf("month %q out of range: %d", name, m))
		}
	}
	for i, c := range s.Categories {
		if strings.TrimSpace(c.Name) == "" {
			problems = append(problems, fmt.Sprintf("category %d has no name", i))
		}
		if len(c.Keywords) == 0 {
			problems = append(problems, fmt.Sprintf("category %q has no keywords", c.Name))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid rules: %s", strings.Join(problems, "; "))
	}
	return nil
}

// index builds the lookup maps. Earlier categories win keyword collisions.
func (s *Set) index() {
	s.keywordCategory = make(map[string]string)
	for _, c := range s.Categories {
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if _, taken := s.keywordCategory[kw]; !taken {
				s.keywordCategory[kw] = c.Name
			}
		}
	}
	s.stopwords = make(map[string]struct{}, len(s.Stopwords))
	for _, w := range s.Stopwords {
		s.stopwords[strings.ToLower(w)] = struct{}{}
	}
}

// Month resolves a token against the month map.
func (s *Set) Month(token string) (int, bool) {
	m, ok := s.Months[strings.ToLower(token)]
	return m, ok
}

// Category resolves a token against the keyword table.
func (s *Set) Category(token string) (string, bool) {
	c, ok := s.keywordCategory[strings.ToLower(token)]
	return c, ok
}

// IsStopword reports whether the token carries no filter meaning on its own.
func (s *Set) IsStopword(token string) bool {
	_, ok := s.stopwords[strings.ToLower(token)]
	return ok
}

// CategoryNames returns the configured labels in priority order.
func (s *Set) CategoryNames() []string {
	names := make([]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		names = append(names, c.Name)
	}
	return names
}
