package classify

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules/default.yaml
var defaultRules []byte

// Tier is the weight class of a pattern.
type Tier string

const (
	TierTitle    Tier = "title"
	TierAbstract Tier = "abstract"
	TierContent  Tier = "content"
)

var tierWeights = map[Tier]float64{
	TierTitle:    3.0,
	TierAbstract: 2.0,
	TierContent:  1.0,
}

// Dimension names.
const (
	DimensionType          = "type"
	DimensionEvidence      = "evidence"
	DimensionApplicability = "applicability"
)

type rulesFile struct {
	Version        string        `yaml:"version"`
	PatternCap     int           `yaml:"pattern_cap"`
	CrossTierBonus float64       `yaml:"cross_tier_bonus"`
	Type           dimensionFile `yaml:"type"`
	Evidence       dimensionFile `yaml:"evidence"`
	Applicability  dimensionFile `yaml:"applicability"`
}

type dimensionFile struct {
	Default    string         `yaml:"default"`
	Saturation float64        `yaml:"saturation"`
	Categories []categoryFile `yaml:"categories"`
}

type categoryFile struct {
	Name              string   `yaml:"name"`
	TitlePatterns     []string `yaml:"title_patterns"`
	AbstractPatterns  []string `yaml:"abstract_patterns"`
	ContentIndicators []string `yaml:"content_indicators"`
}

type pattern struct {
	tier   Tier
	source string
	re     *regexp.Regexp
}

// CategoryRules is the compiled rule set of one category.
type CategoryRules struct {
	Name     string
	patterns []pattern
}

// PatternCount is the number of patterns evaluated for the category.
func (c CategoryRules) PatternCount() int {
	return len(c.patterns)
}

// Dimension is one independent classification axis.
type Dimension struct {
	Name       string
	Default    string
	Saturation float64
	Categories []CategoryRules
}

// Table is an immutable, compiled rule table.
type Table struct {
	Version        string
	PatternCap     int
	CrossTierBonus float64
	Type           Dimension
	Evidence       Dimension
	Applicability  Dimension
}

// Dimensions returns the three axes in scoring order.
func (t *Table) Dimensions() []*Dimension {
	return []*Dimension{&t.Type, &t.Evidence, &t.Applicability}
}

// DefaultTable compiles the embedded rule table.
func DefaultTable() (*Table, error) {
	return ParseTable(defaultRules)
}

// LoadTableFile compiles a rule table from disk.
func LoadTableFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return ParseTable(data)
}

// LoadTable returns the file table when path is set, else the embedded one.
func LoadTable(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable()
	}
	return LoadTableFile(path)
}

// ParseTable decodes and validates a YAML rule table.
func ParseTable(data []byte) (*Table, error) {
	var raw rulesFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if raw.PatternCap <= 0 {
		raw.PatternCap = 5
	}
	if raw.CrossTierBonus < 0 {
		return nil, fmt.Errorf("%w: cross_tier_bonus must not be negative", ErrInvalidRules)
	}

	t := &Table{
		Version:        raw.Version,
		PatternCap:     raw.PatternCap,
		CrossTierBonus: raw.CrossTierBonus,
	}
	var err error
	if t.Type, err = compileDimension(DimensionType, raw.Type); err != nil {
		return nil, err
	}
	if t.Evidence, err = compileDimension(DimensionEvidence, raw.Evidence); err != nil {
		return nil, err
	}
	if t.Applicability, err = compileDimension(DimensionApplicability, raw.Applicability); err != nil {
		return nil, err
	}
	return t, nil
}

func compileDimension(name string, raw dimensionFile) (Dimension, error) {
	if len(raw.Categories) == 0 {
		return Dimension{}, fmt.Errorf("%w: dimension %s has no categories", ErrInvalidRules, name)
	}
	if raw.Saturation <= 0 {
		return Dimension{}, fmt.Errorf("%w: dimension %s needs a positive saturation", ErrInvalidRules, name)
	}

	dim := Dimension{Name: name, Default: raw.Default, Saturation: raw.Saturation}
	seen := map[string]bool{}
	for _, cat := range raw.Categories {
		catName := strings.TrimSpace(cat.Name)
		if catName == "" {
			return Dimension{}, fmt.Errorf("%w: dimension %s has an unnamed category", ErrInvalidRules, name)
		}
		if seen[catName] {
			return Dimension{}, fmt.Errorf("%w: dimension %s repeats category %s", ErrInvalidRules, name, catName)
		}
		seen[catName] = true

		rules := CategoryRules{Name: catName}
		for _, src := range cat.TitlePatterns {
			p, err := compilePattern(TierTitle, src)
			if err != nil {
				return Dimension{}, fmt.Errorf("%w: %s/%s: %v", ErrInvalidRules, name, catName, err)
			}
			rules.patterns = append(rules.patterns, p)
		}
		for _, src := range cat.AbstractPatterns {
			p, err := compilePattern(TierAbstract, src)
			if err != nil {
				return Dimension{}, fmt.Errorf("%w: %s/%s: %v", ErrInvalidRules, name, catName, err)
			}
			rules.patterns = append(rules.patterns, p)
		}
		for _, word := range cat.ContentIndicators {
			word = strings.ToLower(strings.TrimSpace(word))
			if word == "" {
				continue
			}
			rules.patterns = append(rules.patterns, pattern{
				tier:   TierContent,
				source: word,
				re:     regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`),
			})
		}
		if len(rules.patterns) == 0 {
			return Dimension{}, fmt.Errorf("%w: %s/%s has no patterns", ErrInvalidRules, name, catName)
		}
		dim.Categories = append(dim.Categories, rules)
	}
	if !seen[dim.Default] {
		return Dimension{}, fmt.Errorf("%w: dimension %s default %q is not a category", ErrInvalidRules, name, dim.Default)
	}
	return dim, nil
}

func compilePattern(tier Tier, src string) (pattern, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return pattern{}, fmt.Errorf("empty %s pattern", tier)
	}
	re, err := regexp.Compile("(?i)" + src)
	if err != nil {
		return pattern{}, fmt.Errorf("compile %s pattern %q: %w", tier, src, err)
	}
	return pattern{tier: tier, source: src, re: re}, nil
}
