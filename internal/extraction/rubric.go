package extraction

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"research-backend/internal/insights"
)

//go:embed rubrics/default.yaml
var defaultRubrics []byte

type rubricFile struct {
	Version       string        `yaml:"version"`
	DefaultRubric string        `yaml:"default_rubric"`
	CommonRules   []ruleFile    `yaml:"common_rules"`
	Rubrics       []rubricEntry `yaml:"rubrics"`
}

type rubricEntry struct {
	ID            string     `yaml:"id"`
	Name          string     `yaml:"name"`
	DocumentTypes []string   `yaml:"document_types"`
	Rules         []ruleFile `yaml:"rules"`
}

type ruleFile struct {
	InsightType     string   `yaml:"insight_type"`
	Prompt          string   `yaml:"prompt"`
	Fields          []string `yaml:"fields"`
	RequiredFields  []string `yaml:"required_fields"`
	MinCompleteness float64  `yaml:"min_completeness"`
	Validation      []string `yaml:"validation"`
	MinConfidence   float64  `yaml:"min_confidence"`
}

// validationRule is a parsed "<field> must ..." rule.
type validationRule struct {
	field    string
	minItems int
	source   string
}

func (v validationRule) check(content map[string]any) (string, bool) {
	val, present := content[v.field]
	if v.minItems == 0 {
		if !present || !filledValue(val) {
			return v.field + " is empty", false
		}
		return "", true
	}
	if !present {
		return v.field + " is missing", false
	}
	items, ok := val.([]any)
	if !ok {
		return v.field + " is not a list", false
	}
	if len(items) < v.minItems {
		return fmt.Sprintf("%s has %d items, need %d", v.field, len(items), v.minItems), false
	}
	return "", true
}

// LegacyRule extracts one insight type in the single-shot method.
type LegacyRule struct {
	InsightType     insights.Type
	Prompt          string
	Fields          []string
	RequiredFields  []string
	MinCompleteness float64
	MinConfidence   float64
	validations     []validationRule
}

// Validate applies the rule's validation grammar to content.
func (r LegacyRule) Validate(content map[string]any) []string {
	var errs []string
	for _, v := range r.validations {
		if msg, ok := v.check(content); !ok {
			errs = append(errs, msg)
		}
	}
	return errs
}

// Confidence is required-field completeness scaled by MinCompleteness.
func (r LegacyRule) Confidence(content map[string]any) float64 {
	if len(r.RequiredFields) == 0 {
		return 1
	}
	filled := 0
	for _, f := range r.RequiredFields {
		if filledValue(content[f]) {
			filled++
		}
	}
	ratio := float64(filled) / float64(len(r.RequiredFields))
	minimum := r.MinCompleteness
	if minimum <= 0 {
		minimum = 0.5
	}
	return clamp01(ratio / minimum)
}

// Rubric is the rule set applied to one family of document types.
type Rubric struct {
	ID            string
	Name          string
	DocumentTypes []string
	Rules         []LegacyRule
}

// RubricTable selects rubrics by document type.
type RubricTable struct {
	Version string
	byID    map[string]Rubric
	byType  map[string]string
	def     string
}

// DefaultRubricTable parses the embedded rubric table.
func DefaultRubricTable() (*RubricTable, error) {
	return ParseRubrics(defaultRubrics)
}

// LoadRubrics returns the file table when path is set, else the embedded one.
func LoadRubrics(path string) (*RubricTable, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRubricTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubrics %s: %w", path, err)
	}
	return ParseRubrics(data)
}

// ParseRubrics decodes and validates a rubric table.
func ParseRubrics(data []byte) (*RubricTable, error) {
	var raw rubricFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRubric, err)
	}
	common, err := compileRules(raw.CommonRules)
	if err != nil {
		return nil, err
	}

	t := &RubricTable{
		Version: raw.Version,
		byID:    map[string]Rubric{},
		byType:  map[string]string{},
		def:     raw.DefaultRubric,
	}
	for _, entry := range raw.Rubrics {
		if entry.ID == "" {
			return nil, fmt.Errorf("%w: rubric without id", ErrInvalidRubric)
		}
		if _, dup := t.byID[entry.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate rubric %s", ErrInvalidRubric, entry.ID)
		}
		rules, err := compileRules(entry.Rules)
		if err != nil {
			return nil, fmt.Errorf("rubric %s: %w", entry.ID, err)
		}
		rules = appendMissing(rules, common)
		if len(rules) == 0 {
			return nil, fmt.Errorf("%w: rubric %s has no rules", ErrInvalidRubric, entry.ID)
		}
		t.byID[entry.ID] = Rubric{ID: entry.ID, Name: entry.Name, DocumentTypes: entry.DocumentTypes, Rules: rules}
		for _, dt := range entry.DocumentTypes {
			if _, taken := t.byType[dt]; !taken {
				t.byType[dt] = entry.ID
			}
		}
	}
	if _, ok := t.byID[t.def]; !ok {
		return nil, fmt.Errorf("%w: default rubric %q is not defined", ErrInvalidRubric, t.def)
	}
	for id, r := range t.byID {
		if !hasKeyFinding(r.Rules) {
			return nil, fmt.Errorf("%w: rubric %s has no key_finding rule", ErrInvalidRubric, id)
		}
	}
	return t, nil
}

// ForType returns the rubric for a document type, or the default rubric.
func (t *RubricTable) ForType(docType string) Rubric {
	if id, ok := t.byType[docType]; ok {
		return t.byID[id]
	}
	return t.byID[t.def]
}

// IDs lists the configured rubric ids.
func (t *RubricTable) IDs() []string {
	out := make([]string, 0, len(t.byID))
	for id := range t.byID {
		out = append(out, id)
	}
	return out
}

func compileRules(raw []ruleFile) ([]LegacyRule, error) {
	out := make([]LegacyRule, 0, len(raw))
	for _, r := range raw {
		typ := insights.Type(strings.TrimSpace(r.InsightType))
		if !typ.Valid() {
			return nil, fmt.Errorf("%w: unknown insight type %q", ErrInvalidRubric, r.InsightType)
		}
		rule := LegacyRule{
			InsightType:     typ,
			Prompt:          strings.TrimSpace(r.Prompt),
			Fields:          r.Fields,
			RequiredFields:  r.RequiredFields,
			MinCompleteness: r.MinCompleteness,
			MinConfidence:   r.MinConfidence,
		}
		for _, src := range r.Validation {
			v, err := parseValidation(src)
			if err != nil {
				return nil, err
			}
			rule.validations = append(rule.validations, v)
		}
		out = append(out, rule)
	}
	return out, nil
}

// parseValidation understands "<field> must not be empty" and
// "<field> must have at least <n> items".
func parseValidation(src string) (validationRule, error) {
	parts := strings.Fields(src)
	if len(parts) < 4 || parts[1] != "must" {
		return validationRule{}, fmt.Errorf("%w: unsupported validation %q", ErrInvalidRubric, src)
	}
	rest := strings.Join(parts[2:], " ")
	switch {
	case rest == "not be empty":
		return validationRule{field: parts[0], source: src}, nil
	case strings.HasPrefix(rest, "have at least "):
		fields := strings.Fields(strings.TrimPrefix(rest, "have at least "))
		if len(fields) == 0 {
			break
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil || n <= 0 {
			return validationRule{}, fmt.Errorf("%w: bad count in %q", ErrInvalidRubric, src)
		}
		return validationRule{field: parts[0], minItems: n, source: src}, nil
	}
	return validationRule{}, fmt.Errorf("%w: unsupported validation %q", ErrInvalidRubric, src)
}

func appendMissing(rules, common []LegacyRule) []LegacyRule {
	out := append([]LegacyRule(nil), rules...)
	for _, c := range common {
		present := false
		for _, r := range rules {
			if r.InsightType == c.InsightType {
				present = true
				break
			}
		}
		if !present {
			out = append(out, c)
		}
	}
	return out
}

func hasKeyFinding(rules []LegacyRule) bool {
	for _, r := range rules {
		if r.InsightType == insights.TypeKeyFinding {
			return true
		}
	}
	return false
}
