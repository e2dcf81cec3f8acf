package tags

import (
	"strings"

	"research-backend/internal/insights"
)

// Term is a candidate tag pulled from one insight.
type Term struct {
	Text       string
	Category   Category
	InsightID  string
	Confidence float64
}

type termRule struct {
	insightType insights.Type
	field       string
	category    Category
	limit       int
}

// termRules says which insight fields feed which tag category.
var termRules = []termRule{
	{insights.TypeConcept, "research_domain", CategoryDomain, 1},
	{insights.TypeConcept, "key_concepts", CategoryConcept, 5},
	{insights.TypeConcept, "innovations", CategoryInnovationMarker, 3},
	{insights.TypeFramework, "core_concept", CategoryConcept, 1},
	{insights.TypeFramework, "components", CategoryMethodology, 3},
	{insights.TypeFramework, "innovations", CategoryInnovationMarker, 3},
	{insights.TypeMethodology, "methods", CategoryMethodology, 3},
	{insights.TypeApplication, "applications", CategoryApplication, 3},
	{insights.TypeApplication, "problem_domain", CategoryDomain, 1},
	{insights.TypeDataPoint, "metrics", CategoryConcept, 3},
}

// ExtractTerms applies the term table to each insight. Duplicate
// (text, category) pairs within one insight are dropped.
func ExtractTerms(items []insights.Insight) []Term {
	var out []Term
	for _, it := range items {
		seen := map[string]bool{}
		for _, rule := range termRules {
			if rule.insightType != it.Type {
				continue
			}
			for _, text := range termValues(it.Content[rule.field], rule.limit) {
				key := string(rule.category) + "|" + strings.ToLower(text)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, Term{Text: text, Category: rule.category, InsightID: it.ID, Confidence: it.Confidence})
			}
		}
	}
	return out
}

// termValues reads strings, string lists, and lists of objects carrying a
// "name" field.
func termValues(v any, limit int) []string {
	var out []string
	add := func(s string) bool {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
		return len(out) < limit
	}
	switch val := v.(type) {
	case string:
		add(val)
	case []any:
		for _, item := range val {
			var more bool
			switch x := item.(type) {
			case string:
				more = add(x)
			case map[string]any:
				name, _ := x["name"].(string)
				more = add(name)
			default:
				more = true
			}
			if !more {
				break
			}
		}
	case []string:
		for _, s := range val {
			if !add(s) {
				break
			}
		}
	}
	return out
}
