package classify

import (
	"fmt"
	"sort"
	"strings"

	"research-backend/internal/textprep"
)

// Match is one pattern hit.
type Match struct {
	Tier    Tier   `json:"tier"`
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// CategoryExplanation lists the hits behind one category score.
type CategoryExplanation struct {
	Category   string  `json:"category"`
	Raw        float64 `json:"raw"`
	Bonus      float64 `json:"bonus"`
	Confidence float64 `json:"confidence"`
	Matches    []Match `json:"matches"`
}

// DimensionExplanation is the breakdown for one dimension.
type DimensionExplanation struct {
	Dimension  string                `json:"dimension"`
	Winner     string                `json:"winner"`
	Confidence float64               `json:"confidence"`
	Categories []CategoryExplanation `json:"categories"`
}

// Explanation is a debugging view of a classification.
type Explanation struct {
	RulesVersion string                 `json:"rulesVersion"`
	Aggregate    float64                `json:"aggregate"`
	Dimensions   []DimensionExplanation `json:"dimensions"`
}

// Explain scores the view and records every pattern hit. Categories without
// hits are omitted.
func (s *Scorer) Explain(view textprep.View) (Explanation, error) {
	t := s.table.Load()
	if t == nil {
		return Explanation{}, ErrInvalidRules
	}
	if strings.TrimSpace(view.Text) == "" {
		return Explanation{}, ErrEmptyText
	}

	out := Explanation{RulesVersion: t.Version}
	confs := make([]float64, 0, 3)
	for _, dim := range t.Dimensions() {
		hits := map[string][]Match{}
		ds := scoreDimension(t, dim, view.Text, func(category string, m Match) {
			hits[category] = append(hits[category], m)
		})
		confs = append(confs, ds.Confidence)

		de := DimensionExplanation{Dimension: dim.Name, Winner: ds.Category, Confidence: ds.Confidence}
		for _, cs := range ds.Scores {
			if cs.Raw == 0 {
				continue
			}
			de.Categories = append(de.Categories, CategoryExplanation{
				Category:   cs.Category,
				Raw:        cs.Raw,
				Bonus:      cs.Bonus,
				Confidence: cs.Confidence,
				Matches:    hits[cs.Category],
			})
		}
		sort.SliceStable(de.Categories, func(a, b int) bool {
			return de.Categories[a].Raw > de.Categories[b].Raw
		})
		out.Dimensions = append(out.Dimensions, de)
	}
	out.Aggregate = aggregate(confs[0], confs[1], confs[2])
	return out, nil
}

// Summary renders the explanation as a short human-readable report.
func (e Explanation) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rules v%s aggregate=%.2f\n", e.RulesVersion, e.Aggregate)
	for _, d := range e.Dimensions {
		fmt.Fprintf(&b, "%s: %s (%.2f)\n", d.Dimension, d.Winner, d.Confidence)
		for _, c := range d.Categories {
			fmt.Fprintf(&b, "  %-22s raw=%.1f bonus=%.1f hits=%d\n", c.Category, c.Raw, c.Bonus, len(c.Matches))
		}
	}
	return b.String()
}
