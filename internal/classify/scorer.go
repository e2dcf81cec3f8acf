package classify

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"research-backend/internal/textprep"
)

// CategoryScore is the score of one category within a dimension.
type CategoryScore struct {
	Category     string
	Raw          float64
	Confidence   float64
	PatternCount int
	TierHits     map[Tier]int
	Bonus        float64
}

// DimensionScore is the winning category of one dimension plus all candidates.
type DimensionScore struct {
	Dimension  string
	Category   string
	Confidence float64
	Scores     []CategoryScore
}

// Result is the classifier output for one document.
type Result struct {
	Type          DimensionScore
	Evidence      DimensionScore
	Applicability DimensionScore
	RulesVersion  string
}

// Dimensions returns the three dimension scores in a fixed order.
func (r Result) Dimensions() []DimensionScore {
	return []DimensionScore{r.Type, r.Evidence, r.Applicability}
}

// Scorer applies a rule table to classification views. The table can be
// swapped atomically while scoring is in flight.
type Scorer struct {
	table atomic.Pointer[Table]
}

// NewScorer returns a Scorer over t.
func NewScorer(t *Table) *Scorer {
	s := &Scorer{}
	s.table.Store(t)
	return s
}

// Swap replaces the rule table.
func (s *Scorer) Swap(t *Table) {
	if t != nil {
		s.table.Store(t)
	}
}

// Table returns the active rule table.
func (s *Scorer) Table() *Table {
	return s.table.Load()
}

// Score classifies a view along all three dimensions. It is a pure function of
// the view text and the active table.
func (s *Scorer) Score(view textprep.View) (Result, error) {
	t := s.table.Load()
	if t == nil {
		return Result{}, fmt.Errorf("%w: no table loaded", ErrInvalidRules)
	}
	text := view.Text
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyText
	}

	return Result{
		Type:          scoreDimension(t, &t.Type, text, nil),
		Evidence:      scoreDimension(t, &t.Evidence, text, nil),
		Applicability: scoreDimension(t, &t.Applicability, text, nil),
		RulesVersion:  t.Version,
	}, nil
}

// matchSink receives individual pattern hits when explaining a score.
type matchSink func(category string, m Match)

func scoreDimension(t *Table, dim *Dimension, text string, sink matchSink) DimensionScore {
	out := DimensionScore{Dimension: dim.Name, Scores: make([]CategoryScore, 0, len(dim.Categories))}
	best := -1
	for i := range dim.Categories {
		cs := scoreCategory(t, dim, &dim.Categories[i], text, sink)
		out.Scores = append(out.Scores, cs)
		if cs.Raw == 0 {
			continue
		}
		if best < 0 || beats(cs, out.Scores[best]) {
			best = i
		}
	}

	if best < 0 {
		out.Category = dim.Default
		out.Confidence = 0
		return out
	}
	out.Category = out.Scores[best].Category
	out.Confidence = out.Scores[best].Confidence
	return out
}

// beats orders candidates by raw score, then by rule set size. Equal
// candidates keep declaration order.
func beats(a, b CategoryScore) bool {
	if a.Raw != b.Raw {
		return a.Raw > b.Raw
	}
	return a.PatternCount > b.PatternCount
}

func scoreCategory(t *Table, dim *Dimension, cat *CategoryRules, text string, sink matchSink) CategoryScore {
	cs := CategoryScore{
		Category:     cat.Name,
		PatternCount: cat.PatternCount(),
		TierHits:     map[Tier]int{},
	}
	for _, p := range cat.patterns {
		count := 0
		if p.tier == TierContent {
			count = len(p.re.FindAllStringIndex(text, t.PatternCap))
		} else if p.re.MatchString(text) {
			count = 1
		}
		if count == 0 {
			continue
		}
		cs.Raw += float64(count) * tierWeights[p.tier]
		cs.TierHits[p.tier] += count
		if sink != nil {
			sink(cat.Name, Match{Tier: p.tier, Pattern: p.source, Count: count})
		}
	}
	if tiers := len(cs.TierHits); tiers > 1 {
		cs.Bonus = t.CrossTierBonus * float64(tiers-1)
		cs.Raw += cs.Bonus
	}
	cs.Confidence = math.Min(cs.Raw/dim.Saturation, 1)
	return cs
}
