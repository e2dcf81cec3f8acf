package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"research-backend/internal/insights"
)

func TestExtractTermsAppliesTableAndLimits(t *testing.T) {
	items := []insights.Insight{
		{ID: "a", Type: insights.TypeMethodology, Confidence: 0.7, Content: map[string]any{
			"methods": []any{"ablation", "", "probing", "distillation", "pruning"},
		}},
		{ID: "b", Type: insights.TypeDataPoint, Confidence: 0.6, Content: map[string]any{
			"metrics": []any{map[string]any{"name": "perplexity", "value": "18.2"}, 42},
		}},
		{ID: "c", Type: insights.TypeLimitation, Content: map[string]any{"limitations": []any{"small data"}}},
	}

	terms := ExtractTerms(items)
	assert.Equal(t, []Term{
		{Text: "ablation", Category: CategoryMethodology, InsightID: "a", Confidence: 0.7},
		{Text: "probing", Category: CategoryMethodology, InsightID: "a", Confidence: 0.7},
		{Text: "distillation", Category: CategoryMethodology, InsightID: "a", Confidence: 0.7},
		{Text: "perplexity", Category: CategoryConcept, InsightID: "b", Confidence: 0.6},
	}, terms)
}
