package extraction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"research-backend/internal/insights"
	"research-backend/internal/llm"
	"research-backend/internal/shared/telemetry"
	"research-backend/internal/textprep"
)

const (
	defaultLegacyTimeout = 60 * time.Second
	// legacyFullTextRunes bounds the body sent with the single-shot prompt.
	legacyFullTextRunes = 8000
	// legacyValidationPenalty scales confidence when validation rules fail.
	legacyValidationPenalty = 0.7
)

// LegacyStrategy extracts all insights with one rubric-driven reasoning call.
type LegacyStrategy struct {
	Reasoner llm.Reasoner
	Rubrics  *RubricTable
	Timeout  time.Duration
}

// Run makes a single attempt. It fails when the call fails or when no
// key_finding insight survives validation.
func (s *LegacyStrategy) Run(ctx context.Context, in Input) (*LegacyResult, error) {
	rubric := s.Rubrics.ForType(in.DocumentType)
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultLegacyTimeout
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	resp, err := s.Reasoner.Reason(callCtx, llm.Request{
		System: systemPrompt(),
		Prompt: buildLegacyPrompt(rubric, in),
		Schema: legacySchema(rubric),
	})
	if err != nil {
		return nil, fmt.Errorf("legacy %s: %w", rubric.ID, err)
	}
	if resp.Content == nil {
		return nil, fmt.Errorf("legacy %s: %w: empty response", rubric.ID, ErrInvalidOutput)
	}

	res := &LegacyResult{RubricID: rubric.ID, ValidationErrors: map[insights.Type][]string{}}
	total := 0.0
	for _, rule := range rubric.Rules {
		content, _ := resp.Content[string(rule.InsightType)].(map[string]any)
		if content == nil {
			content = map[string]any{}
		}
		conf := rule.Confidence(content)
		if errs := rule.Validate(content); len(errs) > 0 {
			res.ValidationErrors[rule.InsightType] = errs
			conf *= legacyValidationPenalty
		}
		if conf < rule.MinConfidence {
			res.Dropped = append(res.Dropped, rule.InsightType)
			continue
		}
		res.Items = append(res.Items, insights.Draft{
			Type:        rule.InsightType,
			Title:       insightTitle(rule.InsightType, content),
			Description: insightDescription(rule.InsightType, content),
			Content:     content,
			Confidence:  clamp01(conf),
			Method:      string(MethodLegacy) + ":" + rubric.ID,
		})
		total += conf
	}
	if n, ok := numberField(resp.Content, "novelty_score"); ok {
		v := clamp01(n)
		res.Novelty = &v
	}

	if len(res.Dropped) > 0 {
		telemetry.Info("extraction.legacy.dropped", map[string]any{
			"document_id": in.DocumentID,
			"rubric":      rubric.ID,
			"dropped":     res.Dropped,
		})
	}
	if !hasDraft(res.Items, insights.TypeKeyFinding) {
		return res, fmt.Errorf("legacy %s: %w: key_finding missing or below confidence", rubric.ID, ErrInvalidOutput)
	}
	res.Score = clamp01(total / float64(len(res.Items)))
	return res, nil
}

func buildLegacyPrompt(rubric Rubric, in Input) string {
	var b strings.Builder
	b.WriteString(mustPrompt("legacy"))
	for _, rule := range rubric.Rules {
		fmt.Fprintf(&b, "\n\n### %s\n%s\nFields: %s", rule.InsightType, rule.Prompt, strings.Join(rule.Fields, ", "))
	}
	b.WriteString("\n\nPaper:\n")
	b.WriteString(textprep.FullView(textprep.Source{
		Title:      in.Title,
		Abstract:   in.Abstract,
		Categories: in.Categories,
		FullText:   textprep.Truncate(in.FullText, legacyFullTextRunes),
	}))
	return b.String()
}

func legacySchema(rubric Rubric) map[string]any {
	props := map[string]any{
		"novelty_score": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	}
	required := make([]string, 0, len(rubric.Rules))
	for _, rule := range rubric.Rules {
		fields := map[string]any{}
		for _, f := range rule.Fields {
			fields[f] = map[string]any{}
		}
		props[string(rule.InsightType)] = map[string]any{"type": "object", "properties": fields}
		required = append(required, string(rule.InsightType))
	}
	sort.Strings(required)
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func hasDraft(drafts []insights.Draft, t insights.Type) bool {
	for _, d := range drafts {
		if d.Type == t {
			return true
		}
	}
	return false
}
