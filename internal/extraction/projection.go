package extraction

import (
	"fmt"
	"strings"

	"research-backend/internal/insights"
	"research-backend/internal/textprep"
)

func projectContentAnalysis(st StepResult) []insights.Draft {
	c := st.Content
	out := []insights.Draft{chainDraft(insights.TypeConcept, st, map[string]any{
		"research_domain":     stringField(c, "research_domain"),
		"key_concepts":        listField(c, "main_topics"),
		"sections":            listField(c, "sections"),
		"methodology_signals": listField(c, "methodology_signals"),
	})}
	if fw, ok := c["framework"].(map[string]any); ok && stringField(fw, "name") != "" {
		out = append(out, chainDraft(insights.TypeFramework, st, fw))
	}
	return out
}

func projectResearchElements(st StepResult) []insights.Draft {
	c := st.Content
	return []insights.Draft{chainDraft(insights.TypeMethodology, st, map[string]any{
		"problem_statement": stringField(c, "problem_statement"),
		"hypotheses":        listField(c, "hypotheses"),
		"methods":           listField(c, "methods"),
		"method_detail":     stringField(c, "method_detail"),
	})}
}

func projectContribution(st StepResult) []insights.Draft {
	c := st.Content
	out := []insights.Draft{chainDraft(insights.TypeConcept, st, map[string]any{
		"key_findings": listField(c, "key_findings"),
		"novelty":      stringField(c, "novelty"),
		"innovations":  listField(c, "innovations"),
		"significance": stringField(c, "significance"),
	})}
	if lim := listField(c, "limitations"); len(lim) > 0 {
		out = append(out, chainDraft(insights.TypeLimitation, st, map[string]any{"limitations": lim}))
	}
	if metrics := listField(c, "metrics"); len(metrics) > 0 {
		out = append(out, chainDraft(insights.TypeDataPoint, st, map[string]any{"metrics": metrics}))
	}
	return out
}

func projectPractical(st StepResult) []insights.Draft {
	c := st.Content
	out := []insights.Draft{chainDraft(insights.TypeApplication, st, map[string]any{
		"applications":     listField(c, "applications"),
		"target_audiences": listField(c, "target_audiences"),
		"problem_domain":   stringField(c, "problem_domain"),
	})}
	if dirs := listField(c, "future_directions"); len(dirs) > 0 {
		out = append(out, chainDraft(insights.TypeFutureWork, st, map[string]any{"future_directions": dirs}))
	}
	return out
}

func projectExecutive(st StepResult) []insights.Draft {
	content := make(map[string]any, len(keyFindingFieldNames))
	for _, name := range keyFindingFieldNames {
		content[name] = stringField(st.Content, name)
	}
	return []insights.Draft{chainDraft(insights.TypeKeyFinding, st, content)}
}

func chainDraft(t insights.Type, st StepResult, content map[string]any) insights.Draft {
	return insights.Draft{
		Type:        t,
		Title:       insightTitle(t, content),
		Description: insightDescription(t, content),
		Content:     content,
		Confidence:  clamp01(st.Confidence),
		Method:      string(MethodChain) + ":" + st.StepName,
	}
}

func insightTitle(t insights.Type, c map[string]any) string {
	switch t {
	case insights.TypeFramework:
		return "Framework: " + orDefault(stringField(c, "name"), "Framework")
	case insights.TypeMethodology:
		return "Implementation Methodology"
	case insights.TypeConcept:
		if domain := stringField(c, "research_domain"); domain != "" {
			return "Key Concepts in " + domain
		}
		return "Contributions and Innovations"
	case insights.TypeDataPoint:
		return fmt.Sprintf("Experimental Results (%d metrics)", len(listField(c, "metrics")))
	case insights.TypeApplication:
		return "Application: " + orDefault(stringField(c, "problem_domain"), "Application")
	case insights.TypeLimitation:
		return "Limitations"
	case insights.TypeFutureWork:
		return "Future Directions"
	case insights.TypeKeyFinding:
		if main := stringField(c, "main_contribution"); main != "" {
			return textprep.Truncate(main, 120)
		}
		return "Key Finding"
	}
	return strings.ReplaceAll(string(t), "_", " ")
}

func insightDescription(t insights.Type, c map[string]any) string {
	switch t {
	case insights.TypeFramework:
		return stringField(c, "core_concept")
	case insights.TypeMethodology:
		if detail := stringField(c, "method_detail"); detail != "" {
			return detail
		}
		return fmt.Sprintf("Methodology with %d steps", len(listField(c, "steps")))
	case insights.TypeConcept:
		if sig := stringField(c, "significance"); sig != "" {
			return sig
		}
		return fmt.Sprintf("Analysis covering %d key concepts", len(listField(c, "key_concepts")))
	case insights.TypeDataPoint:
		return "Quantitative results and performance metrics"
	case insights.TypeApplication:
		return fmt.Sprintf("%d applications identified", len(listField(c, "applications")))
	case insights.TypeKeyFinding:
		return stringField(c, "significance")
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
