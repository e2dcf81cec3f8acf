package extraction

import (
	"embed"
	"fmt"
	"strings"

	"research-backend/internal/insights"
)

//go:embed prompts/*.txt
var promptFiles embed.FS

// Chain step names.
const (
	StepContentAnalysis       = "content_analysis"
	StepResearchElements      = "research_elements"
	StepContributionSynthesis = "contribution_synthesis"
	StepPracticalImplications = "practical_implications"
	StepExecutiveSynthesis    = "executive_synthesis"
)

// finalStepWeight is the share of session confidence carried by the last step.
// It matches the type weight of the classification aggregate.
const finalStepWeight = 0.75

// StepDescriptor declares one chain step as data.
type StepDescriptor struct {
	Name        string
	Instruction string
	Fields      []Field
	Schema      map[string]any
	// Validate adds checks beyond the declared fields. Optional.
	Validate func(content map[string]any) []string
	// Project turns a validated step into insight drafts.
	Project func(st StepResult) []insights.Draft
}

// Check runs field validation plus the custom predicate.
func (d StepDescriptor) Check(content map[string]any) []string {
	errs := checkFields(content, d.Fields)
	if d.Validate != nil {
		errs = append(errs, d.Validate(content)...)
	}
	return errs
}

// DefaultChain returns the five-step extraction chain in execution order.
func DefaultChain() []StepDescriptor {
	chain := []StepDescriptor{
		{
			Name: StepContentAnalysis,
			Fields: []Field{
				{Name: "sections", Kind: KindArray, Required: true},
				{Name: "main_topics", Kind: KindArray, Required: true, MinItems: 1},
				{Name: "research_domain", Kind: KindString, Required: true},
				{Name: "methodology_signals", Kind: KindArray, Required: true},
				{Name: "framework", Kind: KindObject},
			},
			Project: projectContentAnalysis,
		},
		{
			Name: StepResearchElements,
			Fields: []Field{
				{Name: "problem_statement", Kind: KindString, Required: true},
				{Name: "hypotheses", Kind: KindArray, Required: true},
				{Name: "methods", Kind: KindArray, Required: true, MinItems: 1},
				{Name: "method_detail", Kind: KindString, Required: true},
			},
			Project: projectResearchElements,
		},
		{
			Name: StepContributionSynthesis,
			Fields: []Field{
				{Name: "key_findings", Kind: KindArray, Required: true, MinItems: 1},
				{Name: "novelty", Kind: KindString, Required: true},
				{Name: "novelty_score", Kind: KindNumber, Required: true},
				{Name: "innovations", Kind: KindArray, Required: true},
				{Name: "significance", Kind: KindString, Required: true},
				{Name: "limitations", Kind: KindArray, Required: true},
				{Name: "metrics", Kind: KindArray},
			},
			Project: projectContribution,
		},
		{
			Name: StepPracticalImplications,
			Fields: []Field{
				{Name: "applications", Kind: KindArray, Required: true, MinItems: 1},
				{Name: "target_audiences", Kind: KindArray, Required: true, MinItems: 1},
				{Name: "problem_domain", Kind: KindString, Required: true},
				{Name: "future_directions", Kind: KindArray, Required: true},
			},
			Project: projectPractical,
		},
		{
			Name:    StepExecutiveSynthesis,
			Fields:  keyFindingFields(),
			Project: projectExecutive,
		},
	}
	for i := range chain {
		chain[i].Instruction = mustPrompt(chain[i].Name)
		chain[i].Schema = schemaFor(chain[i].Fields)
	}
	return chain
}

// keyFindingFieldNames are the fields every key_finding insight carries.
var keyFindingFieldNames = []string{
	"main_contribution",
	"significance",
	"practical_impact",
	"surprising_insight",
	"problem_solved",
	"audience_hook",
	"field_advancement",
}

func keyFindingFields() []Field {
	fields := make([]Field, 0, len(keyFindingFieldNames))
	for _, name := range keyFindingFieldNames {
		fields = append(fields, Field{Name: name, Kind: KindString, Required: true})
	}
	return fields
}

// SessionConfidence weighs the final step at finalStepWeight and splits the
// remainder evenly over the earlier steps.
func SessionConfidence(steps []StepResult) float64 {
	switch len(steps) {
	case 0:
		return 0
	case 1:
		return clamp01(steps[0].Confidence)
	}
	last := len(steps) - 1
	earlier := 0.0
	for _, st := range steps[:last] {
		earlier += st.Confidence
	}
	earlier /= float64(last)
	return clamp01(finalStepWeight*steps[last].Confidence + (1-finalStepWeight)*earlier)
}

func systemPrompt() string {
	return mustPrompt("system")
}

func mustPrompt(name string) string {
	data, err := promptFiles.ReadFile("prompts/" + name + ".txt")
	if err != nil {
		panic(fmt.Sprintf("missing embedded prompt %s: %v", name, err))
	}
	return strings.TrimSpace(string(data))
}
