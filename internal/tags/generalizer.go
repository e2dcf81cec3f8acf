package tags

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"research-backend/internal/llm"
	"research-backend/internal/shared/telemetry"
)

const defaultGeneralizeTimeout = 15 * time.Second

//go:embed prompts/generalize.txt
var generalizePrompt string

// Generalization is the name chosen for a new tag.
type Generalization struct {
	Name string
	// FromModel is false when the deterministic heuristic produced Name.
	FromModel bool
}

// Generalizer proposes reusable tag names for overly specific terms.
type Generalizer struct {
	Reasoner llm.Reasoner
	Timeout  time.Duration
}

// NewGeneralizer constructs a Generalizer.
func NewGeneralizer(r llm.Reasoner, timeout time.Duration) *Generalizer {
	return &Generalizer{Reasoner: r, Timeout: timeout}
}

// Generalize asks the reasoning service for a tag name and validates it.
// Service errors and invalid suggestions fall back to Heuristic; only a term
// with nothing usable in it returns ErrInvalidName.
func (g *Generalizer) Generalize(ctx context.Context, term string, category Category, near []Match) (Generalization, error) {
	if g.Reasoner != nil {
		name, err := g.suggest(ctx, term, category, near)
		if err == nil {
			return Generalization{Name: name, FromModel: true}, nil
		}
		telemetry.Warn("tags.generalize.fallback", map[string]any{
			"term":     term,
			"category": category,
			"error":    err,
		})
	}
	name := Heuristic(term)
	if name == "" {
		name = Normalize(term)
	}
	if name == "" {
		return Generalization{}, fmt.Errorf("%w: %q", ErrInvalidName, term)
	}
	return Generalization{Name: name}, nil
}

func (g *Generalizer) suggest(ctx context.Context, term string, category Category, near []Match) (string, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = defaultGeneralizeTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := g.Reasoner.Reason(callCtx, llm.Request{
		Prompt: buildGeneralizePrompt(term, category, near),
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"suggested_tag": map[string]any{"type": "string"},
			},
			"required": []string{"suggested_tag"},
		},
	})
	if err != nil {
		return "", err
	}
	raw, _ := resp.Content["suggested_tag"].(string)
	name := strings.Join(strings.Fields(strings.ToLower(raw)), "-")
	if name == "" {
		return "", fmt.Errorf("%w: empty suggestion", ErrInvalidName)
	}
	if !ValidName(name) {
		return "", fmt.Errorf("%w: suggestion %q", ErrInvalidName, raw)
	}
	return name, nil
}

func buildGeneralizePrompt(term string, category Category, near []Match) string {
	var b strings.Builder
	b.WriteString(generalizePrompt)
	fmt.Fprintf(&b, "\nInput term: %q\nCategory: %s\n", term, category)
	if len(near) > 0 {
		names := make([]string, 0, len(near))
		for _, m := range near {
			names = append(names, m.Tag.Name)
		}
		fmt.Fprintf(&b, "Similar existing tags: %s\n", strings.Join(names, ", "))
	} else {
		b.WriteString("Similar existing tags: none\n")
	}
	return b.String()
}
