package tags

import (
	"context"
	"fmt"
	"strings"
)

// Service serves read access to the tag vocabulary.
type Service struct {
	Repo Repo
}

// List returns all tags, or one category's tags when category is set.
func (s *Service) List(ctx context.Context, category string) ([]Tag, error) {
	cat := Category(strings.TrimSpace(strings.ToLower(category)))
	if cat != "" && !cat.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	return s.Repo.ListByCategory(ctx, cat)
}

func (s *Service) ListByDocument(ctx context.Context, documentID string) ([]Link, error) {
	return s.Repo.ListByDocument(ctx, documentID)
}

func (s *Service) ListByInsight(ctx context.Context, insightID string) ([]Link, error) {
	return s.Repo.ListByInsight(ctx, insightID)
}
