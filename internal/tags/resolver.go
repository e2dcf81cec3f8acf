package tags

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"research-backend/internal/insights"
	"research-backend/internal/shared/metrics"
	"research-backend/internal/shared/telemetry"
)

// Resolver turns candidate terms into tags, reusing the vocabulary where it
// can. Check-then-create for one (name, category) runs at most once at a
// time per process; the storage unique constraint covers other processes.
type Resolver struct {
	Repo        Repo
	Matcher     *Matcher
	Generalizer *Generalizer
	Now         func() time.Time

	group singleflight.Group
}

// NewResolver constructs a Resolver. matcher and generalizer may be nil, in
// which case terms are only normalized.
func NewResolver(repo Repo, matcher *Matcher, generalizer *Generalizer) *Resolver {
	return &Resolver{Repo: repo, Matcher: matcher, Generalizer: generalizer, Now: time.Now}
}

// Resolve maps one term onto a tag in category.
func (r *Resolver) Resolve(ctx context.Context, term string, category Category) (Resolution, error) {
	if !category.Valid() {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	name := Normalize(term)
	if name == "" {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidName, term)
	}

	if t, err := r.Repo.GetByName(ctx, name, category); err == nil {
		return r.done(Resolution{Term: term, Tag: t, Action: ActionExact, Similarity: 1}), nil
	} else if !errors.Is(err, ErrNotFound) {
		return Resolution{}, err
	}

	var near []Match
	if r.Matcher != nil {
		matches, err := r.Matcher.Match(ctx, name, category)
		if err != nil {
			// Similarity is an early short-circuit only.
			telemetry.Warn("tags.match.failed", map[string]any{"term": name, "category": category, "error": err})
		}
		if len(matches) > 0 {
			best := matches[0]
			switch Classify(best.Similarity) {
			case BandReuse:
				return r.done(Resolution{Term: term, Tag: best.Tag, Action: ActionReuse, Similarity: best.Similarity}), nil
			case BandReview:
				near = matches
			}
		}
	}

	action := ActionCreate
	if r.Generalizer != nil {
		g, err := r.Generalizer.Generalize(ctx, term, category, near)
		if err != nil {
			return Resolution{}, err
		}
		if g.Name != name {
			action = ActionGeneralize
			name = g.Name
		}
	}

	t, created, err := r.getOrCreate(ctx, name, category)
	if err != nil {
		return Resolution{}, err
	}
	if !created && action == ActionCreate {
		action = ActionExact
	}
	return r.done(Resolution{Term: term, Tag: t, Action: action, Created: created}), nil
}

type createResult struct {
	tag     Tag
	created bool
}

func (r *Resolver) getOrCreate(ctx context.Context, name string, category Category) (Tag, bool, error) {
	key := string(category) + "|" + name
	// The call is shared by every caller waiting on key.
	shared := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (any, error) {
		t, created, err := r.Repo.GetOrCreate(shared, Tag{
			ID:        uuid.NewString(),
			Name:      name,
			Category:  category,
			CreatedAt: r.now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		if created && r.Matcher != nil {
			if err := r.Matcher.Remember(shared, t); err != nil {
				telemetry.Warn("tags.index.remember_failed", map[string]any{"tag_id": t.ID, "error": err})
			}
		}
		return createResult{tag: t, created: created}, nil
	})
	if err != nil {
		return Tag{}, false, fmt.Errorf("get or create tag %s: %w", key, err)
	}
	res := v.(createResult)
	return res.tag, res.created, nil
}

func (r *Resolver) done(res Resolution) Resolution {
	metrics.IncTagResolution(string(res.Action))
	return res
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ResolveInsights resolves the terms of a document's insights and links the
// resulting tags to the insights and the document. Edge confidence is the
// insight confidence, scaled by similarity for similarity reuse. Failures
// on single terms are logged and skipped; the returned tags are unique.
func (r *Resolver) ResolveInsights(ctx context.Context, documentID string, items []insights.Insight) ([]Link, error) {
	terms := ExtractTerms(items)
	byTag := map[string]int{}
	var out []Link
	var failed int
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := r.Resolve(ctx, term.Text, term.Category)
		if err != nil {
			failed++
			metrics.IncTagResolution("error")
			telemetry.Warn("tags.resolve.failed", map[string]any{
				"document_id": documentID,
				"insight_id":  term.InsightID,
				"term":        term.Text,
				"category":    term.Category,
				"error":       err,
			})
			continue
		}
		conf := term.Confidence
		if res.Action == ActionReuse {
			conf *= res.Similarity
		}
		if err := r.Repo.LinkInsight(ctx, term.InsightID, res.Tag.ID, conf, SourceAutomatic); err != nil {
			return out, fmt.Errorf("link insight %s: %w", term.InsightID, err)
		}
		if err := r.Repo.LinkDocument(ctx, documentID, res.Tag.ID, conf, SourceAutomatic); err != nil {
			return out, fmt.Errorf("link document %s: %w", documentID, err)
		}
		if i, ok := byTag[res.Tag.ID]; ok {
			if conf > out[i].Confidence {
				out[i].Confidence = conf
			}
			continue
		}
		byTag[res.Tag.ID] = len(out)
		out = append(out, Link{Tag: res.Tag, Confidence: conf, Source: SourceAutomatic})
	}
	telemetry.Info("tags.resolve", map[string]any{
		"document_id": documentID,
		"terms":       len(terms),
		"tags":        len(out),
		"failed":      failed,
	})
	return out, nil
}
