package classify

import (
	"context"
	"fmt"
	"math"
	"time"

	"research-backend/internal/documents"
)

// Routing thresholds on the aggregate confidence.
const (
	AutoApproveThreshold  = 0.70
	ManualReviewThreshold = 0.40
)

// NextAction tells the pipeline whether to continue into extraction.
type NextAction string

const (
	ActionExtract NextAction = "extract"
	ActionHalt    NextAction = "halt"
)

// Decision is the routing outcome for one classification.
type Decision struct {
	Status        documents.Status
	NextAction    NextAction
	Confidence    float64
	Type          string
	Evidence      string
	Applicability string
}

// Dimension weights of the aggregate confidence. They sum to 1.
const (
	TypeWeight          = 0.75
	EvidenceWeight      = 0.125
	ApplicabilityWeight = 0.125
)

// Aggregate is the weighted mean of the dimension confidences. A confident
// type alone reaches AutoApproveThreshold; raising any dimension never lowers
// the aggregate.
func Aggregate(r Result) float64 {
	return aggregate(r.Type.Confidence, r.Evidence.Confidence, r.Applicability.Confidence)
}

func aggregate(typeConf, evidenceConf, applicabilityConf float64) float64 {
	sum := TypeWeight*clamp01(typeConf) +
		EvidenceWeight*clamp01(evidenceConf) +
		ApplicabilityWeight*clamp01(applicabilityConf)
	return clamp01(sum)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}

// Route maps an aggregate confidence onto a status and next action.
func Route(confidence float64) (documents.Status, NextAction) {
	switch {
	case confidence >= AutoApproveThreshold:
		return documents.StatusCompleted, ActionExtract
	case confidence >= ManualReviewThreshold:
		return documents.StatusManualReview, ActionExtract
	default:
		return documents.StatusFailed, ActionHalt
	}
}

// Decide is a pure function of the scorer output.
func Decide(r Result) Decision {
	conf := Aggregate(r)
	status, next := Route(conf)
	return Decision{
		Status:        status,
		NextAction:    next,
		Confidence:    conf,
		Type:          r.Type.Category,
		Evidence:      r.Evidence.Category,
		Applicability: r.Applicability.Category,
	}
}

// Router writes routing decisions back onto documents.
type Router struct {
	Repo documents.Repo
	Now  func() time.Time
}

// NewRouter returns a Router over repo.
func NewRouter(repo documents.Repo) *Router {
	return &Router{Repo: repo, Now: time.Now}
}

// Classification converts a decision into the stored classification fields.
func (r *Router) Classification(d Decision) documents.Classification {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return documents.Classification{
		Type:                   d.Type,
		EvidenceStrength:       d.Evidence,
		PracticalApplicability: d.Applicability,
		Confidence:             d.Confidence,
		ClassifiedAt:           now().UTC(),
	}
}

// Record stores the classification fields without touching status.
func (r *Router) Record(ctx context.Context, id string, d Decision) error {
	if err := r.Repo.UpdateClassification(ctx, id, r.Classification(d)); err != nil {
		return fmt.Errorf("record classification: %w", err)
	}
	return nil
}

// Settle writes the terminal status of an analysis. Record and Settle are the
// only writes a classification run makes to a document. Settling the same
// status twice leaves the document unchanged.
func (r *Router) Settle(ctx context.Context, id string, status documents.Status) error {
	if err := r.Repo.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("settle status: %w", err)
	}
	return nil
}
