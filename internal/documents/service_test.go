package documents

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBeginAnalysisTransitions(t *testing.T) {
	ctx := context.Background()
	svc := &Service{Repo: NewMemoryRepo()}

	doc, err := svc.Create(ctx, NewDocument{Title: "Paper"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	claimed, err := svc.BeginAnalysis(ctx, doc.ID, false)
	if err != nil {
		t.Fatalf("BeginAnalysis: %v", err)
	}
	if claimed.AnalysisStatus != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", claimed.AnalysisStatus)
	}

	if _, err := svc.BeginAnalysis(ctx, doc.ID, true); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected ErrInProgress, got %v", err)
	}

	if err := svc.Repo.UpdateStatus(ctx, doc.ID, StatusCompleted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := svc.BeginAnalysis(ctx, doc.ID, false); !errors.Is(err, ErrAlreadyAnalyzed) {
		t.Fatalf("expected ErrAlreadyAnalyzed, got %v", err)
	}
	if _, err := svc.BeginAnalysis(ctx, doc.ID, true); err != nil {
		t.Fatalf("expected explicit re-analysis to succeed: %v", err)
	}

	if _, err := svc.BeginAnalysis(ctx, "missing", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectReturnsToPending(t *testing.T) {
	ctx := context.Background()
	svc := &Service{Repo: NewMemoryRepo()}
	doc, _ := svc.Create(ctx, NewDocument{Title: "Paper"})
	_ = svc.Repo.UpdateStatus(ctx, doc.ID, StatusFailed)

	got, err := svc.Reject(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if got.AnalysisStatus != StatusPending {
		t.Fatalf("expected pending, got %s", got.AnalysisStatus)
	}
	if _, err := svc.Reject(ctx, doc.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected pending document rejection to fail, got %v", err)
	}
}

func TestMemoryStats(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := &Service{Repo: repo}

	a, _ := svc.Create(ctx, NewDocument{Title: "A"})
	b, _ := svc.Create(ctx, NewDocument{Title: "B"})
	_ = repo.UpdateClassification(ctx, a.ID, Classification{Type: "conceptual_framework", EvidenceStrength: "experimental", PracticalApplicability: "high", Confidence: 0.8, ClassifiedAt: time.Now()})
	_ = repo.UpdateStatus(ctx, a.ID, StatusCompleted)
	_ = repo.UpdateClassification(ctx, b.ID, Classification{Type: "survey_review", Confidence: 0.5, ClassifiedAt: time.Now()})
	_ = repo.UpdateStatus(ctx, b.ID, StatusManualReview)

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 || stats.ByStatus[StatusCompleted] != 1 || stats.ByStatus[StatusManualReview] != 1 {
		t.Fatalf("unexpected status counts: %+v", stats)
	}
	if stats.ConfidenceBuckets["high"] != 1 || stats.ConfidenceBuckets["medium"] != 1 {
		t.Fatalf("unexpected buckets: %+v", stats.ConfidenceBuckets)
	}
	if diff := stats.AverageConfidence - 0.65; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected average 0.65, got %v", stats.AverageConfidence)
	}
}
