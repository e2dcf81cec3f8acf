package analysis

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"research-backend/internal/classify"
	"research-backend/internal/documents"
	"research-backend/internal/extract"
	"research-backend/internal/extraction"
	"research-backend/internal/insights"
	"research-backend/internal/queue"
	"research-backend/internal/shared/metrics"
	"research-backend/internal/shared/storage/object"
	"research-backend/internal/shared/telemetry"
	"research-backend/internal/tags"
	"research-backend/internal/textprep"
)

const (
	defaultConcurrency = 4
	pendingPageSize    = 100
)

// Options tune one analysis run.
type Options struct {
	Reanalyze bool
}

// Result is what one analysis produced. Fields are filled up to the point
// where the run stopped, so a failed run still carries its classification.
type Result struct {
	Document       documents.Document
	Classification classify.Decision
	Insights       []insights.Insight
	Tags           []tags.Link
	Session        *extraction.Session
	FailureCode    string
}

// BatchSummary reports an AnalyzePending run.
type BatchSummary struct {
	Total    int                      `json:"total"`
	ByStatus map[documents.Status]int `json:"byStatus"`
	Errors   map[string]string        `json:"errors,omitempty"`
}

// Service runs classification, extraction and tagging for documents.
type Service struct {
	Documents *documents.Service
	Store     object.ObjectStore
	Scorer    *classify.Scorer
	Router    *classify.Router
	Extractor *extraction.Orchestrator
	Insights  *insights.Service
	Tags      *tags.Resolver
	Queue     queue.Client

	// Concurrency bounds AnalyzePending.
	Concurrency int
	Now         func() time.Time
}

// Analyze classifies a document, extracts insights when routing allows it
// and resolves tags for them. It blocks until the document reaches a
// terminal status. A completed document is only analyzed again when
// opts.Reanalyze is set.
func (s *Service) Analyze(ctx context.Context, documentID string, opts Options) (Result, error) {
	if strings.TrimSpace(documentID) == "" {
		return Result{}, fmt.Errorf("%w: document id is required", documents.ErrInvalidInput)
	}
	started := s.now()
	doc, err := s.Documents.BeginAnalysis(ctx, documentID, opts.Reanalyze)
	if err != nil {
		return Result{Document: doc}, err
	}
	metrics.IncAnalysisStatus(string(documents.StatusInProgress))
	telemetry.Info("analysis.status", map[string]any{
		"document_id":       doc.ID,
		"request_id":        RequestIDFromContext(ctx),
		"status_transition": "->" + string(documents.StatusInProgress),
		"reanalyze":         opts.Reanalyze,
	})

	res := Result{Document: doc}
	status, runErr := s.run(ctx, &res)
	s.finish(ctx, &res, status, runErr, started)
	return res, runErr
}

func (s *Service) run(ctx context.Context, res *Result) (documents.Status, error) {
	doc := res.Document
	if doc.FullText == "" && doc.SourceKey != "" {
		text, err := s.loadText(ctx, doc)
		if err != nil {
			telemetry.Warn("analysis.full_text.unavailable", map[string]any{
				"document_id": doc.ID,
				"source_key":  doc.SourceKey,
				"error":       sanitizeError(err),
			})
		} else {
			doc.FullText = text
		}
	}

	view := textprep.Prepare(textprep.Source{
		Title:      doc.Title,
		Abstract:   doc.Abstract,
		Categories: doc.Categories,
		FullText:   doc.FullText,
	})
	scored, err := s.Scorer.Score(view)
	if err != nil {
		return documents.StatusFailed, fmt.Errorf("classify document: %w", err)
	}
	decision := classify.Decide(scored)
	res.Classification = decision
	if err := s.Router.Record(ctx, doc.ID, decision); err != nil {
		return documents.StatusFailed, err
	}
	applyClassification(&res.Document, decision)
	if decision.NextAction == classify.ActionHalt {
		return decision.Status, nil
	}

	report, err := s.Extractor.Run(ctx, extraction.Input{
		DocumentID:   doc.ID,
		DocumentType: decision.Type,
		Title:        doc.Title,
		Abstract:     doc.Abstract,
		Categories:   doc.Categories,
		FullText:     doc.FullText,
	})
	if report.Session.ID != "" {
		sess := report.Session
		res.Session = &sess
	}
	switch {
	case errors.Is(err, extraction.ErrCancelled):
		return documents.StatusManualReview, err
	case report.Outcome == nil:
		if err == nil {
			err = errors.New("extraction produced no outcome")
		}
		return documents.StatusFailed, err
	case err != nil:
		telemetry.Warn("analysis.session.persist_failed", map[string]any{
			"document_id": doc.ID,
			"session_id":  report.Session.ID,
			"error":       sanitizeError(err),
		})
	}

	// The outcome is kept even if the caller has gone away.
	persist := context.WithoutCancel(ctx)
	outcome := report.Outcome
	items, err := s.Insights.Persist(persist, doc.ID, report.Session.ID, outcome.Drafts())
	if err != nil {
		return documents.StatusFailed, err
	}
	res.Insights = items

	if n := outcome.NoveltyScore(); n != nil {
		if err := s.Documents.Repo.UpdateNovelty(persist, doc.ID, *n); err != nil {
			telemetry.Warn("analysis.novelty.persist_failed", map[string]any{"document_id": doc.ID, "error": sanitizeError(err)})
		} else {
			score := *n
			res.Document.NoveltyScore = &score
		}
	}

	if s.Tags != nil && len(items) > 0 {
		links, err := s.Tags.ResolveInsights(ctx, doc.ID, items)
		res.Tags = links
		if err != nil {
			telemetry.Warn("analysis.tags.incomplete", map[string]any{
				"document_id": doc.ID,
				"resolved":    len(links),
				"error":       sanitizeError(err),
			})
		}
	}
	return decision.Status, nil
}

func (s *Service) finish(ctx context.Context, res *Result, status documents.Status, runErr error, started time.Time) {
	persist := context.WithoutCancel(ctx)
	fields := map[string]any{
		"document_id":       res.Document.ID,
		"request_id":        RequestIDFromContext(ctx),
		"status_transition": string(documents.StatusInProgress) + "->" + string(status),
		"confidence":        res.Classification.Confidence,
		"insights":          len(res.Insights),
		"tags":              len(res.Tags),
		"duration_ms":       durationMs(started, s.now()),
	}
	if res.Session != nil {
		fields["session_id"] = res.Session.ID
		fields["method"] = res.Session.MethodUsed
	}
	if runErr != nil {
		code, retryable := ClassifyFailure(runErr)
		res.FailureCode = code
		fields["error_code"] = code
		fields["retryable"] = retryable
		fields["error"] = sanitizeError(runErr)
	} else if res.Classification.NextAction == classify.ActionHalt {
		fields["reason"] = "low_confidence"
	}

	if err := s.Router.Settle(persist, res.Document.ID, status); err != nil {
		fields["persist_error"] = sanitizeError(err)
		telemetry.Error("analysis.status.persist_failed", fields)
		return
	}
	res.Document.AnalysisStatus = status
	metrics.IncAnalysisStatus(string(status))
	metrics.ObserveAnalysisDuration(s.now().Sub(started))
	if status == documents.StatusFailed {
		telemetry.Error("analysis.status", fields)
		return
	}
	telemetry.Info("analysis.status", fields)
}

// AnalyzePending analyzes pending documents with bounded concurrency. A
// limit of zero or less means every pending document. Per-document errors
// are collected in the summary; only a listing failure aborts the batch.
func (s *Service) AnalyzePending(ctx context.Context, limit int) (BatchSummary, error) {
	summary := BatchSummary{ByStatus: map[documents.Status]int{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())

	seen := map[string]bool{}
	offset := 0
	for limit <= 0 || len(seen) < limit {
		page, err := s.Documents.List(ctx, documents.Filter{Status: documents.StatusPending, Limit: pendingPageSize, Offset: offset})
		if err != nil {
			_ = g.Wait()
			return summary, fmt.Errorf("list pending documents: %w", err)
		}
		fresh := 0
		for _, doc := range page {
			if seen[doc.ID] || (limit > 0 && len(seen) >= limit) {
				continue
			}
			seen[doc.ID] = true
			fresh++
			id := doc.ID
			g.Go(func() error {
				res, err := s.Analyze(gctx, id, Options{})
				mu.Lock()
				defer mu.Unlock()
				summary.Total++
				if res.Document.AnalysisStatus != "" {
					summary.ByStatus[res.Document.AnalysisStatus]++
				}
				if err != nil {
					if summary.Errors == nil {
						summary.Errors = map[string]string{}
					}
					summary.Errors[id] = sanitizeError(err)
				}
				return nil
			})
		}
		if len(page) < pendingPageSize {
			break
		}
		if fresh == 0 {
			// Documents ahead of us are still pending; look further down.
			offset += len(page)
		}
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	telemetry.Info("analysis.batch", map[string]any{
		"total":     summary.Total,
		"by_status": summary.ByStatus,
		"errors":    len(summary.Errors),
	})
	return summary, ctx.Err()
}

// Enqueue schedules an analysis on the job queue after checking that the
// document exists.
func (s *Service) Enqueue(ctx context.Context, documentID string, opts Options) (queue.Message, error) {
	if s.Queue == nil {
		return queue.Message{}, ErrJobQueueNotConfigured
	}
	doc, err := s.Documents.Get(ctx, documentID)
	if err != nil {
		return queue.Message{}, err
	}
	if doc.AnalysisStatus == documents.StatusCompleted && !opts.Reanalyze {
		return queue.Message{}, documents.ErrAlreadyAnalyzed
	}
	msg := queue.NewMessage(doc.ID, RequestIDFromContext(ctx), opts.Reanalyze, s.now())
	if err := s.Queue.Send(ctx, msg); err != nil {
		return queue.Message{}, fmt.Errorf("enqueue analysis: %w", err)
	}
	telemetry.Info("analysis.enqueued", map[string]any{
		"document_id": doc.ID,
		"request_id":  msg.RequestID,
		"reanalyze":   opts.Reanalyze,
	})
	return msg, nil
}

// ProcessMessage runs a queued analysis. Messages for documents that another
// delivery already finished or is still running are acknowledged without work.
func (s *Service) ProcessMessage(ctx context.Context, msg queue.Message) error {
	ctx = WithRequestID(ctx, msg.RequestID)
	_, err := s.Analyze(ctx, msg.DocumentID, Options{Reanalyze: msg.Reanalyze})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, documents.ErrAlreadyAnalyzed), errors.Is(err, documents.ErrInProgress):
		telemetry.Info("analysis.duplicate_delivery", map[string]any{
			"document_id": msg.DocumentID,
			"request_id":  msg.RequestID,
			"reason":      err.Error(),
		})
		return nil
	}
	return err
}

func (s *Service) loadText(ctx context.Context, doc documents.Document) (string, error) {
	if s.Store == nil {
		return "", errors.New("object store not configured")
	}
	text, err := extract.ExtractText(ctx, s.Store, doc.SourceKey, doc.MimeType, path.Base(doc.SourceKey))
	if err != nil {
		return "", err
	}
	if err := s.Documents.Repo.UpdateFullText(ctx, doc.ID, text); err != nil {
		telemetry.Warn("analysis.full_text.persist_failed", map[string]any{"document_id": doc.ID, "error": sanitizeError(err)})
	}
	return text, nil
}

func (s *Service) concurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return defaultConcurrency
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func applyClassification(doc *documents.Document, d classify.Decision) {
	doc.Type = d.Type
	doc.EvidenceStrength = d.Evidence
	doc.PracticalApplicability = d.Applicability
	doc.AnalysisConfidence = d.Confidence
}

func durationMs(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000.0
}
