package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"research-backend/internal/shared/storage/object"
	"research-backend/internal/shared/telemetry"
	"research-backend/internal/shared/util"
)

// NewDocument is the input accepted at ingestion.
type NewDocument struct {
	Title      string
	Abstract   string
	Categories []string
	FullText   string
}

// Service contains business logic for documents.
type Service struct {
	Store object.ObjectStore
	Repo  Repo
}

// Create records a document whose text is supplied inline.
func (s *Service) Create(ctx context.Context, in NewDocument) (Document, error) {
	doc, err := newDocument(in)
	if err != nil {
		return Document{}, err
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	telemetry.Info("documents.created", map[string]any{"document_id": doc.ID, "has_full_text": doc.FullText != ""})
	return doc, nil
}

// Upload saves the source file to object storage and records the document.
// Full text is extracted lazily at analysis time.
func (s *Service) Upload(ctx context.Context, in NewDocument, fileName string, r io.Reader) (Document, error) {
	if s.Store == nil {
		return Document{}, fmt.Errorf("object store not configured")
	}
	doc, err := newDocument(in)
	if err != nil {
		return Document{}, err
	}
	key, err := object.DocumentKey(doc.ID, fileName)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	mimeType := mimeFromName(fileName)
	if _, err := s.Store.Put(ctx, key, mimeType, r); err != nil {
		return Document{}, fmt.Errorf("store source file: %w", err)
	}
	doc.SourceKey = key
	doc.MimeType = mimeType

	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	telemetry.Info("documents.uploaded", map[string]any{"document_id": doc.ID, "source_key": key, "mime_type": mimeType})
	return doc, nil
}

// Get returns a document by ID.
func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, id)
}

// List returns documents matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]Document, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	return s.Repo.List(ctx, f)
}

// Stats returns corpus-wide classification statistics.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.Repo.Stats(ctx)
}

// BeginAnalysis claims a document for analysis by moving it to in_progress.
// A completed document is only re-analyzed when reanalyze is set.
func (s *Service) BeginAnalysis(ctx context.Context, id string, reanalyze bool) (Document, error) {
	from := []Status{StatusPending, StatusFailed, StatusManualReview}
	if reanalyze {
		from = append(from, StatusCompleted)
	}
	doc, err := s.Repo.Transition(ctx, id, from, StatusInProgress)
	if err == nil {
		return doc, nil
	}
	if errors.Is(err, ErrInvalidTransition) {
		switch doc.AnalysisStatus {
		case StatusInProgress:
			return doc, ErrInProgress
		case StatusCompleted:
			return doc, ErrAlreadyAnalyzed
		}
	}
	return doc, err
}

// Approve confirms a document held for manual review.
func (s *Service) Approve(ctx context.Context, id string) (Document, error) {
	return s.review(ctx, id, []Status{StatusManualReview}, StatusCompleted)
}

// Reject sends a reviewed document back to pending so it is analyzed again.
func (s *Service) Reject(ctx context.Context, id string) (Document, error) {
	return s.review(ctx, id, []Status{StatusManualReview, StatusCompleted, StatusFailed}, StatusPending)
}

func (s *Service) review(ctx context.Context, id string, from []Status, to Status) (Document, error) {
	doc, err := s.Repo.Transition(ctx, id, from, to)
	if err != nil {
		return doc, err
	}
	telemetry.Info("documents.reviewed", map[string]any{"document_id": id, "status": string(to)})
	return doc, nil
}

func newDocument(in NewDocument) (Document, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Document{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	categories := make([]string, 0, len(in.Categories))
	for _, c := range in.Categories {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}
	abstract := strings.TrimSpace(in.Abstract)
	now := time.Now().UTC()
	return Document{
		ID:             uuid.NewString(),
		Title:          title,
		Abstract:       abstract,
		Categories:     categories,
		FullText:       in.FullText,
		ContentHash:    util.ContentHash(title + "\n" + abstract),
		AnalysisStatus: StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func mimeFromName(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
