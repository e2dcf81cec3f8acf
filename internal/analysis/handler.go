package analysis

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"research-backend/internal/classify"
	"research-backend/internal/documents"
	"research-backend/internal/extraction"
	"research-backend/internal/insights"
	"research-backend/internal/shared/server/middleware"
	"research-backend/internal/shared/server/respond"
	"research-backend/internal/tags"
)

// Handler wires HTTP handlers to the analysis service.
type Handler struct {
	Svc      *Service
	Sessions extraction.SessionRepo
	poll     *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, sessions extraction.SessionRepo) *Handler {
	return &Handler{Svc: svc, Sessions: sessions, poll: newPollLimiter(pollLimitWindow, nil)}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/analyze", h.analyze)
	rg.GET("/documents/:id/analysis", h.status)
	rg.POST("/analyze/pending", h.analyzePending)
}

type analyzeRequest struct {
	Reanalyze bool `json:"reanalyze"`
	Async     bool `json:"async"`
}

// ClassificationResponse is the routing decision of one analysis.
type ClassificationResponse struct {
	Type                   string              `json:"type"`
	EvidenceStrength       string              `json:"evidenceStrength"`
	PracticalApplicability string              `json:"practicalApplicability"`
	Confidence             float64             `json:"confidence"`
	NextAction             classify.NextAction `json:"nextAction"`
}

// AnalysisResponse is the outward-facing result of a synchronous analysis.
type AnalysisResponse struct {
	Document       documents.DocumentResponse  `json:"document"`
	Classification *ClassificationResponse     `json:"classification,omitempty"`
	Session        *extraction.SessionResponse `json:"session,omitempty"`
	Insights       []insights.InsightResponse  `json:"insights"`
	Tags           []tags.LinkResponse         `json:"tags"`
	FailureCode    string                      `json:"failureCode,omitempty"`
}

// ToResponse converts a Result for API output.
func ToResponse(res Result) AnalysisResponse {
	out := AnalysisResponse{
		Document:    documents.ToResponse(res.Document),
		Insights:    make([]insights.InsightResponse, 0, len(res.Insights)),
		Tags:        tags.ToLinkResponses(res.Tags),
		FailureCode: res.FailureCode,
	}
	if res.Classification.NextAction != "" {
		out.Classification = &ClassificationResponse{
			Type:                   res.Classification.Type,
			EvidenceStrength:       res.Classification.Evidence,
			PracticalApplicability: res.Classification.Applicability,
			Confidence:             res.Classification.Confidence,
			NextAction:             res.Classification.NextAction,
		}
	}
	if res.Session != nil {
		sess := extraction.ToResponse(*res.Session)
		out.Session = &sess
	}
	for _, it := range res.Insights {
		out.Insights = append(out.Insights, insights.ToResponse(it))
	}
	return out
}

func (h *Handler) analyze(c *gin.Context) {
	documentID := c.Param("id")
	var req analyzeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	if v, err := strconv.ParseBool(c.DefaultQuery("async", "false")); err == nil && v {
		req.Async = true
	}
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	opts := Options{Reanalyze: req.Reanalyze}

	if req.Async {
		msg, err := h.Svc.Enqueue(ctx, documentID, opts)
		if err != nil {
			writeError(c, err)
			return
		}
		respond.Accepted(c, gin.H{
			"documentId": msg.DocumentID,
			"status":     "queued",
			"requestId":  msg.RequestID,
		})
		return
	}

	res, err := h.Svc.Analyze(ctx, documentID, opts)
	// A run that reached a terminal status reports its failure in the body.
	if err != nil && res.FailureCode == "" {
		writeError(c, err)
		return
	}
	c.Set(middleware.StatusTransitionKey, "in_progress->"+string(res.Document.AnalysisStatus))
	respond.OK(c, ToResponse(res))
}

func (h *Handler) status(c *gin.Context) {
	documentID := c.Param("id")
	if !h.poll.Allow(c.ClientIP(), documentID) {
		c.Header("Retry-After", strconv.Itoa(h.poll.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "polling too frequently", nil)
		return
	}
	doc, err := h.Svc.Documents.Get(c.Request.Context(), documentID)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"document": documents.ToResponse(doc)}
	if h.Sessions != nil {
		sessions, err := h.Sessions.ListByDocument(c.Request.Context(), doc.ID)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load sessions", nil)
			return
		}
		if len(sessions) > 0 {
			latest := extraction.ToResponse(sessions[0])
			latest.Steps = nil
			resp["latestSession"] = latest
		}
	}
	respond.OK(c, resp)
}

type pendingRequest struct {
	Limit int `json:"limit"`
}

func (h *Handler) analyzePending(c *gin.Context) {
	var req pendingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	if req.Limit < 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "limit must not be negative", nil)
		return
	}
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	summary, err := h.Svc.AnalyzePending(ctx, req.Limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to analyze pending documents", nil)
		return
	}
	respond.OK(c, summary)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, documents.ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, documents.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, documents.ErrInProgress):
		respond.Error(c, http.StatusConflict, "analysis_in_progress", "document analysis is already running", nil)
	case errors.Is(err, documents.ErrAlreadyAnalyzed):
		respond.Error(c, http.StatusConflict, "already_analyzed", "document already analyzed", []map[string]string{
			{"field": "reanalyze", "issue": "set reanalyze to run again"},
		})
	case errors.Is(err, ErrJobQueueNotConfigured):
		respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "async analysis is not configured", nil)
	default:
		code, _ := ClassifyFailure(err)
		respond.Error(c, http.StatusInternalServerError, "internal_error", "analysis failed", map[string]string{"failureCode": code})
	}
}
