package documents

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"research-backend/internal/shared/server/middleware"
	"research-backend/internal/shared/server/respond"
)

const maxUploadSize = 25 << 20 // 25MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.create)
	rg.POST("/documents/upload", h.upload)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.POST("/documents/:id/approve", h.approve)
	rg.POST("/documents/:id/reject", h.reject)
	rg.GET("/stats", h.stats)
}

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	DocumentID             string     `json:"documentId"`
	Title                  string     `json:"title"`
	Abstract               string     `json:"abstract"`
	Categories             []string   `json:"categories"`
	HasFullText            bool       `json:"hasFullText"`
	SourceKey              string     `json:"sourceKey,omitempty"`
	Type                   string     `json:"type,omitempty"`
	EvidenceStrength       string     `json:"evidenceStrength,omitempty"`
	PracticalApplicability string     `json:"practicalApplicability,omitempty"`
	NoveltyScore           *float64   `json:"noveltyScore,omitempty"`
	AnalysisStatus         Status     `json:"analysisStatus"`
	AnalysisConfidence     float64    `json:"analysisConfidence"`
	ClassifiedAt           *time.Time `json:"classifiedAt,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
}

// ToResponse converts a document for API output.
func ToResponse(doc Document) DocumentResponse {
	categories := doc.Categories
	if categories == nil {
		categories = []string{}
	}
	return DocumentResponse{
		DocumentID:             doc.ID,
		Title:                  doc.Title,
		Abstract:               doc.Abstract,
		Categories:             categories,
		HasFullText:            strings.TrimSpace(doc.FullText) != "",
		SourceKey:              doc.SourceKey,
		Type:                   doc.Type,
		EvidenceStrength:       doc.EvidenceStrength,
		PracticalApplicability: doc.PracticalApplicability,
		NoveltyScore:           doc.NoveltyScore,
		AnalysisStatus:         doc.AnalysisStatus,
		AnalysisConfidence:     doc.AnalysisConfidence,
		ClassifiedAt:           doc.ClassifiedAt,
		CreatedAt:              doc.CreatedAt,
	}
}

type createRequest struct {
	Title      string   `json:"title"`
	Abstract   string   `json:"abstract"`
	Categories []string `json:"categories"`
	FullText   string   `json:"fullText"`
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	doc, err := h.Svc.Create(c.Request.Context(), NewDocument{
		Title:      req.Title,
		Abstract:   req.Abstract,
		Categories: req.Categories,
		FullText:   req.FullText,
	})
	if err != nil {
		h.writeError(c, err, "failed to create document")
		return
	}
	c.Set(middleware.DocumentIDKey, doc.ID)
	respond.JSON(c, http.StatusCreated, ToResponse(doc))
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	in := NewDocument{
		Title:      c.PostForm("title"),
		Abstract:   c.PostForm("abstract"),
		Categories: strings.Split(c.PostForm("categories"), ","),
	}
	doc, err := h.Svc.Upload(c.Request.Context(), in, fileHeader.Filename, file)
	if err != nil {
		h.writeError(c, err, "failed to upload document")
		return
	}
	c.Set(middleware.DocumentIDKey, doc.ID)
	respond.JSON(c, http.StatusCreated, ToResponse(doc))
}

func (h *Handler) get(c *gin.Context) {
	doc, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to fetch document")
		return
	}
	respond.OK(c, ToResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	docs, err := h.Svc.List(c.Request.Context(), Filter{
		Status: Status(strings.TrimSpace(c.Query("status"))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeError(c, err, "failed to list documents")
		return
	}

	items := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		items = append(items, ToResponse(doc))
	}
	respond.OK(c, respond.Page{Items: items, Limit: limit, Offset: offset})
}

func (h *Handler) approve(c *gin.Context) {
	doc, err := h.Svc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to approve document")
		return
	}
	c.Set(middleware.StatusTransitionKey, "manual_review->completed")
	respond.OK(c, ToResponse(doc))
}

func (h *Handler) reject(c *gin.Context) {
	doc, err := h.Svc.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to reject document")
		return
	}
	c.Set(middleware.StatusTransitionKey, "->pending")
	respond.OK(c, ToResponse(doc))
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.Svc.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to compute stats")
		return
	}
	respond.OK(c, stats)
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		respond.Error(c, http.StatusConflict, "invalid_transition", "document is not in a reviewable status", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
