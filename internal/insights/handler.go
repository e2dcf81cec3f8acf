package insights

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"research-backend/internal/shared/server/respond"
)

// Handler exposes stored insights.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches insight routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents/:id/insights", h.listByDocument)
	rg.GET("/insights/:insightId", h.get)
}

// InsightResponse is the outward-facing representation of an insight.
type InsightResponse struct {
	InsightID        string         `json:"insightId"`
	DocumentID       string         `json:"documentId"`
	SessionID        string         `json:"sessionId"`
	Type             Type           `json:"type"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	Content          map[string]any `json:"content"`
	Confidence       float64        `json:"confidence"`
	ExtractionMethod string         `json:"extractionMethod"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// ToResponse converts an insight for API output.
func ToResponse(it Insight) InsightResponse {
	content := it.Content
	if content == nil {
		content = map[string]any{}
	}
	return InsightResponse{
		InsightID:        it.ID,
		DocumentID:       it.DocumentID,
		SessionID:        it.SessionID,
		Type:             it.Type,
		Title:            it.Title,
		Description:      it.Description,
		Content:          content,
		Confidence:       it.Confidence,
		ExtractionMethod: it.ExtractionMethod,
		CreatedAt:        it.CreatedAt,
	}
}

func (h *Handler) listByDocument(c *gin.Context) {
	items, err := h.Svc.ListByDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list insights", nil)
		return
	}
	out := make([]InsightResponse, 0, len(items))
	for _, it := range items {
		out = append(out, ToResponse(it))
	}
	respond.OK(c, gin.H{"items": out})
}

func (h *Handler) get(c *gin.Context) {
	it, err := h.Svc.Get(c.Request.Context(), c.Param("insightId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "insight not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch insight", nil)
		return
	}
	respond.OK(c, ToResponse(it))
}
