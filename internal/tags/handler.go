package tags

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"research-backend/internal/shared/server/respond"
)

// Handler exposes the tag vocabulary and tag edges.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches tag routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tags", h.list)
	rg.GET("/documents/:id/tags", h.listByDocument)
	rg.GET("/insights/:insightId/tags", h.listByInsight)
}

type TagResponse struct {
	TagID       string    `json:"tagId"`
	Name        string    `json:"name"`
	Category    Category  `json:"category"`
	ParentID    *string   `json:"parentId,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type LinkResponse struct {
	TagResponse
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// ToResponse converts a tag for API output.
func ToResponse(t Tag) TagResponse {
	return TagResponse{
		TagID:       t.ID,
		Name:        t.Name,
		Category:    t.Category,
		ParentID:    t.ParentID,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
}

// ToLinkResponses converts tag edges for API output.
func ToLinkResponses(links []Link) []LinkResponse {
	out := make([]LinkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, LinkResponse{TagResponse: ToResponse(l.Tag), Confidence: l.Confidence, Source: l.Source})
	}
	return out
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.Svc.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		if errors.Is(err, ErrInvalidCategory) {
			respond.Error(c, http.StatusBadRequest, "invalid_category", "unknown tag category", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list tags", nil)
		return
	}
	out := make([]TagResponse, 0, len(items))
	for _, t := range items {
		out = append(out, ToResponse(t))
	}
	respond.OK(c, gin.H{"items": out})
}

func (h *Handler) listByDocument(c *gin.Context) {
	links, err := h.Svc.ListByDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list document tags", nil)
		return
	}
	respond.OK(c, gin.H{"items": ToLinkResponses(links)})
}

func (h *Handler) listByInsight(c *gin.Context) {
	links, err := h.Svc.ListByInsight(c.Request.Context(), c.Param("insightId"))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list insight tags", nil)
		return
	}
	respond.OK(c, gin.H{"items": ToLinkResponses(links)})
}
