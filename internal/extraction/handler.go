package extraction

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"research-backend/internal/shared/server/respond"
)

// Handler exposes extraction sessions for inspection.
type Handler struct {
	Sessions SessionRepo
}

// NewHandler constructs a Handler.
func NewHandler(sessions SessionRepo) *Handler {
	return &Handler{Sessions: sessions}
}

// RegisterRoutes attaches session routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents/:id/sessions", h.listByDocument)
	rg.GET("/sessions/:sessionId", h.get)
}

// SessionResponse is the outward-facing representation of a session.
type SessionResponse struct {
	SessionID      string       `json:"sessionId"`
	DocumentID     string       `json:"documentId"`
	Status         Status       `json:"status"`
	MethodUsed     Method       `json:"methodUsed"`
	FallbackUsed   bool         `json:"fallbackUsed"`
	FallbackReason string       `json:"fallbackReason,omitempty"`
	Confidence     float64      `json:"confidence"`
	Steps          []StepResult `json:"steps,omitempty"`
	StartedAt      time.Time    `json:"startedAt"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
}

// ToResponse converts a session for API output.
func ToResponse(s Session) SessionResponse {
	return SessionResponse{
		SessionID:      s.ID,
		DocumentID:     s.DocumentID,
		Status:         s.Status,
		MethodUsed:     s.MethodUsed,
		FallbackUsed:   s.FallbackUsed,
		FallbackReason: s.FallbackReason,
		Confidence:     s.Confidence,
		Steps:          s.Steps,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
	}
}

func (h *Handler) listByDocument(c *gin.Context) {
	sessions, err := h.Sessions.ListByDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list sessions", nil)
		return
	}
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp := ToResponse(s)
		resp.Steps = nil
		out = append(out, resp)
	}
	respond.OK(c, gin.H{"items": out})
}

func (h *Handler) get(c *gin.Context) {
	s, err := h.Sessions.GetByID(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "session not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch session", nil)
		return
	}
	respond.OK(c, ToResponse(s))
}
