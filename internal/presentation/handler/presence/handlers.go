package presence

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/json"
)

type StatusReader interface {
	Status(ctx context.Context, userID string) (domain.PresenceStatus, error)
}

type Handler struct {
	presence StatusReader
}

func NewHandler(presence StatusReader) *Handler {
	return &Handler{presence: presence}
}

type presenceResponse struct {
	UserID string                `json:"userId"`
	Status domain.PresenceStatus `json:"status"`
}

// GetPresenceHandler godoc
// @Summary      Last known presence of a user
// @Tags         presence
// @Produce      json
// @Success      200 {object} presenceResponse
// @Router       /users/{userId}/presence [get]
func (h *Handler) GetPresenceHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	status, err := h.presence.Status(r.Context(), userID)
	if err != nil {
		json.WriteDomainError(w, err)
		return
	}

	json.Write(w, http.StatusOK, presenceResponse{UserID: userID, Status: status})
}
