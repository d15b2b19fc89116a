package rooms

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/json"
	"github.com/hilthontt/chorus/internal/presentation/utils"
)

type Gateway interface {
	Authorize(ctx context.Context, identity domain.Identity, key string) (domain.Room, error)
	Subscribers(room string) int
	ServeWS(w http.ResponseWriter, r *http.Request)
}

type Handler struct {
	gateway Gateway
}

func NewHandler(gateway Gateway) *Handler {
	return &Handler{gateway: gateway}
}

// ConnectHandler upgrades to the realtime websocket. Credentials are checked
// by the gateway itself so browsers can pass them in the first frame.
func (h *Handler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	h.gateway.ServeWS(w, r)
}

// GetRoomHandler godoc
// @Summary      Inspect a room on this node
// @Description  Applies the join policy for the caller and reports how many local connections are subscribed
// @Tags         rooms
// @Produce      json
// @Param        room  path  string  true  "Room key, e.g. channel:42"
// @Success      200 {object} roomResponse
// @Failure      400,401,403,404 {object} json.ErrorResponse
// @Router       /rooms/{room} [get]
func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := utils.IdentityFromContext(r.Context())
	if !ok {
		json.WriteDomainError(w, utils.ErrNoIdentity)
		return
	}

	room, err := h.gateway.Authorize(r.Context(), identity, chi.URLParam(r, "room"))
	if err != nil {
		json.WriteDomainError(w, err)
		return
	}

	json.Write(w, http.StatusOK, roomResponse{
		Room:        room.Key(),
		Kind:        string(room.Kind),
		ID:          room.ID,
		Subscribers: h.gateway.Subscribers(room.Key()),
	})
}
