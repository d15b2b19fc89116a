package messages

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/chorus/internal/application/messaging"
	"github.com/hilthontt/chorus/internal/infrastructure/json"
	"github.com/hilthontt/chorus/internal/presentation/utils"
)

type Handler struct {
	service *messaging.Service
}

func NewHandler(service *messaging.Service) *Handler {
	return &Handler{service: service}
}

// CreateMessageHandler godoc
// @Summary      Send a message
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        spaceId    path  string                true  "Space ID"
// @Param        channelId  path  string                true  "Channel ID"
// @Param        request    body  createMessageRequest  true  "Message"
// @Success      201 {object} messageResponse
// @Failure      400,401,403,404 {object} json.ErrorResponse
// @Router       /spaces/{spaceId}/channels/{channelId}/messages [post]
func (h *Handler) CreateMessageHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := utils.IdentityFromContext(r.Context())
	if !ok {
		json.WriteDomainError(w, utils.ErrNoIdentity)
		return
	}

	var req createMessageRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	msg, err := h.service.Send(r.Context(), messaging.SendCommand{
		SpaceID:   chi.URLParam(r, "spaceId"),
		ChannelID: chi.URLParam(r, "channelId"),
		AuthorID:  identity.UserID,
		Content:   req.Content,
		Mentions:  req.Mentions,
	})
	if err != nil {
		json.WriteDomainError(w, err)
		return
	}

	json.Write(w, http.StatusCreated, messageResponse{
		ID:        msg.ID,
		SpaceID:   msg.SpaceID,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.AuthorID,
		Content:   msg.Content,
		Mentions:  msg.Mentions,
		CreatedAt: msg.CreatedAt,
	})
}

// DeleteMessageHandler godoc
// @Summary      Delete a message
// @Tags         messages
// @Param        spaceId    path  string  true  "Space ID"
// @Param        channelId  path  string  true  "Channel ID"
// @Param        messageId  path  string  true  "Message ID"
// @Success      204
// @Failure      401,403,404 {object} json.ErrorResponse
// @Router       /spaces/{spaceId}/channels/{channelId}/messages/{messageId} [delete]
func (h *Handler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := utils.IdentityFromContext(r.Context())
	if !ok {
		json.WriteDomainError(w, utils.ErrNoIdentity)
		return
	}

	err := h.service.Delete(r.Context(), messaging.DeleteCommand{
		SpaceID:   chi.URLParam(r, "spaceId"),
		ChannelID: chi.URLParam(r, "channelId"),
		MessageID: chi.URLParam(r, "messageId"),
		ActorID:   identity.UserID,
	})
	if err != nil {
		json.WriteDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
