package members

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/chorus/internal/application/membership"
	"github.com/hilthontt/chorus/internal/infrastructure/json"
	"github.com/hilthontt/chorus/internal/presentation/utils"
)

type Handler struct {
	service *membership.Service
}

func NewHandler(service *membership.Service) *Handler {
	return &Handler{service: service}
}

type memberResponse struct {
	SpaceID  string    `json:"spaceId"`
	UserID   string    `json:"userId"`
	RoleIDs  []string  `json:"roleIds"`
	JoinedAt time.Time `json:"joinedAt"`
}

// AssignRoleHandler godoc
// @Summary      Grant a role to a member
// @Tags         members
// @Produce      json
// @Success      200 {object} memberResponse
// @Failure      401,403,404 {object} json.ErrorResponse
// @Router       /spaces/{spaceId}/members/{userId}/roles/{roleId} [put]
func (h *Handler) AssignRoleHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := utils.IdentityFromContext(r.Context())
	if !ok {
		json.WriteDomainError(w, utils.ErrNoIdentity)
		return
	}

	member, err := h.service.AssignRole(r.Context(),
		identity.UserID,
		chi.URLParam(r, "spaceId"),
		chi.URLParam(r, "userId"),
		chi.URLParam(r, "roleId"),
	)
	if err != nil {
		json.WriteDomainError(w, err)
		return
	}

	json.Write(w, http.StatusOK, memberResponse{
		SpaceID:  member.SpaceID,
		UserID:   member.UserID,
		RoleIDs:  member.RoleIDs,
		JoinedAt: member.JoinedAt,
	})
}

// RemoveMemberHandler godoc
// @Summary      Remove a member from a space
// @Tags         members
// @Success      204
// @Failure      401,403,404 {object} json.ErrorResponse
// @Router       /spaces/{spaceId}/members/{userId} [delete]
func (h *Handler) RemoveMemberHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := utils.IdentityFromContext(r.Context())
	if !ok {
		json.WriteDomainError(w, utils.ErrNoIdentity)
		return
	}

	err := h.service.RemoveMember(r.Context(), identity.UserID, chi.URLParam(r, "spaceId"), chi.URLParam(r, "userId"))
	if err != nil {
		json.WriteDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
