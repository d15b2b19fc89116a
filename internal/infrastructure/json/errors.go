package json

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/hilthontt/chorus/internal/domain"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, err error, msg string) {
	writeError(w, status, "", msg)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	resp := ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Message: msg,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func WriteValidationError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
}

func WriteBadRequestError(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, "invalid_input", msg)
}

func WriteInternalError(w http.ResponseWriter, err error) {
	log.Printf("Internal error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal", "An unexpected error occurred")
}

func WriteRateLimitError(w http.ResponseWriter, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again later.")
}

// WriteDomainError maps the domain error taxonomy onto a status and a
// machine readable code. Callers see whether they are outside the space
// (not_a_member) or lack a capability (missing_permission).
func WriteDomainError(w http.ResponseWriter, err error) {
	var (
		authn *domain.AuthenticationError
		authz *domain.AuthorizationError
	)
	switch {
	case errors.As(err, &authn):
		w.Header().Set("WWW-Authenticate", `Bearer realm="chorus"`)
		code := "unauthenticated"
		if authn.Expired {
			code = "token_expired"
		}
		writeError(w, http.StatusUnauthorized, code, authn.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.As(err, &authz):
		writeError(w, http.StatusForbidden, authz.Kind.String(), authz.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domain.ErrMemberNotFound),
		errors.Is(err, domain.ErrRoleNotFound),
		errors.Is(err, domain.ErrChannelNotFound),
		errors.Is(err, domain.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		WriteInternalError(w, err)
	}
}
