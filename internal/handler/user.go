package handler

import (
	"net/http"

	"github.com/tableserve/tableserve-auth/internal/middleware"
	"github.com/tableserve/tableserve-auth/internal/model"
)

// UserHandler serves routes about the authenticated user.
type UserHandler struct{}

func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// HandleMe handles GET /api/user/me requests. A request that reached this
// handler without an identity never presented a token, which is a client error.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse("not authenticated"))
		return
	}

	writeJSON(w, http.StatusOK, model.ProfileResponse{Username: identity.Username})
}
