package handlers

import (
	"net/http"

	"github.com/diagnosis/guest-feedback/pkg/auth"
	"github.com/diagnosis/guest-feedback/pkg/response"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
)

// Login exchanges a username and password for an access token
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, resp)
}

// Me returns the authenticated user
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		response.Unauthorized(w, "authentication required")
		return
	}

	user, err := h.authService.GetUser(r.Context(), claims.Sub)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.Data(w, user)
}
