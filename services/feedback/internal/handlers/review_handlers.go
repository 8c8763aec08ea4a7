package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/guest-feedback/pkg/auth"
	"github.com/diagnosis/guest-feedback/pkg/response"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
)

// IssueToken mints a guest review link for the caller
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req domain.IssueTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !allowCategory(w, r, auth.PermTokensIssue, req.Category) {
		return
	}

	claims := auth.FromContext(r.Context())
	resp, err := h.tokenService.IssueToken(r.Context(), claims.Sub, &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, resp)
}

// ValidateToken tells the guest form whether a link can still be used
func (h *Handlers) ValidateToken(w http.ResponseWriter, r *http.Request) {
	resp, err := h.tokenService.ValidateToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, resp)
}

// PublicQuestions returns the form definition for a category
func (h *Handlers) PublicQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.reviewService.ListQuestions(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.Data(w, questions)
}

// SubmitGuestReview redeems a token and stores the guest's review
func (h *Handlers) SubmitGuestReview(w http.ResponseWriter, r *http.Request) {
	var req domain.GuestReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	review, err := h.reviewService.SubmitGuestReview(r.Context(), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{"review": review})
}

// SubmitReview stores a review attributed to the authenticated staff member
func (h *Handlers) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !allowCategory(w, r, auth.PermReviewsCreate, req.Category) {
		return
	}

	claims := auth.FromContext(r.Context())
	review, err := h.reviewService.SubmitReview(r.Context(), claims.Sub, &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{"review": review})
}
