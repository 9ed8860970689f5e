package handler

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gotrip-be/internal/container"
	"gotrip-be/internal/domain"
	"gotrip-be/internal/middleware"
	apperrors "gotrip-be/pkg/errors"
)

// ApprovalHandler handles plan approval requests
type ApprovalHandler struct {
	container *container.Container
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(container *container.Container) *ApprovalHandler {
	return &ApprovalHandler{
		container: container,
	}
}

// CastVote handles POST /api/groups/{groupID}/approval/vote
func (h *ApprovalHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, logger, apperrors.NewAuthenticationError("User not authenticated"))
		return
	}

	groupID := chi.URLParam(r, "groupID")
	if groupID == "" {
		writeError(w, logger, apperrors.NewValidationError("Group ID is required", nil))
		return
	}

	var req domain.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, logger, apperrors.NewValidationError("Invalid request body", nil))
		return
	}

	if err := validateVoteRequest(&req); err != nil {
		writeError(w, logger, apperrors.NewValidationError(err.Error(), nil))
		return
	}

	// Votes are written under the same time bound the client waits before rolling back
	ctx, cancel := context.WithTimeout(r.Context(), h.container.GetConfig().VoteTimeout)
	defer cancel()

	response, err := h.container.GetServices().Approval.CastVote(ctx, groupID, user, &req)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, response)
}

// Unlock handles POST /api/groups/{groupID}/approval/unlock
func (h *ApprovalHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, logger, apperrors.NewAuthenticationError("User not authenticated"))
		return
	}

	groupID := chi.URLParam(r, "groupID")
	if groupID == "" {
		writeError(w, logger, apperrors.NewValidationError("Group ID is required", nil))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.container.GetConfig().VoteTimeout)
	defer cancel()

	response, err := h.container.GetServices().Approval.Unlock(ctx, groupID, user.Sub)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// GetStatus handles GET /api/groups/{groupID}/approval/status (polling endpoint)
func (h *ApprovalHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, logger, apperrors.NewAuthenticationError("User not authenticated"))
		return
	}

	groupID := chi.URLParam(r, "groupID")
	if groupID == "" {
		writeError(w, logger, apperrors.NewValidationError("Group ID is required", nil))
		return
	}

	status, err := h.container.GetServices().Approval.GetStatus(r.Context(), groupID, user.Sub)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}

	// Spare pollers the body when nothing changed
	etag := generateETag(status)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, max-age=5")

	writeJSON(w, http.StatusOK, status)
}

// ListVotes handles GET /api/groups/{groupID}/approval/votes
func (h *ApprovalHandler) ListVotes(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, logger, apperrors.NewAuthenticationError("User not authenticated"))
		return
	}

	groupID := chi.URLParam(r, "groupID")
	if groupID == "" {
		writeError(w, logger, apperrors.NewValidationError("Group ID is required", nil))
		return
	}

	votes, totalMembers, err := h.container.GetServices().Approval.ListVotes(r.Context(), groupID, user.Sub)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"group_id":      groupID,
		"votes":         votes,
		"total_members": totalMembers,
	})
}

// validateVoteRequest checks a vote payload before it reaches the service
func validateVoteRequest(req *domain.VoteRequest) error {
	if !req.Vote.IsValid() {
		return fmt.Errorf("vote must be %q or %q", domain.VoteAgree, domain.VoteRequestChanges)
	}

	if len(req.Comment) > 500 {
		return fmt.Errorf("comment must be at most 500 characters")
	}

	return nil
}

// generateETag derives an ETag from the response content
func generateETag(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf(`"%x"`, hash)
}
