package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gotrip-be/internal/container"
	"gotrip-be/internal/domain"
	"gotrip-be/internal/middleware"
	apperrors "gotrip-be/pkg/errors"
)

// GroupHandler handles travel group requests
type GroupHandler struct {
	container *container.Container
}

// NewGroupHandler creates a new group handler
func NewGroupHandler(container *container.Container) *GroupHandler {
	return &GroupHandler{
		container: container,
	}
}

// CreateGroup handles POST /api/groups
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, logger, apperrors.NewAuthenticationError("User not authenticated"))
		return
	}

	var req domain.CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, logger, apperrors.NewValidationError("Invalid request body", nil))
		return
	}

	if err := validateCreateGroupRequest(&req); err != nil {
		writeError(w, logger, apperrors.NewValidationError(err.Error(), nil))
		return
	}

	detail, err := h.container.GetServices().Group.CreateGroup(r.Context(), user, &req)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, detail)
}

// JoinGroup handles POST /api/groups/join
func (h *GroupHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, logger, apperrors.NewAuthenticationError("User not authenticated"))
		return
	}

	var req domain.JoinGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, logger, apperrors.NewValidationError("Invalid request body", nil))
		return
	}

	if strings.TrimSpace(req.InviteCode) == "" {
		writeError(w, logger, apperrors.NewValidationError("Invite code is required", nil))
		return
	}

	detail, err := h.container.GetServices().Group.JoinGroup(r.Context(), user, &req)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// GetGroup handles GET /api/groups/{groupID}
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
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

	detail, err := h.container.GetServices().Group.GetGroup(r.Context(), groupID, user.Sub)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// validateCreateGroupRequest checks a group creation payload
func validateCreateGroupRequest(req *domain.CreateGroupRequest) error {
	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		return fmt.Errorf("group name is required (min 2 characters)")
	}
	if len(name) > 100 {
		return fmt.Errorf("group name must be at most 100 characters")
	}

	if len(req.Description) > 500 {
		return fmt.Errorf("description must be at most 500 characters")
	}

	return nil
}
