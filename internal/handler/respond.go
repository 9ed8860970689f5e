package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"gotrip-be/internal/domain"
	apperrors "gotrip-be/pkg/errors"
	"gotrip-be/pkg/logger"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response to the client
func writeError(w http.ResponseWriter, log *logger.Logger, appErr *apperrors.AppError) {
	log.WithError(appErr).Error("Request error")

	response := map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"type":    string(appErr.Type),
			"message": appErr.Message,
		},
	}

	if appErr.Details != nil {
		response["error"].(map[string]interface{})["details"] = appErr.Details
	}

	writeJSON(w, appErr.StatusCode, response)
}

// writeServiceError maps a service error onto the API error taxonomy and
// writes it
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	writeError(w, log, serviceError(err))
}

// serviceError translates domain errors into API errors
func serviceError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrGroupNotFound):
		return apperrors.NewNotFoundError("Group not found")
	case errors.Is(err, domain.ErrInvalidInviteCode):
		return apperrors.NewNotFoundError("Invite code not recognized")
	case errors.Is(err, domain.ErrNotMember):
		return apperrors.NewAuthorizationError("You are not a member of this group")
	case errors.Is(err, domain.ErrNotLeader):
		return apperrors.NewAuthorizationError("Only the group leader can do this")
	case errors.Is(err, domain.ErrPlanLocked):
		return apperrors.NewConflictError("The plan is locked. The leader has to unlock it before votes can change")
	case errors.Is(err, domain.ErrPersistence):
		return apperrors.NewPersistenceError("Storage is temporarily unavailable. Try again shortly", err)
	default:
		return apperrors.NewInternalError("Something went wrong", err)
	}
}
