package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"certtrack-backend/internal/middleware"
	"certtrack-backend/internal/services"
	"certtrack-backend/internal/session"
)

type attemptService interface {
	Start(ctx context.Context, userID, courseID uuid.UUID) (session.View, error)
	Current(userID uuid.UUID) (session.View, error)
	Select(userID, sessionID uuid.UUID, option int) (session.Reveal, error)
	Advance(ctx context.Context, userID, sessionID uuid.UUID) (services.AdvanceResult, error)
	RequestExit(userID, sessionID uuid.UUID, intent session.ExitIntent) (session.ExitDecision, error)
	CancelExit(userID, sessionID uuid.UUID) (bool, error)
	ConfirmExit(userID, sessionID uuid.UUID) error
	Discard(userID, sessionID uuid.UUID) error
}

// AttemptHandler drives a learner's quiz attempt. Every route except start
// addresses the attempt by its handle.
type AttemptHandler struct {
	attempts attemptService
}

func NewAttemptHandler(attempts attemptService) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

func (h *AttemptHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CourseID string `json:"course_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"course_id": "Must be a valid course ID"}, r))
		return
	}

	view, err := h.attempts.Start(r.Context(), middleware.GetUserID(r.Context()), courseID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *AttemptHandler) Current(w http.ResponseWriter, r *http.Request) {
	view, err := h.attempts.Current(middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AttemptHandler) Select(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		OptionIndex *int `json:"option_index"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OptionIndex == nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"option_index": "Option index is required"}, r))
		return
	}

	reveal, err := h.attempts.Select(middleware.GetUserID(r.Context()), sessionID, *req.OptionIndex)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reveal)
}

func (h *AttemptHandler) Advance(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	result, err := h.attempts.Advance(r.Context(), middleware.GetUserID(r.Context()), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AttemptHandler) RequestExit(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Intent session.ExitIntent `json:"intent"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	decision, err := h.attempts.RequestExit(middleware.GetUserID(r.Context()), sessionID, req.Intent)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decision": decision})
}

func (h *AttemptHandler) CancelExit(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	rearm, err := h.attempts.CancelExit(middleware.GetUserID(r.Context()), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rearm_history": rearm})
}

func (h *AttemptHandler) ConfirmExit(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.attempts.ConfirmExit(middleware.GetUserID(r.Context()), sessionID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"phase": session.PhaseExited})
}

// Discard tears the attempt down when the quiz view goes away.
func (h *AttemptHandler) Discard(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.attempts.Discard(middleware.GetUserID(r.Context()), sessionID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
