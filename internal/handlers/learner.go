package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"certtrack-backend/internal/middleware"
	"certtrack-backend/internal/rollup"
	"certtrack-backend/internal/status"
)

type learnerReports interface {
	Dashboard(ctx context.Context, userID uuid.UUID) (rollup.Dashboard, error)
	CourseStatus(ctx context.Context, userID, courseID uuid.UUID) (status.Result, error)
}

type DashboardHandler struct {
	reports learnerReports
}

func NewDashboardHandler(reports learnerReports) *DashboardHandler {
	return &DashboardHandler{reports: reports}
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.reports.Dashboard(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DashboardHandler) Status(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(r.URL.Query().Get("course_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"course_id": "Must be a valid course ID"}, r))
		return
	}

	res, err := h.reports.CourseStatus(r.Context(), middleware.GetUserID(r.Context()), courseID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
