package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"certtrack-backend/internal/models"
)

type jobLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type JobHandler struct {
	jobs jobLookup
}

func NewJobHandler(jobs jobLookup) *JobHandler {
	return &JobHandler{jobs: jobs}
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
