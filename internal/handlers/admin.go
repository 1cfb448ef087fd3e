package handlers

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"certtrack-backend/internal/middleware"
	"certtrack-backend/internal/models"
	"certtrack-backend/internal/rollup"
	"certtrack-backend/internal/services"
)

const maxUploadBytes = 50 * 1024 * 1024

type adminReports interface {
	Matrix(ctx context.Context, key rollup.SortKey, dir rollup.Direction) (rollup.Matrix, error)
	UserDetail(ctx context.Context, userID uuid.UUID) (rollup.UserDetail, error)
	Usage(ctx context.Context, key rollup.UsageSortKey, dir rollup.Direction) (rollup.UsageReport, error)
}

type progressAdmin interface {
	Override(ctx context.Context, userID, courseID uuid.UUID, req models.ProgressOverrideRequest) (*models.ProgressRecord, error)
	Delete(ctx context.Context, userID, courseID uuid.UUID) error
}

type generationRequester interface {
	Request(ctx context.Context, adminID, courseID uuid.UUID, req models.GenerateQuestionsRequest) (*models.Job, error)
}

type reminderRequester interface {
	Remind(ctx context.Context, adminID, userID uuid.UUID) (*models.Job, error)
}

// AdminHandler serves the administrator's reports and the few write actions
// administrators have over learner progress and course pools.
type AdminHandler struct {
	reports    adminReports
	progress   progressAdmin
	generation generationRequester
	reminders  reminderRequester
	uploadPath string
	log        *zap.Logger
}

func NewAdminHandler(
	reports adminReports,
	progress progressAdmin,
	generation generationRequester,
	reminders reminderRequester,
	uploadPath string,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		reports:    reports,
		progress:   progress,
		generation: generation,
		reminders:  reminders,
		uploadPath: uploadPath,
		log:        log,
	}
}

func (h *AdminHandler) Matrix(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	m, err := h.reports.Matrix(r.Context(), rollup.SortKey(q.Get("sort")), rollup.ParseDirection(q.Get("direction")))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *AdminHandler) UserDetail(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	d, err := h.reports.UserDetail(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := h.reports.Usage(r.Context(), rollup.UsageSortKey(q.Get("sort")), rollup.ParseDirection(q.Get("direction")))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) OverrideProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	courseID, ok := uuidParam(w, r, "courseId")
	if !ok {
		return
	}
	var req models.ProgressOverrideRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := h.progress.Override(r.Context(), userID, courseID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *AdminHandler) DeleteProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	courseID, ok := uuidParam(w, r, "courseId")
	if !ok {
		return
	}
	if err := h.progress.Delete(r.Context(), userID, courseID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GenerateQuestions accepts either a JSON body (text or YouTube source) or a
// multipart form carrying a document in the "file" field.
func (h *AdminHandler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	courseID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var (
		req    models.GenerateQuestionsRequest
		stored string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if !h.readUpload(w, r, courseID, &req) {
			return
		}
		stored = filepath.Join(h.uploadPath, req.FilePath)
	} else {
		if !decodeJSON(w, r, &req) {
			return
		}
		// Only the upload path names files on disk.
		req.FilePath = ""
		if req.SourceType == services.SourceFile {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{"file": "Files must be sent as multipart/form-data"}, r))
			return
		}
	}

	job, err := h.generation.Request(r.Context(), middleware.GetUserID(r.Context()), courseID, req)
	if err != nil {
		if stored != "" {
			os.Remove(stored)
		}
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": job.ID, "status": job.Status})
}

func (h *AdminHandler) readUpload(w http.ResponseWriter, r *http.Request, courseID uuid.UUID, req *models.GenerateQuestionsRequest) bool {
	if r.ContentLength > maxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File size exceeds 50MB limit", r))
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No file provided", r))
		return false
	}
	defer file.Close()

	if !services.SupportedUpload(header.Filename) {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", "Only PDF, DOCX and TXT files are supported", r))
		return false
	}

	rel := filepath.Join(courseID.String(), uuid.New().String()+strings.ToLower(filepath.Ext(header.Filename)))
	dst := filepath.Join(h.uploadPath, rel)
	if err := saveUpload(file, dst); err != nil {
		h.log.Error("failed to store upload", zap.String("path", dst), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store file", r))
		return false
	}

	n, _ := strconv.Atoi(r.FormValue("num_questions"))
	*req = models.GenerateQuestionsRequest{
		SourceType:   services.SourceFile,
		FilePath:     rel,
		NumQuestions: n,
		Difficulty:   r.FormValue("difficulty"),
	}
	return true
}

func saveUpload(src io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func (h *AdminHandler) Remind(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userId")
	if !ok {
		return
	}
	job, err := h.reminders.Remind(r.Context(), middleware.GetUserID(r.Context()), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": job.ID, "status": job.Status})
}
