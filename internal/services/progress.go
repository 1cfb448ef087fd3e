package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"certtrack-backend/internal/models"
	"certtrack-backend/internal/repository"
)

type progressStore interface {
	Override(ctx context.Context, userID, courseID uuid.UUID, req models.ProgressOverrideRequest, at time.Time) (*models.ProgressRecord, error)
	Delete(ctx context.Context, userID, courseID uuid.UUID) error
}

type userLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type courseLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// ProgressService applies administrator changes to a learner's progress.
type ProgressService struct {
	store   progressStore
	users   userLookup
	courses courseLookup
	notify  userNotifier
	log     *zap.Logger
	now     func() time.Time
}

func NewProgressService(store progressStore, users userLookup, courses courseLookup, notify userNotifier, log *zap.Logger) *ProgressService {
	return &ProgressService{store: store, users: users, courses: courses, notify: notify, log: log, now: time.Now}
}

func validateOverride(req models.ProgressOverrideRequest) error {
	fields := make(map[string]string)
	if req.Status == nil && req.DueDate == nil {
		fields["status"] = "Status or due date is required"
	}
	if req.Status != nil && !req.Status.Valid() {
		fields["status"] = "Must be not-started, in-progress or completed"
	}
	if req.DueDate != nil && *req.DueDate != "" {
		if _, err := time.Parse(time.DateOnly, *req.DueDate); err != nil {
			fields["due_date"] = "Must be a date in YYYY-MM-DD form"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *ProgressService) checkTargets(ctx context.Context, userID, courseID uuid.UUID) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Message: "User not found"}
		}
		return &UnavailableError{Err: err}
	}
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Message: "Course not found"}
		}
		return &UnavailableError{Err: err}
	}
	return nil
}

func (s *ProgressService) Override(ctx context.Context, userID, courseID uuid.UUID, req models.ProgressOverrideRequest) (*models.ProgressRecord, error) {
	if err := validateOverride(req); err != nil {
		return nil, err
	}
	if err := s.checkTargets(ctx, userID, courseID); err != nil {
		return nil, err
	}

	rec, err := s.store.Override(ctx, userID, courseID, req, s.now())
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}

	s.log.Info("progress overridden",
		zap.String("user_id", userID.String()),
		zap.String("course_id", courseID.String()),
		zap.String("status", string(rec.Status)),
	)
	s.notify.ToUser(ctx, userID, models.WSMessage{
		Type:    models.WSProgressUpdated,
		Payload: models.ProgressEvent{CourseID: courseID, Status: rec.Status},
	})
	return rec, nil
}

// Delete removes the record, which makes the course unassigned for the
// learner.
func (s *ProgressService) Delete(ctx context.Context, userID, courseID uuid.UUID) error {
	if err := s.store.Delete(ctx, userID, courseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Message: "Progress record not found"}
		}
		return &UnavailableError{Err: err}
	}

	s.log.Info("progress deleted", zap.String("user_id", userID.String()), zap.String("course_id", courseID.String()))
	s.notify.ToUser(ctx, userID, models.WSMessage{
		Type:    models.WSProgressUpdated,
		Payload: models.ProgressEvent{CourseID: courseID},
	})
	return nil
}
