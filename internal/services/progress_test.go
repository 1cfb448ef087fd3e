package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"certtrack-backend/internal/models"
	"certtrack-backend/internal/repository"
	"certtrack-backend/internal/rollup"
	"certtrack-backend/internal/status"
)

type stubOverrideStore struct {
	overrides int
	deleteErr error
}

func (s *stubOverrideStore) Override(_ context.Context, userID, courseID uuid.UUID, req models.ProgressOverrideRequest, at time.Time) (*models.ProgressRecord, error) {
	s.overrides++
	rec := &models.ProgressRecord{UserID: userID, CourseID: courseID, Status: models.ProgressNotStarted, DueDate: req.DueDate, UpdatedAt: at}
	if req.Status != nil {
		rec.Status = *req.Status
	}
	return rec, nil
}

func (s *stubOverrideStore) Delete(context.Context, uuid.UUID, uuid.UUID) error { return s.deleteErr }

type stubLookup struct{ known uuid.UUID }

func (s stubLookup) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if id != s.known {
		return nil, repository.ErrNotFound
	}
	return &models.User{ID: id}, nil
}

type stubCourseLookup struct{ known uuid.UUID }

func (s stubCourseLookup) GetByID(_ context.Context, id uuid.UUID) (*models.Course, error) {
	if id != s.known {
		return nil, repository.ErrNotFound
	}
	return &models.Course{ID: id}, nil
}

func TestProgressService_Override(t *testing.T) {
	userID, courseID := uuid.New(), uuid.New()
	store := &stubOverrideStore{}
	notifier := &stubNotifier{}
	svc := NewProgressService(store, stubLookup{userID}, stubCourseLookup{courseID}, notifier, zap.NewNop())
	ctx := context.Background()

	completed := models.ProgressCompleted
	rec, err := svc.Override(ctx, userID, courseID, models.ProgressOverrideRequest{Status: &completed})
	if err != nil || rec.Status != models.ProgressCompleted {
		t.Fatalf("override failed: %+v %v", rec, err)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("override should push a progress update")
	}

	bogus := models.ProgressStatus("finished")
	badDate := "10/03/2025"
	tests := []struct {
		name string
		req  models.ProgressOverrideRequest
		want string
	}{
		{"nothing to change", models.ProgressOverrideRequest{}, "status"},
		{"unknown status", models.ProgressOverrideRequest{Status: &bogus}, "status"},
		{"bad date", models.ProgressOverrideRequest{DueDate: &badDate}, "due_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *ValidationError
			_, err := svc.Override(ctx, userID, courseID, tt.req)
			if !errors.As(err, &ve) || ve.Fields[tt.want] == "" {
				t.Fatalf("expected validation error on %s, got %v", tt.want, err)
			}
		})
	}

	var nf *NotFoundError
	if _, err := svc.Override(ctx, uuid.New(), courseID, models.ProgressOverrideRequest{Status: &completed}); !errors.As(err, &nf) {
		t.Fatalf("unknown user: expected NotFoundError, got %v", err)
	}
	if store.overrides != 1 {
		t.Fatalf("rejected overrides must not reach the store, got %d writes", store.overrides)
	}

	// Clearing the due date is allowed.
	empty := ""
	if _, err := svc.Override(ctx, userID, courseID, models.ProgressOverrideRequest{DueDate: &empty}); err != nil {
		t.Fatalf("clearing due date failed: %v", err)
	}
}

func TestProgressService_Delete(t *testing.T) {
	store := &stubOverrideStore{deleteErr: repository.ErrNotFound}
	svc := NewProgressService(store, stubLookup{}, stubCourseLookup{}, &stubNotifier{}, zap.NewNop())

	var nf *NotFoundError
	if err := svc.Delete(context.Background(), uuid.New(), uuid.New()); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestAtRiskReminderBody(t *testing.T) {
	body := atRiskReminderBody("<Sam>", []rollup.FlaggedCourse{
		{Title: "Fire & Safety", TrackName: "Onboarding", Status: status.Result{Category: status.Overdue, Text: "Overdue"}},
		{Title: "Ethics", TrackName: "Onboarding", Status: status.Result{Category: status.DueSoon, Text: "Due Soon"}},
	}, "https://app.example.com")

	for _, want := range []string{"&lt;Sam&gt;", "Fire &amp; Safety", "Due Soon", "#dc2626", "https://app.example.com/dashboard"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}
