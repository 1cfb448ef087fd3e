package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"certtrack-backend/internal/models"
	"certtrack-backend/internal/repository"
	"certtrack-backend/internal/rollup"
	"certtrack-backend/internal/status"
)

type stubStores struct {
	users    []models.User
	tracks   []models.Track
	courses  []models.Course
	progress []models.ProgressRecord
	logs     []models.ActivityLog
	fail     error
}

type stubUserStore struct{ *stubStores }

func (s stubUserStore) List(context.Context) ([]models.User, error) { return s.users, s.fail }

func (s stubUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for i := range s.users {
		if s.users[i].ID == id {
			return &s.users[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

type stubTrackStore struct{ *stubStores }

func (s stubTrackStore) List(context.Context) ([]models.Track, error) { return s.tracks, nil }

type stubCourseStore struct{ *stubStores }

func (s stubCourseStore) List(context.Context) ([]models.Course, error) { return s.courses, nil }

type stubProgressStore struct{ *stubStores }

func (s stubProgressStore) ListAll(context.Context) ([]models.ProgressRecord, error) {
	return s.progress, nil
}

func (s stubProgressStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.ProgressRecord, error) {
	var out []models.ProgressRecord
	for _, p := range s.progress {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s stubProgressStore) Get(_ context.Context, userID, courseID uuid.UUID) (*models.ProgressRecord, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	for i := range s.progress {
		if s.progress[i].UserID == userID && s.progress[i].CourseID == courseID {
			return &s.progress[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

type stubActivityStore struct{ *stubStores }

func (s stubActivityStore) List(context.Context) ([]models.ActivityLog, error) { return s.logs, nil }

func strPtr(s string) *string { return &s }

type reportFixture struct {
	stores         *stubStores
	svc            *ReportService
	alice, bob     models.User
	safety, ethics models.Course
}

func newReportFixture() reportFixture {
	safety := models.Course{ID: uuid.New(), Title: "Safety"}
	ethics := models.Course{ID: uuid.New(), Title: "Ethics"}
	track := models.Track{ID: uuid.New(), Name: "Onboarding", Icon: "fa-rocket", RequiredCourseIDs: []uuid.UUID{safety.ID, ethics.ID}}
	alice := models.User{ID: uuid.New(), Name: "Alice", TrackIDs: []uuid.UUID{track.ID}}
	bob := models.User{ID: uuid.New(), Name: "Bob", TrackIDs: []uuid.UUID{track.ID}}

	stores := &stubStores{
		users:   []models.User{bob, alice},
		tracks:  []models.Track{track},
		courses: []models.Course{safety, ethics},
		progress: []models.ProgressRecord{
			{UserID: alice.ID, CourseID: safety.ID, Status: models.ProgressInProgress, DueDate: strPtr("2025-03-09")},
			{UserID: alice.ID, CourseID: ethics.ID, Status: models.ProgressNotStarted},
			{UserID: bob.ID, CourseID: safety.ID, Status: models.ProgressInProgress, DueDate: strPtr("2025-04-30")},
		},
		logs: []models.ActivityLog{{UserID: alice.ID, QuizAttempts: 2, QuizPasses: 1, QuizFails: 1, TotalTrainingSeconds: 3700}},
	}

	svc := NewReportService(stubUserStore{stores}, stubTrackStore{stores}, stubCourseStore{stores},
		stubProgressStore{stores}, stubActivityStore{stores}, time.UTC)
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }

	return reportFixture{stores: stores, svc: svc, alice: alice, bob: bob, safety: safety, ethics: ethics}
}

func TestReportService_Matrix(t *testing.T) {
	f := newReportFixture()

	m, err := f.svc.Matrix(context.Background(), "", rollup.Ascending)
	if err != nil {
		t.Fatalf("matrix failed: %v", err)
	}
	if len(m.Rollups) != 2 || m.Rollups[0].Name != "Alice" {
		t.Fatalf("expected rollups sorted by name, got %+v", m.Rollups)
	}
	if m.Rollups[0].StatusPriority != status.PriorityOverdue {
		t.Fatalf("alice should be overdue, got %d", m.Rollups[0].StatusPriority)
	}
	if len(m.AtRisk) != 1 || m.AtRisk[0].UserID != f.alice.ID {
		t.Fatalf("only alice should be at risk, got %+v", m.AtRisk)
	}
}

func TestReportService_MatrixRejectsUnknownSort(t *testing.T) {
	f := newReportFixture()

	var ve *ValidationError
	if _, err := f.svc.Matrix(context.Background(), "shoe_size", rollup.Ascending); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestReportService_UnavailableIsNotEmpty(t *testing.T) {
	f := newReportFixture()
	f.stores.fail = errors.New("connection reset")

	var ue *UnavailableError
	if _, err := f.svc.Matrix(context.Background(), rollup.SortByName, rollup.Ascending); !errors.As(err, &ue) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if _, err := f.svc.Usage(context.Background(), rollup.UsageByName, rollup.Ascending); !errors.As(err, &ue) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if !errors.Is(ue, rollup.ErrDataUnavailable) {
		t.Fatalf("unavailable error should wrap ErrDataUnavailable")
	}
}

func TestReportService_CourseStatus(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()

	got, err := f.svc.CourseStatus(ctx, f.bob.ID, f.safety.ID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if got.Category != status.InProgress {
		t.Fatalf("expected in progress, got %s", got.Category)
	}

	got, _ = f.svc.CourseStatus(ctx, f.bob.ID, f.ethics.ID)
	if got.Category != status.NotAssigned {
		t.Fatalf("course without a record should be not assigned, got %s", got.Category)
	}

	f.stores.fail = errors.New("connection reset")
	var ue *UnavailableError
	if _, err := f.svc.CourseStatus(ctx, f.bob.ID, f.safety.ID); !errors.As(err, &ue) {
		t.Fatalf("a failed read must not look unassigned, got %v", err)
	}
}

func TestReportService_ViewerZoneDecidesDueDay(t *testing.T) {
	f := newReportFixture()
	// 2025-03-10 03:00 UTC is still 2025-03-09 in New York, so the due day
	// has not ended there yet.
	f.svc.now = func() time.Time { return time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC) }

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("time zone data unavailable: %v", err)
	}

	got, _ := f.svc.CourseStatus(context.Background(), f.alice.ID, f.safety.ID)
	if got.Category != status.Overdue {
		t.Fatalf("in UTC the course is overdue, got %s", got.Category)
	}

	f.svc.viewer = ny
	got, _ = f.svc.CourseStatus(context.Background(), f.alice.ID, f.safety.ID)
	if got.Category != status.DueSoon {
		t.Fatalf("in New York the course is still due today, got %s", got.Category)
	}
}

func TestReportService_DashboardAndDetail(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()

	d, err := f.svc.Dashboard(ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if len(d.Tracks) != 1 || d.TrainingTime != "01:01:40" {
		t.Fatalf("unexpected dashboard: %+v", d)
	}

	detail, err := f.svc.UserDetail(ctx, f.bob.ID)
	if err != nil {
		t.Fatalf("detail failed: %v", err)
	}
	if detail.Rollup.UserID != f.bob.ID {
		t.Fatalf("detail for wrong user: %+v", detail.Rollup)
	}

	var nf *NotFoundError
	if _, err := f.svc.UserDetail(ctx, uuid.New()); !errors.As(err, &nf) {
		t.Fatalf("unknown user: expected NotFoundError, got %v", err)
	}
}
