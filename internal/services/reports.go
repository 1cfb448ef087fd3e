package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"certtrack-backend/internal/metrics"
	"certtrack-backend/internal/models"
	"certtrack-backend/internal/repository"
	"certtrack-backend/internal/rollup"
	"certtrack-backend/internal/status"
)

type userSource interface {
	List(ctx context.Context) ([]models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type trackSource interface {
	List(ctx context.Context) ([]models.Track, error)
}

type catalogSource interface {
	List(ctx context.Context) ([]models.Course, error)
}

type progressSource interface {
	ListAll(ctx context.Context) ([]models.ProgressRecord, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.ProgressRecord, error)
	Get(ctx context.Context, userID, courseID uuid.UUID) (*models.ProgressRecord, error)
}

type activitySource interface {
	List(ctx context.Context) ([]models.ActivityLog, error)
}

// ReportService reads the stores and hands them to the rollup package. Every
// view is computed at the current instant in the viewer's time zone.
type ReportService struct {
	users    userSource
	tracks   trackSource
	courses  catalogSource
	progress progressSource
	activity activitySource
	viewer   *time.Location
	now      func() time.Time
}

func NewReportService(users userSource, tracks trackSource, courses catalogSource, progress progressSource, activity activitySource, viewer *time.Location) *ReportService {
	if viewer == nil {
		viewer = time.UTC
	}
	return &ReportService{
		users:    users,
		tracks:   tracks,
		courses:  courses,
		progress: progress,
		activity: activity,
		viewer:   viewer,
		now:      time.Now,
	}
}

func (s *ReportService) at() time.Time {
	return s.now().In(s.viewer)
}

func snapshot[T any](items []T, err error) rollup.Snapshot[T] {
	if err != nil {
		return rollup.Failed[T](err)
	}
	return rollup.Loaded(items)
}

func unavailable(err error) error {
	if errors.Is(err, rollup.ErrDataUnavailable) {
		return &UnavailableError{Err: err}
	}
	return err
}

func (s *ReportService) matrixInput(ctx context.Context) rollup.MatrixInput {
	return rollup.MatrixInput{
		Users:    snapshot(s.users.List(ctx)),
		Tracks:   snapshot(s.tracks.List(ctx)),
		Courses:  snapshot(s.courses.List(ctx)),
		Progress: snapshot(s.progress.ListAll(ctx)),
	}
}

// Matrix builds the administrator's overview sorted by key. An empty key
// sorts by name.
func (s *ReportService) Matrix(ctx context.Context, key rollup.SortKey, dir rollup.Direction) (rollup.Matrix, error) {
	if key == "" {
		key = rollup.SortByName
	}
	if !key.Valid() {
		return rollup.Matrix{}, &ValidationError{Fields: map[string]string{"sort": "Unknown sort key"}}
	}

	m, err := rollup.BuildMatrix(s.matrixInput(ctx), s.at())
	if err != nil {
		return rollup.Matrix{}, unavailable(err)
	}
	m.Rollups = rollup.SortRollups(m.Rollups, key, dir)
	metrics.AtRiskLearners.Set(float64(len(m.AtRisk)))
	return m, nil
}

// AtRisk lists learners with overdue or due-soon courses in name order.
func (s *ReportService) AtRisk(ctx context.Context) ([]rollup.AtRiskUser, error) {
	m, err := s.Matrix(ctx, rollup.SortByName, rollup.Ascending)
	if err != nil {
		return nil, err
	}
	return m.AtRisk, nil
}

func (s *ReportService) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, &UnavailableError{Err: err}
	}
	return u, nil
}

// loadCatalog reads tracks, courses and one learner's progress together.
func (s *ReportService) loadCatalog(ctx context.Context, userID uuid.UUID) (rollup.Catalog, rollup.ProgressByCourse, error) {
	tracks := snapshot(s.tracks.List(ctx))
	courses := snapshot(s.courses.List(ctx))
	progress := snapshot(s.progress.ListByUser(ctx, userID))
	if err := errors.Join(tracks.Err, courses.Err, progress.Err); err != nil {
		return rollup.Catalog{}, nil, &UnavailableError{Err: err}
	}
	return rollup.NewCatalog(tracks.Items, courses.Items), rollup.IndexProgress(progress.Items)[userID], nil
}

func (s *ReportService) UserDetail(ctx context.Context, userID uuid.UUID) (rollup.UserDetail, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return rollup.UserDetail{}, err
	}
	cat, progress, err := s.loadCatalog(ctx, userID)
	if err != nil {
		return rollup.UserDetail{}, err
	}
	return rollup.BuildUserDetail(*u, cat, progress, s.at()), nil
}

func (s *ReportService) Usage(ctx context.Context, key rollup.UsageSortKey, dir rollup.Direction) (rollup.UsageReport, error) {
	if key == "" {
		key = rollup.UsageByName
	}
	if !key.Valid() {
		return rollup.UsageReport{}, &ValidationError{Fields: map[string]string{"sort": "Unknown sort key"}}
	}

	report, err := rollup.BuildUsage(snapshot(s.users.List(ctx)), snapshot(s.activity.List(ctx)), key, dir)
	if err != nil {
		return rollup.UsageReport{}, unavailable(err)
	}
	return report, nil
}

func (s *ReportService) Dashboard(ctx context.Context, userID uuid.UUID) (rollup.Dashboard, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return rollup.Dashboard{}, err
	}

	d, err := rollup.BuildDashboard(rollup.DashboardInput{
		User:     *u,
		Users:    snapshot(s.users.List(ctx)),
		Tracks:   snapshot(s.tracks.List(ctx)),
		Courses:  snapshot(s.courses.List(ctx)),
		Progress: snapshot(s.progress.ListByUser(ctx, userID)),
		Activity: snapshot(s.activity.List(ctx)),
	}, s.at())
	if err != nil {
		return rollup.Dashboard{}, unavailable(err)
	}
	return d, nil
}

// CourseStatus classifies one course for the learner. A course without a
// progress record is not assigned.
func (s *ReportService) CourseStatus(ctx context.Context, userID, courseID uuid.UUID) (status.Result, error) {
	rec, err := s.progress.Get(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return status.Classify(nil, s.at()), nil
		}
		return status.Result{}, &UnavailableError{Err: err}
	}
	return status.Classify(rec, s.at()), nil
}
