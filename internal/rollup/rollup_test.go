package rollup

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"certtrack-backend/internal/models"
	"certtrack-backend/internal/status"
)

var testNow = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func due(userID, courseID uuid.UUID, date string) models.ProgressRecord {
	return models.ProgressRecord{UserID: userID, CourseID: courseID, Status: models.ProgressInProgress, DueDate: strPtr(date)}
}

func done(userID, courseID uuid.UUID) models.ProgressRecord {
	at := testNow.Add(-48 * time.Hour)
	return models.ProgressRecord{UserID: userID, CourseID: courseID, Status: models.ProgressCompleted, CompletedDate: &at}
}

type fixture struct {
	courses []models.Course
	tracks  []models.Track
}

func newFixture() fixture {
	c := []models.Course{
		{ID: uuid.New(), Title: "Safety Basics"},
		{ID: uuid.New(), Title: "Forklift"},
		{ID: uuid.New(), Title: "First Aid"},
		{ID: uuid.New(), Title: "Optional Excel"},
	}
	t := []models.Track{
		{ID: uuid.New(), Name: "Warehouse", Icon: "fa-box", RequiredCourseIDs: []uuid.UUID{c[0].ID, c[1].ID}},
		{ID: uuid.New(), Name: "Medic", Icon: "fa-kit-medical", RequiredCourseIDs: []uuid.UUID{c[2].ID}},
		{ID: uuid.New(), Name: "Empty", Icon: "fa-circle"},
	}
	return fixture{courses: c, tracks: t}
}

func (f fixture) catalog() Catalog { return NewCatalog(f.tracks, f.courses) }

func TestRollupUser_WorstCourseDominates(t *testing.T) {
	f := newFixture()
	u := models.User{ID: uuid.New(), Name: "Ana", TrackIDs: []uuid.UUID{f.tracks[0].ID}}

	progress := IndexProgress([]models.ProgressRecord{
		due(u.ID, f.courses[0].ID, "2025-03-01"), // overdue
		due(u.ID, f.courses[1].ID, "2025-04-30"), // on track
	})[u.ID]

	r := RollupUser(u, f.catalog(), progress, testNow)
	if r.StatusPriority != status.PriorityOverdue {
		t.Fatalf("expected Overdue priority, got %d", r.StatusPriority)
	}
	if r.StatusText != "Overdue" {
		t.Fatalf("expected Overdue text, got %q", r.StatusText)
	}
}

func TestRollupUser_CompletionAndPasses(t *testing.T) {
	f := newFixture()
	u := models.User{ID: uuid.New(), Name: "Ben", TrackIDs: []uuid.UUID{f.tracks[0].ID, f.tracks[1].ID, f.tracks[2].ID}}

	progress := IndexProgress([]models.ProgressRecord{
		done(u.ID, f.courses[0].ID),
		due(u.ID, f.courses[1].ID, "2025-03-08"), // due soon
		done(u.ID, f.courses[3].ID),              // optional, still counts as passed
	})[u.ID]

	r := RollupUser(u, f.catalog(), progress, testNow)

	wantPercents := []int{50, 0, 100}
	for i, tp := range r.Tracks {
		if tp.Percent != wantPercents[i] {
			t.Errorf("track %s: expected %d%%, got %d%%", tp.Name, wantPercents[i], tp.Percent)
		}
	}
	if r.AvgCompletion == nil || *r.AvgCompletion != 50 {
		t.Fatalf("expected average 50, got %v", r.AvgCompletion)
	}
	if r.CoursesPassed != 2 {
		t.Fatalf("expected 2 passed courses, got %d", r.CoursesPassed)
	}
	if r.StatusPriority != status.PriorityDueSoon || r.StatusText != "Warning" {
		t.Fatalf("expected Warning, got %d %q", r.StatusPriority, r.StatusText)
	}
}

func TestRollupUser_NoTracks(t *testing.T) {
	f := newFixture()
	u := models.User{ID: uuid.New(), Name: "Cy", TrackIDs: []uuid.UUID{uuid.New()}} // unknown track

	r := RollupUser(u, f.catalog(), nil, testNow)
	if r.AvgCompletion != nil {
		t.Fatalf("expected no average, got %d", *r.AvgCompletion)
	}
	if r.StatusPriority != status.PriorityNotAssigned || r.StatusText != "N/A" {
		t.Fatalf("expected N/A, got %d %q", r.StatusPriority, r.StatusText)
	}
	if len(r.Tracks) != 0 {
		t.Fatalf("unknown track should be skipped")
	}
}

func TestRollupUser_UnassignedCoursesStayOnTrack(t *testing.T) {
	f := newFixture()
	u := models.User{ID: uuid.New(), Name: "Di", TrackIDs: []uuid.UUID{f.tracks[1].ID}}

	r := RollupUser(u, f.catalog(), nil, testNow)
	if r.StatusPriority != status.PriorityOnTrack {
		t.Fatalf("expected On Track when nothing is flagged, got %d", r.StatusPriority)
	}
}

func TestAtRisk_PairsUsersWithFlaggedCourses(t *testing.T) {
	f := newFixture()
	ghost := uuid.New()
	f.tracks[1].RequiredCourseIDs = append(f.tracks[1].RequiredCourseIDs, ghost)

	risky := models.User{ID: uuid.New(), Name: "Eve", TrackIDs: []uuid.UUID{f.tracks[0].ID, f.tracks[1].ID}}
	fine := models.User{ID: uuid.New(), Name: "Fay", TrackIDs: []uuid.UUID{f.tracks[0].ID}}
	onlyGhost := models.User{ID: uuid.New(), Name: "Gil", TrackIDs: []uuid.UUID{f.tracks[1].ID}}

	records := []models.ProgressRecord{
		due(risky.ID, f.courses[0].ID, "2025-03-01"),
		due(risky.ID, f.courses[1].ID, "2025-03-07"),
		due(risky.ID, f.courses[2].ID, "2025-05-01"),
		due(fine.ID, f.courses[0].ID, "2025-05-01"),
		due(onlyGhost.ID, ghost, "2025-03-01"),
	}

	m, err := BuildMatrix(MatrixInput{
		Users:    Loaded([]models.User{risky, fine, onlyGhost}),
		Tracks:   Loaded(f.tracks),
		Courses:  Loaded(f.courses),
		Progress: Loaded(records),
	}, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(m.AtRisk) != 1 {
		t.Fatalf("expected one at-risk user, got %d", len(m.AtRisk))
	}
	got := m.AtRisk[0]
	if got.UserID != risky.ID {
		t.Fatalf("expected %s at risk, got %s", risky.Name, got.Name)
	}
	if len(got.Courses) != 2 {
		t.Fatalf("expected 2 flagged courses, got %d", len(got.Courses))
	}
	if got.Courses[0].Status.Category != status.Overdue || got.Courses[1].Status.Category != status.DueSoon {
		t.Fatalf("unexpected flagged statuses: %+v", got.Courses)
	}
}

func TestBuildMatrix_NoUsersVersusFailure(t *testing.T) {
	f := newFixture()

	m, err := BuildMatrix(MatrixInput{
		Users:    Loaded[models.User](nil),
		Tracks:   Loaded(f.tracks),
		Courses:  Loaded(f.courses),
		Progress: Loaded[models.ProgressRecord](nil),
	}, testNow)
	if err != nil {
		t.Fatalf("no users is not an error: %v", err)
	}
	if m.Rollups == nil || len(m.Rollups) != 0 {
		t.Fatalf("expected empty rollups, got %v", m.Rollups)
	}

	cause := errors.New("connection refused")
	_, err = BuildMatrix(MatrixInput{
		Users:    Failed[models.User](cause),
		Tracks:   Loaded(f.tracks),
		Courses:  Loaded(f.courses),
		Progress: Loaded[models.ProgressRecord](nil),
	}, testNow)
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped, got %v", err)
	}
}

func TestBuildUserDetail_OptionalCourses(t *testing.T) {
	f := newFixture()
	u := models.User{ID: uuid.New(), Name: "Hal", TrackIDs: []uuid.UUID{f.tracks[0].ID}}

	progress := IndexProgress([]models.ProgressRecord{
		done(u.ID, f.courses[0].ID),
		done(u.ID, f.courses[3].ID),
	})[u.ID]

	d := BuildUserDetail(u, f.catalog(), progress, testNow)
	if len(d.OptionalCourses) != 1 || d.OptionalCourses[0].CourseID != f.courses[3].ID {
		t.Fatalf("expected only the optional course taken, got %+v", d.OptionalCourses)
	}
	if d.OptionalCourses[0].Status.Category != status.Completed {
		t.Fatalf("expected completed status, got %s", d.OptionalCourses[0].Status.Category)
	}
}
