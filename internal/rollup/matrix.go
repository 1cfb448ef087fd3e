package rollup

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"certtrack-backend/internal/models"
	"certtrack-backend/internal/status"
)

// ErrDataUnavailable means an input collection could not be read. It is never
// reported as an empty collection.
var ErrDataUnavailable = errors.New("data unavailable")

// Snapshot is the result of reading one collection: either the items or the
// reason they could not be read.
type Snapshot[T any] struct {
	Items []T
	Err   error
}

func Loaded[T any](items []T) Snapshot[T] {
	if items == nil {
		items = []T{}
	}
	return Snapshot[T]{Items: items}
}

func Failed[T any](err error) Snapshot[T] {
	return Snapshot[T]{Err: err}
}

func (s Snapshot[T]) check(name string) error {
	if s.Err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDataUnavailable, name, s.Err)
	}
	return nil
}

type MatrixInput struct {
	Users    Snapshot[models.User]
	Tracks   Snapshot[models.Track]
	Courses  Snapshot[models.Course]
	Progress Snapshot[models.ProgressRecord]
}

func (in MatrixInput) check() error {
	return errors.Join(
		in.Users.check("users"),
		in.Tracks.check("tracks"),
		in.Courses.check("courses"),
		in.Progress.check("progress"),
	)
}

type Matrix struct {
	Rollups []UserRollup `json:"rollups"`
	AtRisk  []AtRiskUser `json:"at_risk"`
}

// IndexProgress groups flat progress rows by learner and course.
func IndexProgress(records []models.ProgressRecord) map[uuid.UUID]ProgressByCourse {
	out := make(map[uuid.UUID]ProgressByCourse)
	for i := range records {
		rec := &records[i]
		byCourse, ok := out[rec.UserID]
		if !ok {
			byCourse = make(ProgressByCourse)
			out[rec.UserID] = byCourse
		}
		byCourse[rec.CourseID] = rec
	}
	return out
}

// BuildMatrix rolls up every learner. An empty user list yields an empty
// matrix; a failed read yields ErrDataUnavailable.
func BuildMatrix(in MatrixInput, at time.Time) (Matrix, error) {
	if err := in.check(); err != nil {
		return Matrix{}, err
	}

	cat := NewCatalog(in.Tracks.Items, in.Courses.Items)
	progress := IndexProgress(in.Progress.Items)

	m := Matrix{Rollups: make([]UserRollup, 0, len(in.Users.Items))}
	for _, u := range in.Users.Items {
		m.Rollups = append(m.Rollups, RollupUser(u, cat, progress[u.ID], at))
	}
	m.AtRisk = AtRisk(m.Rollups)
	return m, nil
}

type CourseEntry struct {
	CourseID uuid.UUID     `json:"course_id"`
	Title    string        `json:"title"`
	Status   status.Result `json:"status"`
}

// UserDetail is the expanded matrix row: required courses per track and the
// optional courses the learner has a record for.
type UserDetail struct {
	Rollup          UserRollup    `json:"rollup"`
	OptionalCourses []CourseEntry `json:"optional_courses"`
}

func requiredCourseIDs(tracks []models.Track) map[uuid.UUID]bool {
	ids := make(map[uuid.UUID]bool)
	for _, t := range tracks {
		for _, cid := range t.RequiredCourseIDs {
			ids[cid] = true
		}
	}
	return ids
}

func BuildUserDetail(u models.User, cat Catalog, progress ProgressByCourse, at time.Time) UserDetail {
	d := UserDetail{
		Rollup:          RollupUser(u, cat, progress, at),
		OptionalCourses: []CourseEntry{},
	}
	required := requiredCourseIDs(assignedTracks(u, cat))
	for _, cid := range cat.courseOrder {
		rec, taken := progress[cid]
		if !taken || required[cid] {
			continue
		}
		d.OptionalCourses = append(d.OptionalCourses, CourseEntry{
			CourseID: cid,
			Title:    cat.Courses[cid].Title,
			Status:   status.Classify(rec, at),
		})
	}
	return d
}
