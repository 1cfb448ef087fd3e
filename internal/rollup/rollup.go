// Package rollup derives per-learner and cohort views from raw progress
// records. Nothing here is stored; every view is recomputed from its inputs.
package rollup

import (
	"math"
	"time"

	"github.com/google/uuid"

	"certtrack-backend/internal/models"
	"certtrack-backend/internal/status"
)

// ProgressByCourse is one learner's progress keyed by course.
type ProgressByCourse map[uuid.UUID]*models.ProgressRecord

type Catalog struct {
	Tracks  map[uuid.UUID]models.Track
	Courses map[uuid.UUID]models.Course
	// courseOrder keeps catalog order for views that list every course.
	courseOrder []uuid.UUID
}

func NewCatalog(tracks []models.Track, courses []models.Course) Catalog {
	c := Catalog{
		Tracks:      make(map[uuid.UUID]models.Track, len(tracks)),
		Courses:     make(map[uuid.UUID]models.Course, len(courses)),
		courseOrder: make([]uuid.UUID, 0, len(courses)),
	}
	for _, t := range tracks {
		c.Tracks[t.ID] = t
	}
	for _, course := range courses {
		if _, dup := c.Courses[course.ID]; !dup {
			c.courseOrder = append(c.courseOrder, course.ID)
		}
		c.Courses[course.ID] = course
	}
	return c
}

type CourseStatus struct {
	CourseID uuid.UUID     `json:"course_id"`
	Title    string        `json:"title"`
	Known    bool          `json:"known"`
	Status   status.Result `json:"status"`
}

type TrackProgress struct {
	TrackID   uuid.UUID      `json:"track_id"`
	Name      string         `json:"name"`
	Icon      string         `json:"icon"`
	Completed int            `json:"completed"`
	Total     int            `json:"total"`
	Percent   int            `json:"percent"`
	Courses   []CourseStatus `json:"courses"`
}

type UserRollup struct {
	UserID         uuid.UUID       `json:"user_id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Tracks         []TrackProgress `json:"tracks"`
	AvgCompletion  *int            `json:"avg_completion"`
	CoursesPassed  int             `json:"courses_passed"`
	StatusPriority status.Priority `json:"status_priority"`
	StatusText     string          `json:"status_text"`
}

func completionPercent(completed, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

func isCompleted(p *models.ProgressRecord) bool {
	return p != nil && p.Status == models.ProgressCompleted
}

// trackProgress classifies every required course of a track.
func trackProgress(t models.Track, cat Catalog, progress ProgressByCourse, at time.Time) TrackProgress {
	tp := TrackProgress{
		TrackID: t.ID,
		Name:    t.Name,
		Icon:    t.Icon,
		Total:   len(t.RequiredCourseIDs),
		Courses: make([]CourseStatus, 0, len(t.RequiredCourseIDs)),
	}
	for _, cid := range t.RequiredCourseIDs {
		rec := progress[cid]
		if isCompleted(rec) {
			tp.Completed++
		}
		course, known := cat.Courses[cid]
		tp.Courses = append(tp.Courses, CourseStatus{
			CourseID: cid,
			Title:    course.Title,
			Known:    known,
			Status:   status.Classify(rec, at),
		})
	}
	tp.Percent = completionPercent(tp.Completed, tp.Total)
	return tp
}

// assignedTracks resolves a learner's track ids, skipping ones the catalog
// no longer has.
func assignedTracks(u models.User, cat Catalog) []models.Track {
	out := make([]models.Track, 0, len(u.TrackIDs))
	for _, id := range u.TrackIDs {
		if t, ok := cat.Tracks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// RollupUser builds the matrix row for one learner. The most urgent required
// course decides the overall status; a learner with no tracks is N/A.
func RollupUser(u models.User, cat Catalog, progress ProgressByCourse, at time.Time) UserRollup {
	r := UserRollup{
		UserID:         u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Tracks:         []TrackProgress{},
		StatusPriority: status.PriorityNotAssigned,
	}

	for _, rec := range progress {
		if isCompleted(rec) {
			r.CoursesPassed++
		}
	}

	tracks := assignedTracks(u, cat)
	if len(tracks) == 0 {
		r.StatusText = status.PriorityText(r.StatusPriority)
		return r
	}

	overall := status.PriorityOnTrack
	total := 0
	for _, t := range tracks {
		tp := trackProgress(t, cat, progress, at)
		total += tp.Percent
		for _, c := range tp.Courses {
			if c.Status.Priority < overall {
				overall = c.Status.Priority
			}
		}
		r.Tracks = append(r.Tracks, tp)
	}

	avg := int(math.Round(float64(total) / float64(len(tracks))))
	r.AvgCompletion = &avg
	r.StatusPriority = overall
	r.StatusText = status.PriorityText(overall)
	return r
}

type FlaggedCourse struct {
	CourseID  uuid.UUID     `json:"course_id"`
	Title     string        `json:"title"`
	TrackName string        `json:"track_name"`
	Status    status.Result `json:"status"`
}

type AtRiskUser struct {
	UserID         uuid.UUID       `json:"user_id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	StatusPriority status.Priority `json:"status_priority"`
	Courses        []FlaggedCourse `json:"courses"`
}

// AtRisk returns the learners whose status is worse than On Track together
// with the catalog courses that put them there. Input order is preserved.
func AtRisk(rollups []UserRollup) []AtRiskUser {
	out := []AtRiskUser{}
	for _, r := range rollups {
		if r.StatusPriority >= status.PriorityOnTrack {
			continue
		}

		seen := make(map[uuid.UUID]bool)
		var flagged []FlaggedCourse
		for _, t := range r.Tracks {
			for _, c := range t.Courses {
				if !c.Known || !c.Status.Urgent() || seen[c.CourseID] {
					continue
				}
				seen[c.CourseID] = true
				flagged = append(flagged, FlaggedCourse{
					CourseID:  c.CourseID,
					Title:     c.Title,
					TrackName: t.Name,
					Status:    c.Status,
				})
			}
		}
		if len(flagged) == 0 {
			continue
		}

		out = append(out, AtRiskUser{
			UserID:         r.UserID,
			Name:           r.Name,
			Email:          r.Email,
			StatusPriority: r.StatusPriority,
			Courses:        flagged,
		})
	}
	return out
}
