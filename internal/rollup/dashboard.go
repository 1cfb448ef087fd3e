package rollup

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"

	"certtrack-backend/internal/models"
	"certtrack-backend/internal/status"
)

const defaultCourseIcon = "fa-star"

type CompletedCourse struct {
	CourseID    uuid.UUID  `json:"course_id"`
	Title       string     `json:"title"`
	Icon        string     `json:"icon"`
	CompletedOn *time.Time `json:"completed_on"`
}

type LeaderboardEntry struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Passes int       `json:"passes"`
}

type Dashboard struct {
	Tracks           []TrackProgress    `json:"tracks"`
	OptionalCourses  []CourseEntry      `json:"optional_courses"`
	CompletedCourses []CompletedCourse  `json:"completed_courses"`
	CompletedTracks  []TrackProgress    `json:"completed_tracks"`
	Leaderboard      []LeaderboardEntry `json:"leaderboard"`
	Activity         models.ActivityLog `json:"activity"`
	TrainingTime     string             `json:"training_time"`
}

type DashboardInput struct {
	User     models.User
	Users    Snapshot[models.User]
	Tracks   Snapshot[models.Track]
	Courses  Snapshot[models.Course]
	Progress Snapshot[models.ProgressRecord]
	Activity Snapshot[models.ActivityLog]
}

// BuildDashboard assembles the learner's home view from their own progress.
func BuildDashboard(in DashboardInput, at time.Time) (Dashboard, error) {
	if err := in.Users.check("users"); err != nil {
		return Dashboard{}, err
	}
	if err := in.Tracks.check("tracks"); err != nil {
		return Dashboard{}, err
	}
	if err := in.Courses.check("courses"); err != nil {
		return Dashboard{}, err
	}
	if err := in.Progress.check("progress"); err != nil {
		return Dashboard{}, err
	}
	if err := in.Activity.check("activity logs"); err != nil {
		return Dashboard{}, err
	}

	cat := NewCatalog(in.Tracks.Items, in.Courses.Items)
	progress := IndexProgress(in.Progress.Items)[in.User.ID]

	d := Dashboard{
		Tracks:           []TrackProgress{},
		OptionalCourses:  []CourseEntry{},
		CompletedCourses: []CompletedCourse{},
		CompletedTracks:  []TrackProgress{},
		Leaderboard:      leaderboard(in.Users.Items, in.Activity.Items),
	}

	tracks := assignedTracks(in.User, cat)
	for _, t := range tracks {
		tp := trackProgress(t, cat, progress, at)
		// Courses deleted from the catalog are not shown to the learner.
		tp.Courses = slices.DeleteFunc(tp.Courses, func(c CourseStatus) bool { return !c.Known })
		d.Tracks = append(d.Tracks, tp)
		if tp.Percent == 100 {
			d.CompletedTracks = append(d.CompletedTracks, tp)
		}
	}

	required := requiredCourseIDs(tracks)
	for _, cid := range cat.courseOrder {
		if required[cid] {
			continue
		}
		d.OptionalCourses = append(d.OptionalCourses, CourseEntry{
			CourseID: cid,
			Title:    cat.Courses[cid].Title,
			Status:   status.Classify(progress[cid], at),
		})
	}

	for _, cid := range cat.courseOrder {
		rec := progress[cid]
		if !isCompleted(rec) {
			continue
		}
		d.CompletedCourses = append(d.CompletedCourses, CompletedCourse{
			CourseID:    cid,
			Title:       cat.Courses[cid].Title,
			Icon:        courseIcon(cid, in.Tracks.Items),
			CompletedOn: rec.CompletedDate,
		})
	}

	for _, l := range in.Activity.Items {
		if l.UserID == in.User.ID {
			d.Activity = l
			break
		}
	}
	d.Activity.UserID = in.User.ID
	d.TrainingTime = FormatDuration(d.Activity.TotalTrainingSeconds)
	return d, nil
}

// courseIcon borrows the icon of the first track requiring the course.
func courseIcon(courseID uuid.UUID, tracks []models.Track) string {
	for _, t := range tracks {
		if slices.Contains(t.RequiredCourseIDs, courseID) {
			return t.Icon
		}
	}
	return defaultCourseIcon
}

// leaderboard ranks everyone by passed quizzes and keeps the top three.
func leaderboard(users []models.User, logs []models.ActivityLog) []LeaderboardEntry {
	out := []LeaderboardEntry{}
	if len(users) == 0 || len(logs) == 0 {
		return out
	}

	passes := make(map[uuid.UUID]int, len(logs))
	for _, l := range logs {
		passes[l.UserID] = l.QuizPasses
	}
	for _, u := range users {
		out = append(out, LeaderboardEntry{UserID: u.ID, Name: u.Name, Passes: passes[u.ID]})
	}
	slices.SortStableFunc(out, func(a, b LeaderboardEntry) int {
		return cmp.Compare(b.Passes, a.Passes)
	})
	if len(out) > topUsersLimit {
		out = out[:topUsersLimit]
	}
	return out
}
