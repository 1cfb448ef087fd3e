package models

import (
	"time"

	"github.com/google/uuid"
)

type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not-started"
	ProgressInProgress ProgressStatus = "in-progress"
	ProgressCompleted  ProgressStatus = "completed"
)

func (s ProgressStatus) Valid() bool {
	switch s {
	case ProgressNotStarted, ProgressInProgress, ProgressCompleted:
		return true
	}
	return false
}

// ProgressRecord is one learner's state for one course. DueDate is stored as
// a date-only "YYYY-MM-DD" string and is interpreted by the status classifier.
type ProgressRecord struct {
	UserID        uuid.UUID      `json:"user_id"`
	CourseID      uuid.UUID      `json:"course_id"`
	Status        ProgressStatus `json:"status"`
	DueDate       *string        `json:"due_date"`
	CompletedDate *time.Time     `json:"completed_date"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type ProgressOverrideRequest struct {
	Status  *ProgressStatus `json:"status"`
	DueDate *string         `json:"due_date"`
}

type ActivityLog struct {
	UserID               uuid.UUID  `json:"user_id"`
	LoginCount           int        `json:"login_count"`
	LastLogin            *time.Time `json:"last_login"`
	QuizAttempts         int        `json:"quiz_attempts"`
	QuizPasses           int        `json:"quiz_passes"`
	QuizFails            int        `json:"quiz_fails"`
	TotalTrainingSeconds int64      `json:"total_training_seconds"`
}

// PassRate returns the percentage of attempts that passed, or nil when the
// learner has not attempted anything yet.
func (a ActivityLog) PassRate() *float64 {
	if a.QuizAttempts == 0 {
		return nil
	}
	rate := float64(a.QuizPasses) / float64(a.QuizAttempts) * 100
	return &rate
}
