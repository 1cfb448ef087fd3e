package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobQuestionGeneration = "question-generation"
	JobAtRiskReminder     = "at-risk-reminder"
)

type Job struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Type         string          `json:"type"`         // "question-generation" | "at-risk-reminder"
	ReferenceID  uuid.UUID       `json:"reference_id"` // course for generation, learner for reminders
	ConfigJSON   json.RawMessage `json:"config"`
	Status       string          `json:"status"` // "pending" | "processing" | "completed" | "failed"
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// WebSocket message types
const (
	WSProgressUpdated = "progress_updated"
	WSCatalogUpdated  = "catalog_updated"
	WSJobStatus       = "status_update"
	WSJobCompleted    = "completed"
	WSJobError        = "error"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	JobID    uuid.UUID `json:"job_id"`
	Step     int       `json:"step"`
	StepName string    `json:"step_name"`
}

type CompletedEvent struct {
	JobID      uuid.UUID `json:"job_id"`
	ResultID   uuid.UUID `json:"result_id"`
	ResultType string    `json:"result_type"`
}

type ErrorEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

type ProgressEvent struct {
	CourseID uuid.UUID      `json:"course_id"`
	Status   ProgressStatus `json:"status"`
	Score    int            `json:"score"`
	Passed   bool           `json:"passed"`
}

type CatalogEvent struct {
	CourseID      uuid.UUID `json:"course_id"`
	QuestionCount int       `json:"question_count"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
