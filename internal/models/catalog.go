package models

import (
	"time"

	"github.com/google/uuid"
)

const OptionsPerQuestion = 4

type Question struct {
	ID           uuid.UUID `json:"id"`
	CourseID     uuid.UUID `json:"course_id"`
	Text         string    `json:"text"`
	Options      []string  `json:"options"`
	CorrectIndex int       `json:"correct_index"`
	CreatedAt    time.Time `json:"created_at"`
}

// Course is a single quiz. QuizLength is the number of questions drawn per
// attempt; zero means the whole pool.
type Course struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	QuizLength  int       `json:"quiz_length"`
	CreatedAt   time.Time `json:"created_at"`
}

type Track struct {
	ID                uuid.UUID   `json:"id"`
	Name              string      `json:"name"`
	Icon              string      `json:"icon"`
	RequiredCourseIDs []uuid.UUID `json:"required_course_ids"`
	CreatedAt         time.Time   `json:"created_at"`
}

// GeneratedQuestion is the shape the question generator asks the model for.
type GeneratedQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Topic        string   `json:"topic"`
}

type GenerateQuestionsRequest struct {
	SourceType   string `json:"source_type"` // "text" | "youtube" | "file"
	Text         string `json:"text,omitempty"`
	URL          string `json:"url,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
	NumQuestions int    `json:"num_questions"`
	Difficulty   string `json:"difficulty"`
}
