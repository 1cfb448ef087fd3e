package services

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"certtrack-backend/internal/models"
	"certtrack-backend/internal/repository"
)

// ErrGenerationDisabled is returned when no model key is configured.
var ErrGenerationDisabled = errors.New("question generation is not configured")

var allowedDifficulties = map[string]bool{"": true, "easy": true, "medium": true, "hard": true}

type jobQueue interface {
	Enqueue(ctx context.Context, userID uuid.UUID, jobType string, referenceID uuid.UUID, config any) (*models.Job, error)
}

// GenerationService validates and queues question generation for a course.
type GenerationService struct {
	courses courseLookup
	jobs    jobQueue
	enabled bool
}

func NewGenerationService(courses courseLookup, jobs jobQueue, enabled bool) *GenerationService {
	return &GenerationService{courses: courses, jobs: jobs, enabled: enabled}
}

func validateGenerateRequest(req models.GenerateQuestionsRequest) error {
	fields := make(map[string]string)

	switch req.SourceType {
	case SourceText:
		if strings.TrimSpace(req.Text) == "" {
			fields["text"] = "Text is required"
		}
	case SourceYouTube:
		if u, err := url.Parse(req.URL); err != nil || u.Host == "" || ExtractVideoID(req.URL) == "" {
			fields["url"] = "Must be a YouTube video URL"
		}
	case SourceFile:
		if req.FilePath == "" {
			fields["file"] = "File is required"
		} else if !filepath.IsLocal(req.FilePath) {
			fields["file"] = "File must be an upload"
		}
	default:
		fields["source_type"] = "Must be text, youtube or file"
	}

	if req.NumQuestions < 0 || req.NumQuestions > maxGeneratedQuestions {
		fields["num_questions"] = "Must be at most 50"
	}
	if !allowedDifficulties[req.Difficulty] {
		fields["difficulty"] = "Must be easy, medium or hard"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Request queues a generation job for the course on behalf of an
// administrator.
func (s *GenerationService) Request(ctx context.Context, adminID, courseID uuid.UUID, req models.GenerateQuestionsRequest) (*models.Job, error) {
	if !s.enabled {
		return nil, ErrGenerationDisabled
	}
	if err := validateGenerateRequest(req); err != nil {
		return nil, err
	}

	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "Course not found"}
		}
		return nil, &UnavailableError{Err: err}
	}

	req.NumQuestions = normalizeQuestionCount(req.NumQuestions)
	return s.jobs.Enqueue(ctx, adminID, models.JobQuestionGeneration, courseID, req)
}
