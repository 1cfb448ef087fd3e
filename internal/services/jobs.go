package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"certtrack-backend/internal/models"
	"certtrack-backend/internal/repository"
)

func JobQueueName(jobType string) string {
	return "queue:" + jobType
}

// JobQueues lists every queue the worker pool drains.
var JobQueues = []string{
	JobQueueName(models.JobQuestionGeneration),
	JobQueueName(models.JobAtRiskReminder),
}

type jobStore interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	HasOpen(ctx context.Context, jobType string, referenceID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// JobService records background jobs in Postgres and queues them on Redis.
type JobService struct {
	jobs  jobStore
	redis *redis.Client
}

func NewJobService(jobs jobStore, redisClient *redis.Client) *JobService {
	return &JobService{jobs: jobs, redis: redisClient}
}

func (s *JobService) Enqueue(ctx context.Context, userID uuid.UUID, jobType string, referenceID uuid.UUID, config any) (*models.Job, error) {
	configBytes, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		UserID:      userID,
		Type:        jobType,
		ReferenceID: referenceID,
		ConfigJSON:  configBytes,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, &UnavailableError{Err: err}
	}

	jobBytes, _ := json.Marshal(job)
	if err := s.redis.LPush(ctx, JobQueueName(jobType), string(jobBytes)).Err(); err != nil {
		_ = s.jobs.UpdateStatus(ctx, job.ID, repository.JobFailed)
		return nil, &UnavailableError{Err: err}
	}
	return job, nil
}

// EnqueueOnce skips the job when one of the same type is already open for
// the reference.
func (s *JobService) EnqueueOnce(ctx context.Context, userID uuid.UUID, jobType string, referenceID uuid.UUID, config any) (*models.Job, bool, error) {
	open, err := s.jobs.HasOpen(ctx, jobType, referenceID)
	if err != nil {
		return nil, false, &UnavailableError{Err: err}
	}
	if open {
		return nil, false, nil
	}
	job, err := s.Enqueue(ctx, userID, jobType, referenceID, config)
	return job, err == nil, err
}

func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "Job not found"}
		}
		return nil, &UnavailableError{Err: err}
	}
	return job, nil
}
