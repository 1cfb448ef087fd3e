package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"certtrack-backend/internal/metrics"
	"certtrack-backend/internal/models"
	"certtrack-backend/internal/repository"
	"certtrack-backend/internal/services"
)

const (
	popTimeout = 30 * time.Second
	lockTTL    = 10 * time.Minute
)

type jobTracker interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

type sourceReader interface {
	Read(ctx context.Context, req models.GenerateQuestionsRequest) (string, error)
}

type questionGenerator interface {
	Generate(ctx context.Context, req models.GenerateQuestionsRequest, source string) ([]models.Question, error)
}

type questionStore interface {
	AddQuestions(ctx context.Context, courseID uuid.UUID, questions []models.Question) (int, error)
}

type reminderDeliverer interface {
	Deliver(ctx context.Context, userID uuid.UUID) (bool, error)
}

type publisher interface {
	ToUser(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
	ToAll(ctx context.Context, msg models.WSMessage)
}

// Deps groups the collaborators the pool dispatches to. Generator may be nil
// when no model key is configured; generation jobs then fail permanently.
type Deps struct {
	Jobs      jobTracker
	Sources   sourceReader
	Generator questionGenerator
	Questions questionStore
	Reminders reminderDeliverer
	Publisher publisher
}

// Pool drains the Redis job queues with a fixed number of goroutines.
type Pool struct {
	redis       *redis.Client
	deps        Deps
	workerCount int
	log         *zap.Logger

	requeue func(job *models.Job, backoff time.Duration)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(redisClient *redis.Client, deps Deps, workerCount int, log *zap.Logger) *Pool {
	p := &Pool{
		redis:       redisClient,
		deps:        deps,
		workerCount: max(workerCount, 1),
		log:         log,
	}
	p.requeue = p.pushLater
	return p
}

func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.log.Info("workers started", zap.Int("count", p.workerCount), zap.Strings("queues", services.JobQueues))
}

// Stop cancels outstanding pops and waits for in-flight jobs to return.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			p.log.Debug("worker shutting down", zap.Int("worker", id))
			return
		}

		result, err := p.redis.BLPop(ctx, popTimeout, services.JobQueues...).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				p.log.Warn("queue pop failed", zap.Int("worker", id), zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			p.log.Error("failed to parse job", zap.Int("worker", id), zap.Error(err))
			continue
		}

		lockKey := "job_lock:" + job.ID.String()
		locked, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil || !locked {
			continue
		}

		p.log.Info("processing job",
			zap.Int("worker", id),
			zap.String("job_id", job.ID.String()),
			zap.String("type", job.Type),
		)
		p.Process(ctx, &job)

		p.redis.Del(context.Background(), lockKey)
	}
}

// Process runs one job and records its outcome.
func (p *Pool) Process(ctx context.Context, job *models.Job) {
	p.deps.Jobs.UpdateStatus(ctx, job.ID, repository.JobProcessing)

	var err error
	switch job.Type {
	case models.JobQuestionGeneration:
		err = p.processQuestionGeneration(ctx, job)
	case models.JobAtRiskReminder:
		err = p.processReminder(ctx, job)
	default:
		err = fmt.Errorf("unknown job type: %s", job.Type)
		job.RetryCount = job.MaxRetries
	}

	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}
	p.handleSuccess(ctx, job)
}

func (p *Pool) status(ctx context.Context, job *models.Job, step int, name string) {
	p.deps.Publisher.ToUser(ctx, job.UserID, models.WSMessage{
		Type:    models.WSJobStatus,
		Payload: models.StatusUpdate{JobID: job.ID, Step: step, StepName: name},
	})
}

func (p *Pool) processQuestionGeneration(ctx context.Context, job *models.Job) error {
	if p.deps.Generator == nil {
		job.RetryCount = job.MaxRetries
		return services.ErrGenerationDisabled
	}

	var req models.GenerateQuestionsRequest
	if err := json.Unmarshal(job.ConfigJSON, &req); err != nil {
		job.RetryCount = job.MaxRetries
		return fmt.Errorf("invalid job config: %w", err)
	}

	p.status(ctx, job, 1, "Reading source material")
	source, err := p.deps.Sources.Read(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}

	p.status(ctx, job, 2, "Generating questions")
	questions, err := p.deps.Generator.Generate(ctx, req, source)
	if err != nil {
		return fmt.Errorf("failed to generate questions: %w", err)
	}

	p.status(ctx, job, 3, "Saving questions")
	total, err := p.deps.Questions.AddQuestions(ctx, job.ReferenceID, questions)
	if err != nil {
		return fmt.Errorf("failed to save questions: %w", err)
	}

	p.deps.Publisher.ToAll(ctx, models.WSMessage{
		Type:    models.WSCatalogUpdated,
		Payload: models.CatalogEvent{CourseID: job.ReferenceID, QuestionCount: total},
	})
	p.log.Info("questions added",
		zap.String("course_id", job.ReferenceID.String()),
		zap.Int("added", len(questions)),
		zap.Int("pool_size", total),
	)
	return nil
}

func (p *Pool) processReminder(ctx context.Context, job *models.Job) error {
	sent, err := p.deps.Reminders.Deliver(ctx, job.ReferenceID)
	if err != nil {
		return fmt.Errorf("failed to deliver reminder: %w", err)
	}
	if !sent {
		p.log.Info("reminder skipped, learner no longer at risk", zap.String("user_id", job.ReferenceID.String()))
	}
	return nil
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	p.deps.Jobs.UpdateStatus(ctx, job.ID, repository.JobCompleted)
	metrics.JobsProcessed.WithLabelValues(job.Type, "completed").Inc()

	p.deps.Publisher.ToUser(ctx, job.UserID, models.WSMessage{
		Type: models.WSJobCompleted,
		Payload: models.CompletedEvent{
			JobID:      job.ID,
			ResultID:   job.ReferenceID,
			ResultType: resultType(job.Type),
		},
	})

	p.log.Info("job completed", zap.String("job_id", job.ID.String()))
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	if job.RetryCount < maxRetries {
		p.log.Warn("job failed, retrying",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempt", job.RetryCount),
			zap.Error(err),
		)
		p.deps.Jobs.UpdateStatus(ctx, job.ID, repository.JobPending)
		p.deps.Jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
		metrics.JobsProcessed.WithLabelValues(job.Type, "retried").Inc()

		p.requeue(job, time.Duration(1<<uint(job.RetryCount))*time.Second)
		return
	}

	p.log.Error("job failed permanently", zap.String("job_id", job.ID.String()), zap.Error(err))
	p.deps.Jobs.UpdateStatus(ctx, job.ID, repository.JobFailed)
	p.deps.Jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
	metrics.JobsProcessed.WithLabelValues(job.Type, "failed").Inc()

	p.deps.Publisher.ToUser(ctx, job.UserID, models.WSMessage{
		Type: models.WSJobError,
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    "JOB_FAILED",
			ErrorMessage: errMsg,
		},
	})
}

func (p *Pool) pushLater(job *models.Job, backoff time.Duration) {
	jobBytes, _ := json.Marshal(job)
	time.AfterFunc(backoff, func() {
		if err := p.redis.LPush(context.Background(), services.JobQueueName(job.Type), string(jobBytes)).Err(); err != nil {
			p.log.Error("failed to requeue job", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
	})
}

func resultType(jobType string) string {
	switch jobType {
	case models.JobQuestionGeneration:
		return "course"
	case models.JobAtRiskReminder:
		return "user"
	default:
		return ""
	}
}
