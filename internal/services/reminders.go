package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"certtrack-backend/internal/models"
	"certtrack-backend/internal/rollup"
)

const reminderLastSentPrefix = "reminder_last_sent:"

type atRiskSource interface {
	AtRisk(ctx context.Context) ([]rollup.AtRiskUser, error)
}

type reminderMailer interface {
	SendAtRiskReminder(to, name string, courses []rollup.FlaggedCourse) error
}

type jobEnqueuer interface {
	EnqueueOnce(ctx context.Context, userID uuid.UUID, jobType string, referenceID uuid.UUID, config any) (*models.Job, bool, error)
}

// reminderThrottle remembers when each learner was last reminded.
type reminderThrottle interface {
	LastSent(ctx context.Context, userID uuid.UUID) (string, error)
	MarkSent(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type redisThrottle struct {
	redis *redis.Client
	ttl   time.Duration
}

func (t redisThrottle) LastSent(ctx context.Context, userID uuid.UUID) (string, error) {
	v, err := t.redis.Get(ctx, reminderLastSentPrefix+userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (t redisThrottle) MarkSent(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return t.redis.Set(ctx, reminderLastSentPrefix+userID.String(), at.UTC().Format(time.RFC3339), t.ttl).Err()
}

// ReminderService emails learners whose required courses are overdue or due
// soon. A cron schedule sweeps every at-risk learner; administrators can also
// remind one learner on demand. Delivery always happens on the worker pool.
type ReminderService struct {
	reports  atRiskSource
	mailer   reminderMailer
	jobs     jobEnqueuer
	throttle reminderThrottle
	interval time.Duration
	schedule string
	cron     *cron.Cron
	log      *zap.Logger
	now      func() time.Time
}

func NewReminderService(reports atRiskSource, mailer reminderMailer, jobs jobEnqueuer, redisClient *redis.Client, schedule string, intervalHours int, log *zap.Logger) *ReminderService {
	interval := time.Duration(max(intervalHours, 1)) * time.Hour
	return &ReminderService{
		reports:  reports,
		mailer:   mailer,
		jobs:     jobs,
		throttle: redisThrottle{redis: redisClient, ttl: 2 * interval},
		interval: interval,
		schedule: schedule,
		log:      log,
		now:      time.Now,
	}
}

// Start registers the sweep on the cron schedule.
func (s *ReminderService) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.log.Info("reminder scheduler started", zap.String("schedule", s.schedule), zap.Duration("interval", s.interval))
	return nil
}

// Stop waits for a running sweep to finish.
func (s *ReminderService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep queues a reminder for every at-risk learner not reminded within the
// interval. It returns the number of jobs queued.
func (s *ReminderService) Sweep(ctx context.Context) int {
	users, err := s.reports.AtRisk(ctx)
	if err != nil {
		s.log.Error("reminder sweep: failed to build at-risk list", zap.Error(err))
		return 0
	}

	queued := 0
	now := s.now()
	for _, u := range users {
		last, err := s.throttle.LastSent(ctx, u.UserID)
		if err != nil {
			s.log.Warn("reminder sweep: failed to read last sent", zap.String("user_id", u.UserID.String()), zap.Error(err))
			continue
		}
		if !shouldSendByLastSent(last, s.interval, now) {
			continue
		}

		_, ok, err := s.jobs.EnqueueOnce(ctx, u.UserID, models.JobAtRiskReminder, u.UserID, nil)
		if err != nil {
			s.log.Warn("reminder sweep: failed to queue reminder", zap.String("user_id", u.UserID.String()), zap.Error(err))
			continue
		}
		if ok {
			queued++
		}
	}

	s.log.Info("reminder sweep finished", zap.Int("at_risk", len(users)), zap.Int("queued", queued))
	return queued
}

// Remind queues a reminder requested by an administrator. The throttle does
// not apply.
func (s *ReminderService) Remind(ctx context.Context, adminID, userID uuid.UUID) (*models.Job, error) {
	job, ok, err := s.jobs.EnqueueOnce(ctx, adminID, models.JobAtRiskReminder, userID, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ConflictError{Message: "A reminder for this user is already queued"}
	}
	return job, nil
}

// Deliver sends the reminder if the learner is still at risk. It reports
// whether an email went out.
func (s *ReminderService) Deliver(ctx context.Context, userID uuid.UUID) (bool, error) {
	users, err := s.reports.AtRisk(ctx)
	if err != nil {
		return false, err
	}

	for _, u := range users {
		if u.UserID != userID {
			continue
		}
		if err := s.mailer.SendAtRiskReminder(u.Email, u.Name, u.Courses); err != nil {
			return false, err
		}
		if err := s.throttle.MarkSent(ctx, userID, s.now()); err != nil {
			s.log.Warn("failed to persist reminder timestamp", zap.String("user_id", userID.String()), zap.Error(err))
		}
		return true, nil
	}
	return false, nil
}

func shouldSendByLastSent(lastSentRaw string, minInterval time.Duration, now time.Time) bool {
	if lastSentRaw == "" {
		return true
	}

	lastSentAt, err := time.Parse(time.RFC3339, lastSentRaw)
	if err != nil {
		return true
	}

	return now.Sub(lastSentAt) >= minInterval
}
