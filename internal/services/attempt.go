package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"certtrack-backend/internal/metrics"
	"certtrack-backend/internal/models"
	"certtrack-backend/internal/quiz"
	"certtrack-backend/internal/repository"
	"certtrack-backend/internal/session"
)

type courseSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
	ListQuestions(ctx context.Context, courseID uuid.UUID) ([]models.Question, error)
}

type resultRecorder interface {
	RecordResult(ctx context.Context, userID, courseID uuid.UUID, passed bool, at time.Time) (*models.ProgressRecord, error)
}

type attemptLogger interface {
	RecordAttempt(ctx context.Context, userID uuid.UUID, passed bool, seconds int64) error
}

type userNotifier interface {
	ToUser(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

// AdvanceResult is a step plus, once the attempt completes, whether it
// passed and whether the result was stored.
type AdvanceResult struct {
	session.Step
	Passed   *bool `json:"passed,omitempty"`
	Recorded bool  `json:"recorded"`
}

type AttemptService struct {
	registry *session.Registry
	courses  courseSource
	progress resultRecorder
	activity attemptLogger
	notify   userNotifier
	passMark int
	log      *zap.Logger

	newSource func() quiz.Source
	now       func() time.Time
}

func NewAttemptService(
	registry *session.Registry,
	courses courseSource,
	progress resultRecorder,
	activity attemptLogger,
	notify userNotifier,
	passMark int,
	log *zap.Logger,
) *AttemptService {
	return &AttemptService{
		registry:  registry,
		courses:   courses,
		progress:  progress,
		activity:  activity,
		notify:    notify,
		passMark:  passMark,
		log:       log,
		newSource: func() quiz.Source { return quiz.NewSource() },
		now:       time.Now,
	}
}

// Start opens a new attempt on the course, replacing any attempt the learner
// still has open. An empty pool yields a session in the empty phase.
func (s *AttemptService) Start(ctx context.Context, userID, courseID uuid.UUID) (session.View, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return session.View{}, &NotFoundError{Message: "Course not found"}
		}
		return session.View{}, &UnavailableError{Err: err}
	}

	pool, err := s.courses.ListQuestions(ctx, courseID)
	if err != nil {
		return session.View{}, &UnavailableError{Err: err}
	}

	sess := session.New(userID, course.ID, course.QuizLength, s.newSource(), s.now())
	if err := sess.Load(pool); err != nil {
		return session.View{}, err
	}
	view := sess.Snapshot()

	if replaced := s.registry.Put(sess); replaced != nil {
		s.log.Debug("replaced open attempt",
			zap.String("user_id", userID.String()),
			zap.String("session_id", replaced.ID.String()),
		)
		metrics.AttemptsFinished.WithLabelValues("replaced").Inc()
	}

	metrics.AttemptsStarted.Inc()
	if view.Phase == session.PhaseEmpty {
		metrics.AttemptsFinished.WithLabelValues("empty").Inc()
	}
	metrics.LiveSessions.Set(float64(s.registry.Len()))
	return view, nil
}

func (s *AttemptService) Current(userID uuid.UUID) (session.View, error) {
	view, ok := s.registry.Current(userID)
	if !ok {
		return session.View{}, &NotFoundError{Message: "No open attempt"}
	}
	return view, nil
}

func (s *AttemptService) Select(userID, sessionID uuid.UUID, option int) (session.Reveal, error) {
	var reveal session.Reveal
	err := s.registry.Do(userID, sessionID, func(sess *session.Session) error {
		first := sess.Phase() == session.PhaseAnswering
		r, err := sess.Select(option)
		if err != nil {
			return err
		}
		if first {
			metrics.AnswersRevealed.WithLabelValues(strconv.FormatBool(r.IsCorrect)).Inc()
		}
		reveal = r
		return nil
	})
	return reveal, mapSessionError(err)
}

// Advance moves past the revealed question. When that completes the attempt
// the result is recorded against the learner's progress and activity.
func (s *AttemptService) Advance(ctx context.Context, userID, sessionID uuid.UUID) (AdvanceResult, error) {
	var (
		step      session.Step
		courseID  uuid.UUID
		startedAt time.Time
	)
	err := s.registry.Do(userID, sessionID, func(sess *session.Session) error {
		st, err := sess.Advance()
		if err != nil {
			return err
		}
		step, courseID, startedAt = st, sess.CourseID, sess.StartedAt
		return nil
	})
	if err != nil {
		return AdvanceResult{}, mapSessionError(err)
	}

	res := AdvanceResult{Step: step}
	if !step.Completed {
		return res, nil
	}

	metrics.LiveSessions.Set(float64(s.registry.Len()))
	passed := step.Outcome.Score >= s.passMark
	res.Passed = &passed
	res.Recorded = s.record(ctx, userID, courseID, *step.Outcome, passed, startedAt)
	return res, nil
}

func (s *AttemptService) record(ctx context.Context, userID, courseID uuid.UUID, out session.Outcome, passed bool, startedAt time.Time) bool {
	result := "failed"
	if passed {
		result = "passed"
	}
	metrics.AttemptsFinished.WithLabelValues(result).Inc()

	finishedAt := s.now()
	rec, err := s.progress.RecordResult(ctx, userID, courseID, passed, finishedAt)
	if err != nil {
		s.log.Error("failed to record attempt result",
			zap.String("user_id", userID.String()),
			zap.String("course_id", courseID.String()),
			zap.Error(err),
		)
		return false
	}

	seconds := int64(finishedAt.Sub(startedAt) / time.Second)
	if err := s.activity.RecordAttempt(ctx, userID, passed, seconds); err != nil {
		s.log.Warn("failed to update activity log", zap.String("user_id", userID.String()), zap.Error(err))
	}

	s.notify.ToUser(ctx, userID, models.WSMessage{
		Type: models.WSProgressUpdated,
		Payload: models.ProgressEvent{
			CourseID: courseID,
			Status:   rec.Status,
			Score:    out.Score,
			Passed:   passed,
		},
	})
	return true
}

func (s *AttemptService) RequestExit(userID, sessionID uuid.UUID, intent session.ExitIntent) (session.ExitDecision, error) {
	if !intent.Valid() {
		return "", &ValidationError{Fields: map[string]string{"intent": "Must be back_button or platform_back"}}
	}

	var decision session.ExitDecision
	err := s.registry.Do(userID, sessionID, func(sess *session.Session) error {
		decision = sess.RequestExit(intent)
		return nil
	})
	return decision, mapSessionError(err)
}

func (s *AttemptService) CancelExit(userID, sessionID uuid.UUID) (bool, error) {
	var rearm bool
	err := s.registry.Do(userID, sessionID, func(sess *session.Session) error {
		r, err := sess.CancelExit()
		rearm = r
		return err
	})
	return rearm, mapSessionError(err)
}

func (s *AttemptService) ConfirmExit(userID, sessionID uuid.UUID) error {
	err := s.registry.Do(userID, sessionID, func(sess *session.Session) error {
		return sess.ConfirmExit()
	})
	if err == nil {
		metrics.AttemptsFinished.WithLabelValues("exited").Inc()
		metrics.LiveSessions.Set(float64(s.registry.Len()))
	}
	return mapSessionError(err)
}

// Discard drops the attempt when its view goes away. Nothing is recorded.
func (s *AttemptService) Discard(userID, sessionID uuid.UUID) error {
	if err := s.registry.Discard(userID, sessionID); err != nil {
		return mapSessionError(err)
	}
	metrics.AttemptsFinished.WithLabelValues("discarded").Inc()
	metrics.LiveSessions.Set(float64(s.registry.Len()))
	return nil
}

func mapSessionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound):
		return &NotFoundError{Message: "Attempt not found"}
	case errors.Is(err, session.ErrInvalidTransition):
		return &ConflictError{Message: err.Error()}
	case errors.Is(err, session.ErrInvalidOption):
		return &ValidationError{Fields: map[string]string{"option_index": "Option index out of range"}}
	}
	return err
}
