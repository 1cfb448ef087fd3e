package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"certtrack-backend/internal/models"
	"certtrack-backend/internal/quiz"
	"certtrack-backend/internal/repository"
	"certtrack-backend/internal/session"
)

type stubCourses struct {
	course *models.Course
	pool   []models.Question
	err    error
}

func (s *stubCourses) GetByID(_ context.Context, id uuid.UUID) (*models.Course, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.course == nil || s.course.ID != id {
		return nil, repository.ErrNotFound
	}
	return s.course, nil
}

func (s *stubCourses) ListQuestions(_ context.Context, _ uuid.UUID) ([]models.Question, error) {
	return s.pool, nil
}

type recordedResult struct {
	userID, courseID uuid.UUID
	passed           bool
}

type stubProgress struct {
	results []recordedResult
	err     error
}

func (s *stubProgress) RecordResult(_ context.Context, userID, courseID uuid.UUID, passed bool, at time.Time) (*models.ProgressRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.results = append(s.results, recordedResult{userID, courseID, passed})
	status := models.ProgressInProgress
	if passed {
		status = models.ProgressCompleted
	}
	return &models.ProgressRecord{UserID: userID, CourseID: courseID, Status: status, UpdatedAt: at}, nil
}

type stubActivity struct {
	passes, fails int
	seconds       int64
}

func (s *stubActivity) RecordAttempt(_ context.Context, _ uuid.UUID, passed bool, seconds int64) error {
	if passed {
		s.passes++
	} else {
		s.fails++
	}
	s.seconds += seconds
	return nil
}

type stubNotifier struct {
	messages []models.WSMessage
}

func (s *stubNotifier) ToUser(_ context.Context, _ uuid.UUID, msg models.WSMessage) {
	s.messages = append(s.messages, msg)
}

type attemptFixture struct {
	svc      *AttemptService
	course   *models.Course
	progress *stubProgress
	activity *stubActivity
	notifier *stubNotifier
}

func newAttemptFixture(poolSize int) attemptFixture {
	course := &models.Course{ID: uuid.New(), Title: "Safety", QuizLength: 0}
	pool := make([]models.Question, poolSize)
	for i := range pool {
		pool[i] = models.Question{
			ID:           uuid.New(),
			CourseID:     course.ID,
			Text:         "Question",
			Options:      []string{"right", "wrong 1", "wrong 2", "wrong 3"},
			CorrectIndex: 0,
		}
	}

	f := attemptFixture{
		course:   course,
		progress: &stubProgress{},
		activity: &stubActivity{},
		notifier: &stubNotifier{},
	}
	f.svc = NewAttemptService(session.NewRegistry(), &stubCourses{course: course, pool: pool},
		f.progress, f.activity, f.notifier, 80, zap.NewNop())

	seed := uint64(7)
	f.svc.newSource = func() quiz.Source {
		seed++
		return rand.New(rand.NewPCG(seed, seed))
	}
	clock := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time {
		clock = clock.Add(30 * time.Second)
		return clock
	}
	return f
}

// answerAll walks the attempt, answering correctly for the first `right`
// questions.
func answerAll(t *testing.T, svc *AttemptService, userID uuid.UUID, view session.View, right int) AdvanceResult {
	t.Helper()
	q := view.Question
	for i := 0; ; i++ {
		option := slices.Index(q.Options, "right")
		if i >= right {
			option = (option + 1) % len(q.Options)
		}
		if _, err := svc.Select(userID, view.ID, option); err != nil {
			t.Fatalf("select failed: %v", err)
		}
		res, err := svc.Advance(context.Background(), userID, view.ID)
		if err != nil {
			t.Fatalf("advance failed: %v", err)
		}
		if res.Completed {
			return res
		}
		q = res.Question
	}
}

func TestAttempt_PassRecordsCompletion(t *testing.T) {
	f := newAttemptFixture(5)
	userID := uuid.New()

	view, err := f.svc.Start(context.Background(), userID, f.course.ID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if view.Phase != session.PhaseAnswering || view.Question == nil || view.Question.Total != 5 {
		t.Fatalf("unexpected start view: %+v", view)
	}

	res := answerAll(t, f.svc, userID, view, 4)
	if res.Outcome.Score != 80 || res.Passed == nil || !*res.Passed || !res.Recorded {
		t.Fatalf("expected recorded pass at 80%%, got %+v passed=%v", res.Outcome, res.Passed)
	}
	if len(f.progress.results) != 1 || !f.progress.results[0].passed || f.progress.results[0].courseID != f.course.ID {
		t.Fatalf("unexpected recorded results: %+v", f.progress.results)
	}
	if f.activity.passes != 1 || f.activity.seconds <= 0 {
		t.Fatalf("unexpected activity: %+v", f.activity)
	}
	if len(f.notifier.messages) != 1 || f.notifier.messages[0].Type != models.WSProgressUpdated {
		t.Fatalf("expected one progress update, got %+v", f.notifier.messages)
	}
	if _, err := f.svc.Current(userID); err == nil {
		t.Fatalf("completed attempt should no longer be current")
	}
}

func TestAttempt_FailLeavesCourseInProgress(t *testing.T) {
	f := newAttemptFixture(5)
	userID := uuid.New()

	view, _ := f.svc.Start(context.Background(), userID, f.course.ID)
	res := answerAll(t, f.svc, userID, view, 3)
	if res.Outcome.Score != 60 || *res.Passed {
		t.Fatalf("expected a 60%% fail, got %+v", res.Outcome)
	}
	if f.progress.results[0].passed || f.activity.fails != 1 {
		t.Fatalf("fail should be recorded as such")
	}
}

func TestAttempt_RecordFailureKeepsOutcome(t *testing.T) {
	f := newAttemptFixture(1)
	f.progress.err = errors.New("connection refused")
	userID := uuid.New()

	view, _ := f.svc.Start(context.Background(), userID, f.course.ID)
	res := answerAll(t, f.svc, userID, view, 1)
	if !res.Completed || res.Recorded {
		t.Fatalf("expected completed but unrecorded result, got %+v", res)
	}
	if len(f.notifier.messages) != 0 {
		t.Fatalf("nothing should be pushed when the result was not stored")
	}
}

func TestAttempt_EmptyPool(t *testing.T) {
	f := newAttemptFixture(0)
	userID := uuid.New()

	view, err := f.svc.Start(context.Background(), userID, f.course.ID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if view.Phase != session.PhaseEmpty || view.Question != nil {
		t.Fatalf("expected empty session, got %+v", view)
	}
	if _, err := f.svc.Current(userID); err == nil {
		t.Fatalf("empty session should not be kept")
	}
}

func TestAttempt_Errors(t *testing.T) {
	f := newAttemptFixture(3)
	userID := uuid.New()
	ctx := context.Background()

	var nf *NotFoundError
	if _, err := f.svc.Start(ctx, userID, uuid.New()); !errors.As(err, &nf) {
		t.Fatalf("unknown course: expected NotFoundError, got %v", err)
	}

	view, _ := f.svc.Start(ctx, userID, f.course.ID)

	if _, err := f.svc.Select(uuid.New(), view.ID, 0); !errors.As(err, &nf) {
		t.Fatalf("foreign user: expected NotFoundError, got %v", err)
	}
	if _, err := f.svc.Select(userID, uuid.New(), 0); !errors.As(err, &nf) {
		t.Fatalf("unknown handle: expected NotFoundError, got %v", err)
	}

	var ve *ValidationError
	if _, err := f.svc.Select(userID, view.ID, 4); !errors.As(err, &ve) {
		t.Fatalf("out of range option: expected ValidationError, got %v", err)
	}

	var ce *ConflictError
	if _, err := f.svc.Advance(ctx, userID, view.ID); !errors.As(err, &ce) {
		t.Fatalf("advance before answering: expected ConflictError, got %v", err)
	}
	if _, err := f.svc.CancelExit(userID, view.ID); !errors.As(err, &ce) {
		t.Fatalf("cancel without prompt: expected ConflictError, got %v", err)
	}
	if _, err := f.svc.RequestExit(userID, view.ID, "swipe"); !errors.As(err, &ve) {
		t.Fatalf("unknown intent: expected ValidationError, got %v", err)
	}
}

func TestAttempt_ExitFlow(t *testing.T) {
	f := newAttemptFixture(3)
	userID := uuid.New()
	ctx := context.Background()

	view, _ := f.svc.Start(ctx, userID, f.course.ID)
	if _, err := f.svc.Select(userID, view.ID, 1); err != nil {
		t.Fatalf("select failed: %v", err)
	}

	decision, err := f.svc.RequestExit(userID, view.ID, session.IntentPlatformBack)
	if err != nil || decision != session.DecisionIntercepted {
		t.Fatalf("expected intercepted exit, got %q %v", decision, err)
	}
	rearm, err := f.svc.CancelExit(userID, view.ID)
	if err != nil || !rearm {
		t.Fatalf("platform back should ask for a fresh history entry, got %v %v", rearm, err)
	}

	current, err := f.svc.Current(userID)
	if err != nil || current.Phase != session.PhaseRevealed || current.Reveal == nil || current.Reveal.SelectedIndex != 1 {
		t.Fatalf("cancel should restore the revealed question, got %+v", current)
	}

	f.svc.RequestExit(userID, view.ID, session.IntentBackButton)
	if err := f.svc.ConfirmExit(userID, view.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if len(f.progress.results) != 0 {
		t.Fatalf("an abandoned attempt must not be recorded")
	}

	fresh, err := f.svc.Start(ctx, userID, f.course.ID)
	if err != nil || fresh.ID == view.ID || fresh.Question.Position != 1 {
		t.Fatalf("expected a fresh attempt, got %+v %v", fresh, err)
	}
}

func TestAttempt_StartReplacesOpenAttempt(t *testing.T) {
	f := newAttemptFixture(3)
	userID := uuid.New()
	ctx := context.Background()

	first, _ := f.svc.Start(ctx, userID, f.course.ID)
	second, _ := f.svc.Start(ctx, userID, f.course.ID)

	var nf *NotFoundError
	if _, err := f.svc.Select(userID, first.ID, 0); !errors.As(err, &nf) {
		t.Fatalf("replaced attempt should be gone, got %v", err)
	}
	if err := f.svc.Discard(userID, second.ID); err != nil {
		t.Fatalf("discard failed: %v", err)
	}
	if _, err := f.svc.Current(userID); !errors.As(err, &nf) {
		t.Fatalf("discarded attempt should be gone, got %v", err)
	}
}
