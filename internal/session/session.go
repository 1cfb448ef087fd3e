// Package session runs a single quiz attempt: a frozen sample of shuffled
// questions, one reveal per question, and an exit prompt that intercepts
// back-navigation until the learner confirms or cancels.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"certtrack-backend/internal/models"
	"certtrack-backend/internal/quiz"
)

type Phase string

const (
	PhaseLoading     Phase = "loading"
	PhaseReady       Phase = "ready"
	PhaseAnswering   Phase = "answering"
	PhaseRevealed    Phase = "revealed"
	PhaseExitPending Phase = "exit_pending"
	PhaseCompleted   Phase = "completed"
	PhaseExited      Phase = "exited"
	PhaseEmpty       Phase = "empty"
)

func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseExited || p == PhaseEmpty
}

type ExitIntent string

const (
	IntentBackButton   ExitIntent = "back_button"
	IntentPlatformBack ExitIntent = "platform_back"
)

func (i ExitIntent) Valid() bool {
	return i == IntentBackButton || i == IntentPlatformBack
}

type ExitDecision string

const (
	DecisionIntercepted ExitDecision = "intercepted"
	DecisionPassThrough ExitDecision = "pass_through"
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrInvalidOption     = errors.New("option index out of range")
)

const noSelection = -1

type item struct {
	questionID   uuid.UUID
	text         string
	options      []string
	correctIndex int
}

// QuestionView is what the learner sees. The correct answer is only exposed
// through a Reveal.
type QuestionView struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	Options  []string  `json:"options"`
	Position int       `json:"position"`
	Total    int       `json:"total"`
}

type Reveal struct {
	SelectedIndex int  `json:"selected_index"`
	CorrectIndex  int  `json:"correct_index"`
	IsCorrect     bool `json:"is_correct"`
}

type Outcome struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
	Score   int `json:"score"` // percent, rounded down
}

// Step is the result of advancing: either the next question or the outcome.
type Step struct {
	Completed bool          `json:"completed"`
	Question  *QuestionView `json:"question,omitempty"`
	Outcome   *Outcome      `json:"outcome,omitempty"`
}

type Session struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	CourseID   uuid.UUID
	StartedAt  time.Time
	quizLength int
	src        quiz.Source

	phase    Phase
	resume   Phase
	items    []item
	index    int
	selected int
	correct  int

	// historyArmed is true while the client holds an in-app history entry
	// that a platform back gesture can pop without leaving the quiz.
	historyArmed bool
}

// New creates a session in the loading phase. quizLength <= 0 draws the
// whole pool.
func New(userID, courseID uuid.UUID, quizLength int, src quiz.Source, startedAt time.Time) *Session {
	return &Session{
		ID:           uuid.New(),
		UserID:       userID,
		CourseID:     courseID,
		StartedAt:    startedAt,
		quizLength:   quizLength,
		src:          src,
		phase:        PhaseLoading,
		selected:     noSelection,
		historyArmed: true,
	}
}

// Load freezes the attempt's questions. It may only be called once.
func (s *Session) Load(pool []models.Question) error {
	if s.phase != PhaseLoading {
		return fmt.Errorf("%w: load in phase %s", ErrInvalidTransition, s.phase)
	}

	count := s.quizLength
	if count <= 0 {
		count = len(pool)
	}

	sampled := quiz.Sample(s.src, pool, count)
	s.items = make([]item, 0, len(sampled))
	for _, q := range sampled {
		options, correct := quiz.ShuffleOptions(s.src, q.Options, q.CorrectIndex)
		s.items = append(s.items, item{
			questionID:   q.ID,
			text:         q.Text,
			options:      options,
			correctIndex: correct,
		})
	}

	if len(s.items) == 0 {
		s.phase = PhaseEmpty
		return nil
	}

	// Ready moves straight on to the first question.
	s.index = 0
	s.selected = noSelection
	s.phase = PhaseAnswering
	return nil
}

func (s *Session) Phase() Phase { return s.phase }

func (s *Session) Index() int { return s.index }

func (s *Session) Total() int { return len(s.items) }

// Selected returns the selected option for the current question, if any.
func (s *Session) Selected() (int, bool) {
	return s.selected, s.selected != noSelection
}

// Select records the learner's answer. Only the first selection per question
// counts; later calls return the original reveal unchanged.
func (s *Session) Select(option int) (Reveal, error) {
	switch s.phase {
	case PhaseRevealed:
		return s.reveal(), nil
	case PhaseAnswering:
	default:
		return Reveal{}, fmt.Errorf("%w: select in phase %s", ErrInvalidTransition, s.phase)
	}

	cur := s.items[s.index]
	if option < 0 || option >= len(cur.options) {
		return Reveal{}, fmt.Errorf("%w: %d", ErrInvalidOption, option)
	}

	s.selected = option
	if option == cur.correctIndex {
		s.correct++
	}
	s.phase = PhaseRevealed
	return s.reveal(), nil
}

func (s *Session) reveal() Reveal {
	cur := s.items[s.index]
	return Reveal{
		SelectedIndex: s.selected,
		CorrectIndex:  cur.correctIndex,
		IsCorrect:     s.selected == cur.correctIndex,
	}
}

// Advance moves past a revealed question.
func (s *Session) Advance() (Step, error) {
	if s.phase != PhaseRevealed {
		return Step{}, fmt.Errorf("%w: advance in phase %s", ErrInvalidTransition, s.phase)
	}

	if s.index+1 >= len(s.items) {
		s.phase = PhaseCompleted
		s.historyArmed = false
		out := s.Outcome()
		return Step{Completed: true, Outcome: &out}, nil
	}

	s.index++
	s.selected = noSelection
	s.phase = PhaseAnswering
	return Step{Question: s.Current()}, nil
}

// Outcome reports the score so far. It is final once the session completes.
func (s *Session) Outcome() Outcome {
	out := Outcome{Correct: s.correct, Total: len(s.items)}
	if out.Total > 0 {
		out.Score = out.Correct * 100 / out.Total
	}
	return out
}

// RequestExit intercepts a back-navigation. Terminal sessions let it through.
func (s *Session) RequestExit(intent ExitIntent) ExitDecision {
	if s.phase.Terminal() {
		return DecisionPassThrough
	}
	if intent == IntentPlatformBack {
		s.historyArmed = false
	}
	if s.phase == PhaseExitPending {
		return DecisionIntercepted
	}

	s.resume = s.phase
	s.phase = PhaseExitPending
	return DecisionIntercepted
}

// CancelExit closes the prompt and restores the prior phase, question and
// selection. It reports whether the client must push a fresh history entry.
func (s *Session) CancelExit() (bool, error) {
	if s.phase != PhaseExitPending {
		return false, fmt.Errorf("%w: cancel exit in phase %s", ErrInvalidTransition, s.phase)
	}

	s.phase = s.resume
	s.resume = ""
	rearm := !s.historyArmed
	s.historyArmed = true
	return rearm, nil
}

// ConfirmExit abandons the attempt. Nothing is credited.
func (s *Session) ConfirmExit() error {
	if s.phase != PhaseExitPending {
		return fmt.Errorf("%w: confirm exit in phase %s", ErrInvalidTransition, s.phase)
	}

	s.phase = PhaseExited
	s.resume = ""
	s.items = nil
	s.selected = noSelection
	s.correct = 0
	s.historyArmed = false
	return nil
}

// Current returns the question on screen, or nil when none is.
func (s *Session) Current() *QuestionView {
	phase := s.phase
	if phase == PhaseExitPending {
		phase = s.resume
	}
	if phase != PhaseAnswering && phase != PhaseRevealed {
		return nil
	}

	cur := s.items[s.index]
	options := make([]string, len(cur.options))
	copy(options, cur.options)
	return &QuestionView{
		ID:       cur.questionID,
		Text:     cur.text,
		Options:  options,
		Position: s.index + 1,
		Total:    len(s.items),
	}
}

type View struct {
	ID           uuid.UUID     `json:"id"`
	CourseID     uuid.UUID     `json:"course_id"`
	Phase        Phase         `json:"phase"`
	ExitPrompt   bool          `json:"exit_prompt"`
	Question     *QuestionView `json:"question,omitempty"`
	Reveal       *Reveal       `json:"reveal,omitempty"`
	HistoryArmed bool          `json:"history_armed"`
	StartedAt    time.Time     `json:"started_at"`
}

// Snapshot returns a copy of everything the client needs to render.
func (s *Session) Snapshot() View {
	v := View{
		ID:           s.ID,
		CourseID:     s.CourseID,
		Phase:        s.phase,
		ExitPrompt:   s.phase == PhaseExitPending,
		Question:     s.Current(),
		HistoryArmed: s.historyArmed,
		StartedAt:    s.StartedAt,
	}
	if s.phase == PhaseRevealed || (s.phase == PhaseExitPending && s.resume == PhaseRevealed) {
		r := s.reveal()
		v.Reveal = &r
	}
	return v
}
