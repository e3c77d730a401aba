package interview

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/mockinterview/internal/scoring"
)

var (
	ErrRoundState = errors.New("interview round: operation not allowed in current state")
	ErrCompleted  = errors.New("interview round: completed")
)

type State string

const (
	StateAwaitingFirstQuestion State = "awaiting_first_question"
	StateAwaitingAnswer        State = "awaiting_answer"
	StateAwaitingNextQuestion  State = "awaiting_next_question"
	StateCompleted             State = "completed"
)

// Interviewer is the part of Engine a Round drives.
type Interviewer interface {
	GenerateQuestion(ctx context.Context, resumeText string) string
	EvaluateResponse(ctx context.Context, question string, answer []byte) Evaluation
}

type Response struct {
	Question   string     `json:"question"`
	Evaluation Evaluation `json:"evaluation"`
	AnsweredAt time.Time  `json:"answered_at"`
}

// Round tracks one interview: a fixed number of question/answer pairs.
// It is not safe for concurrent use; callers serialize access per session.
type Round struct {
	maxQuestions int
	state        State
	questions    []string
	responses    []Response
	startedAt    time.Time
	completedAt  time.Time
	now          func() time.Time
}

func NewRound(maxQuestions int) *Round {
	if maxQuestions <= 0 {
		maxQuestions = DefaultLimits().MaxQuestions
	}
	r := &Round{maxQuestions: maxQuestions, now: time.Now}
	r.reset()
	return r
}

func (r *Round) reset() {
	r.state = StateAwaitingFirstQuestion
	r.questions = nil
	r.responses = nil
	r.startedAt = r.now()
	r.completedAt = time.Time{}
}

// Restart discards all questions and answers and starts the clock again.
func (r *Round) Restart() {
	r.reset()
}

func (r *Round) State() State { return r.state }

func (r *Round) MaxQuestions() int { return r.maxQuestions }

// Ask generates the next question. It is only valid before the first question
// and after an answer has been evaluated.
func (r *Round) Ask(ctx context.Context, iv Interviewer, resumeText string) (string, error) {
	switch r.state {
	case StateCompleted:
		return "", ErrCompleted
	case StateAwaitingAnswer:
		return "", ErrRoundState
	}
	q := iv.GenerateQuestion(ctx, resumeText)
	r.questions = append(r.questions, q)
	r.state = StateAwaitingAnswer
	return q, nil
}

// Answer evaluates the spoken answer to the outstanding question.
func (r *Round) Answer(ctx context.Context, iv Interviewer, answer []byte) (Evaluation, error) {
	switch r.state {
	case StateCompleted:
		return Evaluation{}, ErrCompleted
	case StateAwaitingAnswer:
	default:
		return Evaluation{}, ErrRoundState
	}

	question := r.questions[len(r.questions)-1]
	ev := iv.EvaluateResponse(ctx, question, answer)
	r.responses = append(r.responses, Response{
		Question:   question,
		Evaluation: ev,
		AnsweredAt: r.now(),
	})
	if len(r.responses) >= r.maxQuestions {
		r.state = StateCompleted
		r.completedAt = r.now()
	} else {
		r.state = StateAwaitingNextQuestion
	}
	return ev, nil
}

// CurrentQuestion returns the question awaiting an answer.
func (r *Round) CurrentQuestion() (string, bool) {
	if r.state != StateAwaitingAnswer {
		return "", false
	}
	return r.questions[len(r.questions)-1], true
}

type Snapshot struct {
	State        State         `json:"state"`
	MaxQuestions int           `json:"max_questions"`
	Asked        int           `json:"asked"`
	Answered     int           `json:"answered"`
	Current      string        `json:"current_question,omitempty"`
	Responses    []Response    `json:"responses"`
	AverageScore float64       `json:"average_score"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

// Snapshot copies the round's progress. Duration runs until completion.
func (r *Round) Snapshot() Snapshot {
	s := Snapshot{
		State:        r.state,
		MaxQuestions: r.maxQuestions,
		Asked:        len(r.questions),
		Answered:     len(r.responses),
		Responses:    append([]Response(nil), r.responses...),
		StartedAt:    r.startedAt,
	}
	s.Current, _ = r.CurrentQuestion()

	if len(r.responses) > 0 {
		var total float64
		for _, resp := range r.responses {
			total += resp.Evaluation.Score
		}
		s.AverageScore = scoring.Round1(total / float64(len(r.responses)))
	}

	end := r.now()
	if r.state == StateCompleted {
		completed := r.completedAt
		s.CompletedAt = &completed
		end = completed
	}
	s.Duration = end.Sub(r.startedAt)
	return s
}
