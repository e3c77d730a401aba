// Package interview holds the resilient inference engine behind a mock
// interview: question generation from resume text and evaluation of spoken
// answers, with a fallback path when the primary multimodal model is absent
// or fails.
package interview

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/mockinterview/internal/audio"
	"github.com/ent0n29/mockinterview/internal/inference"
)

const (
	OperationQuestion   = "question"
	OperationEvaluation = "evaluation"

	OutcomeOK    = "ok"
	OutcomeError = "error"

	ReasonPrimaryUnavailable = "primary_unavailable"
	ReasonPrimaryError       = "primary_error"
	ReasonDecodeError        = "decode_error"
)

// Limits bounds prompts and generations. Zero fields take the defaults.
type Limits struct {
	QuestionContextChars      int
	FallbackContextChars      int
	QuestionMaxTokens         int
	FallbackQuestionMaxTokens int
	EvaluationMaxTokens       int
	SampleRate                int
	FeedbackPreviewChars      int
	MaxQuestions              int
	// TempDir is where answer files are materialized. Empty means os.TempDir.
	TempDir string
}

func DefaultLimits() Limits {
	return Limits{
		QuestionContextChars:      2000,
		FallbackContextChars:      1000,
		QuestionMaxTokens:         50,
		FallbackQuestionMaxTokens: 100,
		EvaluationMaxTokens:       100,
		SampleRate:                audio.DefaultSampleRate,
		FeedbackPreviewChars:      200,
		MaxQuestions:              5,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.QuestionContextChars <= 0 {
		l.QuestionContextChars = d.QuestionContextChars
	}
	if l.FallbackContextChars <= 0 {
		l.FallbackContextChars = d.FallbackContextChars
	}
	if l.QuestionMaxTokens <= 0 {
		l.QuestionMaxTokens = d.QuestionMaxTokens
	}
	if l.FallbackQuestionMaxTokens <= 0 {
		l.FallbackQuestionMaxTokens = d.FallbackQuestionMaxTokens
	}
	if l.EvaluationMaxTokens <= 0 {
		l.EvaluationMaxTokens = d.EvaluationMaxTokens
	}
	if l.SampleRate <= 0 {
		l.SampleRate = d.SampleRate
	}
	if l.FeedbackPreviewChars <= 0 {
		l.FeedbackPreviewChars = d.FeedbackPreviewChars
	}
	if l.MaxQuestions <= 0 {
		l.MaxQuestions = d.MaxQuestions
	}
	return l
}

// FallbackParts are the optional fallback components. Either may be nil.
type FallbackParts struct {
	Text        inference.TextGenerator
	Transcriber inference.Transcriber
}

// Observer receives engine events. observability.Metrics implements it.
type Observer interface {
	ObserveInference(backend, operation, outcome string)
	ObserveFallback(operation, reason string)
	ObserveEvaluation(backend string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveInference(string, string, string) {}
func (nopObserver) ObserveFallback(string, string)          {}
func (nopObserver) ObserveEvaluation(string, time.Duration) {}

type Option func(*Engine)

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// Engine routes questions and evaluations to the primary model when it was
// available at construction, and to the fallback path otherwise. A failed
// primary call falls back for that call only; availability never changes
// after construction.
type Engine struct {
	limits   Limits
	model    inference.Model
	primary  Backend
	fallback Backend
	probeErr error
	observer Observer
}

// NewEngine probes the primary model exactly once via load. It never fails:
// an unavailable primary leaves the engine on the fallback path.
func NewEngine(ctx context.Context, load inference.ModelLoader, parts FallbackParts, limits Limits, opts ...Option) *Engine {
	e := &Engine{
		limits:   limits.withDefaults(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.fallback = &fallbackBackend{
		text:        parts.Text,
		transcriber: parts.Transcriber,
		limits:      e.limits,
	}

	availability := Probe(ctx, load)
	if availability.Available {
		e.model = availability.Model
		e.primary = &primaryBackend{model: availability.Model, limits: e.limits}
	} else {
		e.probeErr = availability.Err
	}

	logger().
		WithField("primary_available", e.Available()).
		WithField("text_model", componentName(parts.Text)).
		WithField("transcriber", componentName(parts.Transcriber)).
		Info("interview engine ready")
	return e
}

// Available reports whether the primary model loaded at construction.
func (e *Engine) Available() bool {
	return e.primary != nil
}

// ProbeError is the reason the primary model is unavailable, if it is.
func (e *Engine) ProbeError() error {
	return e.probeErr
}

// ActiveBackend names the path used for new calls.
func (e *Engine) ActiveBackend() string {
	return e.active().Name()
}

func (e *Engine) Limits() Limits {
	return e.limits
}

func (e *Engine) Close() error {
	if e.model == nil {
		return nil
	}
	return e.model.Close()
}

func (e *Engine) active() Backend {
	if e.primary != nil {
		return e.primary
	}
	return e.fallback
}

// GenerateQuestion always returns a non-empty question.
func (e *Engine) GenerateQuestion(ctx context.Context, resumeText string) string {
	if e.primary != nil {
		q, err := e.askBackend(ctx, e.primary, resumeText)
		if err == nil {
			return q
		}
		logger().WithError(err).Warn("primary question generation failed, using fallback for this call")
		e.observer.ObserveFallback(OperationQuestion, ReasonPrimaryError)
	} else {
		e.observer.ObserveFallback(OperationQuestion, ReasonPrimaryUnavailable)
	}

	q, err := e.askBackend(ctx, e.fallback, resumeText)
	if err != nil || q == "" {
		if err != nil {
			logger().WithError(err).Error("fallback question generation failed")
		}
		return GenericQuestion
	}
	return q
}

func (e *Engine) askBackend(ctx context.Context, b Backend, resumeText string) (string, error) {
	var q string
	err := guard(func() error {
		var err error
		q, err = b.GenerateQuestion(ctx, resumeText)
		return err
	})
	e.observer.ObserveInference(b.Name(), OperationQuestion, outcome(err))
	return q, err
}

// EvaluateResponse scores a spoken answer. It never fails: unexpected errors
// become a zero score with FeedbackTechnicalIssue, and a fallback path with no
// transcriber yields NeutralScore with FeedbackUnavailable. The answer's
// temporary file, if one was created, is gone when this returns.
func (e *Engine) EvaluateResponse(ctx context.Context, question string, answer []byte) Evaluation {
	started := time.Now()

	res := audio.NewResource(answer, e.limits.TempDir)
	defer func() {
		if err := res.Release(); err != nil {
			logger().WithError(err).Warn("release answer audio")
		}
	}()

	clip := Clip{Resource: res}
	sample, decodeErr := audio.Decode(res.Bytes(), e.limits.SampleRate)
	if decodeErr == nil {
		clip.Sample = sample
	}

	backend, ev, err := e.evaluate(ctx, question, clip, decodeErr)
	e.observer.ObserveEvaluation(backend, time.Since(started))
	if err == nil {
		return ev
	}
	if errors.Is(err, inference.ErrUnavailable) {
		logger().Warn("no transcriber on the fallback path, returning neutral evaluation")
		return Evaluation{Score: NeutralScore, Feedback: FeedbackUnavailable}
	}
	logger().WithError(err).Error("answer evaluation failed")
	return Evaluation{Score: 0, Feedback: FeedbackTechnicalIssue}
}

func (e *Engine) evaluate(ctx context.Context, question string, clip Clip, decodeErr error) (string, Evaluation, error) {
	switch {
	case e.primary == nil:
		e.observer.ObserveFallback(OperationEvaluation, ReasonPrimaryUnavailable)
	case decodeErr != nil:
		logger().WithError(decodeErr).Warn("answer audio could not be decoded, using fallback for this call")
		e.observer.ObserveFallback(OperationEvaluation, ReasonDecodeError)
	default:
		ev, err := e.evaluateWith(ctx, e.primary, question, clip)
		if err == nil {
			return e.primary.Name(), ev, nil
		}
		logger().WithError(err).Warn("primary evaluation failed, using fallback for this call")
		e.observer.ObserveFallback(OperationEvaluation, ReasonPrimaryError)
	}

	ev, err := e.evaluateWith(ctx, e.fallback, question, clip)
	return e.fallback.Name(), ev, err
}

func (e *Engine) evaluateWith(ctx context.Context, b Backend, question string, clip Clip) (Evaluation, error) {
	var ev Evaluation
	err := guard(func() error {
		var err error
		ev, err = b.EvaluateAudio(ctx, question, clip)
		return err
	})
	e.observer.ObserveInference(b.Name(), OperationEvaluation, outcome(err))
	return ev, err
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

type named interface{ Name() string }

func componentName(c named) string {
	if c == nil {
		return "none"
	}
	return c.Name()
}
