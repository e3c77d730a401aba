package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/mockinterview/internal/audio"
	"github.com/ent0n29/mockinterview/internal/inference"
	"github.com/ent0n29/mockinterview/internal/scoring"
)

const (
	InterviewerPersona  = "You are a professional interviewer. Generate one technical question based on the context."
	EvaluatorPersona    = "You are an interview evaluator. Provide constructive feedback on this answer."
	EvaluateInstruction = "Evaluate this response."

	// GenericQuestion is served when no text model is loaded at all.
	GenericQuestion = "Tell me about your experience with the technologies mentioned in your resume."
	// RecoveryQuestion is served when the fallback text model fails mid-call.
	RecoveryQuestion = "Can you walk me through your most relevant project experience?"

	FeedbackUnavailable    = "evaluation unavailable"
	FeedbackTechnicalIssue = "technical issue, could not evaluate"
	FeedbackNoSpeech       = "no speech detected in the answer"
	NeutralScore           = 5.0

	fallbackQuestionPrompt = "Generate one technical interview question based on this resume context: "
)

var errNoSample = errors.New("no decoded audio sample")

// Evaluation is the scored outcome of one spoken answer.
type Evaluation struct {
	Score          float64 `json:"score"`
	Feedback       string  `json:"feedback"`
	FullTranscript string  `json:"full_transcript,omitempty"`
}

// Clip is an answer as handed to a backend: the scoped resource, plus the
// decoded sample when decoding succeeded.
type Clip struct {
	Resource *audio.Resource
	Sample   *audio.Sample
}

// Backend is one inference path able to produce questions and evaluations.
type Backend interface {
	Name() string
	GenerateQuestion(ctx context.Context, resumeText string) (string, error)
	EvaluateAudio(ctx context.Context, question string, clip Clip) (Evaluation, error)
}

// QuestionConversation builds the interviewer prompt with the resume bounded
// to maxChars characters.
func QuestionConversation(resumeText string, maxChars int) inference.Conversation {
	return inference.Conversation{Turns: []inference.Turn{
		inference.TextTurn(inference.RoleSystem, InterviewerPersona),
		inference.TextTurn(inference.RoleUser, truncate(resumeText, maxChars)),
	}}
}

// EvaluationConversation pairs the question with the single answer sample.
func EvaluationConversation(question string, sample *audio.Sample) inference.Conversation {
	return inference.Conversation{Turns: []inference.Turn{
		inference.TextTurn(inference.RoleSystem, EvaluatorPersona),
		{Role: inference.RoleUser, Segments: []inference.Segment{
			inference.TextSegment("Question: " + question),
			inference.AudioSegment(sample),
			inference.TextSegment(EvaluateInstruction),
		}},
	}}
}

type primaryBackend struct {
	model  inference.Model
	limits Limits
}

func (p *primaryBackend) Name() string { return "primary" }

func (p *primaryBackend) GenerateQuestion(ctx context.Context, resumeText string) (string, error) {
	conv := QuestionConversation(resumeText, p.limits.QuestionContextChars)
	text, err := p.model.Generate(ctx, conv, p.limits.QuestionMaxTokens)
	if err != nil {
		return "", err
	}
	if text = strings.TrimSpace(text); text == "" {
		return "", inference.ErrEmptyGeneration
	}
	return text, nil
}

func (p *primaryBackend) EvaluateAudio(ctx context.Context, question string, clip Clip) (Evaluation, error) {
	if clip.Sample == nil {
		return Evaluation{}, errNoSample
	}
	feedback, err := p.model.Generate(ctx, EvaluationConversation(question, clip.Sample), p.limits.EvaluationMaxTokens)
	if err != nil {
		return Evaluation{}, err
	}
	if feedback = strings.TrimSpace(feedback); feedback == "" {
		return Evaluation{}, inference.ErrEmptyGeneration
	}
	return Evaluation{Score: scoring.Score(feedback), Feedback: feedback}, nil
}

type fallbackBackend struct {
	text        inference.TextGenerator
	transcriber inference.Transcriber
	limits      Limits
}

func (f *fallbackBackend) Name() string { return "fallback" }

// GenerateQuestion never fails: a missing or failing text model yields one of
// the canned questions.
func (f *fallbackBackend) GenerateQuestion(ctx context.Context, resumeText string) (string, error) {
	if f.text == nil {
		return GenericQuestion, nil
	}
	prompt := fallbackQuestionPrompt + truncate(resumeText, f.limits.FallbackContextChars)

	var out string
	err := guard(func() error {
		var err error
		out, err = f.text.Complete(ctx, prompt, f.limits.FallbackQuestionMaxTokens)
		return err
	})
	if err != nil {
		logger().WithError(err).WithField("text_model", f.text.Name()).Error("fallback question generation failed")
		return RecoveryQuestion, nil
	}
	if out = strings.TrimSpace(out); out == "" {
		return GenericQuestion, nil
	}
	return out, nil
}

// EvaluateAudio transcribes the answer file. It returns
// inference.ErrUnavailable when no transcriber was loaded.
func (f *fallbackBackend) EvaluateAudio(ctx context.Context, _ string, clip Clip) (Evaluation, error) {
	if f.transcriber == nil {
		return Evaluation{}, inference.ErrUnavailable
	}
	if clip.Resource == nil {
		return Evaluation{}, fmt.Errorf("fallback evaluation: missing audio resource")
	}
	path, err := clip.Resource.Path()
	if err != nil {
		return Evaluation{}, err
	}
	transcript, err := f.transcriber.TranscribeFile(ctx, path)
	if err != nil {
		return Evaluation{}, fmt.Errorf("transcribe with %s: %w", f.transcriber.Name(), err)
	}

	transcript = strings.TrimSpace(transcript)
	feedback := truncate(transcript, f.limits.FeedbackPreviewChars)
	if feedback == "" {
		feedback = FeedbackNoSpeech
	}
	return Evaluation{
		Score:          scoring.Score(transcript),
		Feedback:       feedback,
		FullTranscript: transcript,
	}, nil
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
